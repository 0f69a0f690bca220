package mdp

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds all configurable parameters for a broker, worker, or client.
type Config struct {
	// Connection settings
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" default:"2500ms"`
	HeartbeatLiveness int           `yaml:"heartbeat_liveness" default:"3"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" default:"2500ms"`
	RequestTimeout    time.Duration `yaml:"request_timeout" default:"5000ms"`

	// Retry and reliability settings
	MaxRetries       int           `yaml:"max_retries" default:"3"`
	RetryBackoffMin  time.Duration `yaml:"retry_backoff_min" default:"100ms"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max" default:"5000ms"`
	RetryBackoffMult float64       `yaml:"retry_backoff_multiplier" default:"2.0"`

	// Socket settings
	SocketHWM        int           `yaml:"socket_hwm" default:"1000"`
	SocketLinger     time.Duration `yaml:"socket_linger" default:"1000ms"`
	SocketRcvTimeout time.Duration `yaml:"socket_rcv_timeout" default:"1000ms"`
	SocketSndTimeout time.Duration `yaml:"socket_snd_timeout" default:"1000ms"`

	// Message settings
	MaxMessageSize int `yaml:"max_message_size" default:"1048576"` // 1MB

	// Logging
	LogLevel string `yaml:"log_level" default:"info"`

	// MMI settings
	EnableMMI   bool     `yaml:"enable_mmi" default:"true"`
	MMIServices []string `yaml:"mmi_services" default:""`

	// Worker pool settings
	WorkerPoolSize    int           `yaml:"worker_pool_size" default:"10"`
	WorkerIdleTimeout time.Duration `yaml:"worker_idle_timeout" default:"60000ms"`

	// Broker durability settings
	PersistRequests bool   `yaml:"persist_requests" default:"false"`
	PersistBackend  string `yaml:"persist_backend" default:"memory"` // memory or bolt
	PersistPath     string `yaml:"persist_path" default:"./mdp_persist.db"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval: HeartbeatInterval,
		HeartbeatLiveness: HeartbeatLiveness,
		ReconnectInterval: HeartbeatInterval,
		RequestTimeout:    5000 * time.Millisecond,
		MaxRetries:        3,
		RetryBackoffMin:   100 * time.Millisecond,
		RetryBackoffMax:   5000 * time.Millisecond,
		RetryBackoffMult:  2.0,
		SocketHWM:         1000,
		SocketLinger:      1000 * time.Millisecond,
		SocketRcvTimeout:  1000 * time.Millisecond,
		SocketSndTimeout:  1000 * time.Millisecond,
		MaxMessageSize:    1048576,
		LogLevel:          "info",
		EnableMMI:         true,
		MMIServices:       []string{MMIService, MMIWorkers, MMIHeartbeat, MMIBroker},
		WorkerPoolSize:    10,
		WorkerIdleTimeout: 60000 * time.Millisecond,
		PersistRequests:   false,
		PersistBackend:    "memory",
		PersistPath:       "./mdp_persist.db",
	}
}

// LoadConfig loads configuration from a YAML file, if it exists, with
// environment variable overrides applied on top.
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()

	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			data, err := os.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
			}
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
			}
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvironmentOverrides applies MDP_* environment variable overrides.
func (c *Config) applyEnvironmentOverrides() { //nolint:cyclop
	if val := os.Getenv("MDP_HEARTBEAT_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.HeartbeatInterval = duration
		}
	}
	if val := os.Getenv("MDP_HEARTBEAT_LIVENESS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.HeartbeatLiveness = i
		}
	}
	if val := os.Getenv("MDP_RECONNECT_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.ReconnectInterval = duration
		}
	}
	if val := os.Getenv("MDP_REQUEST_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.RequestTimeout = duration
		}
	}
	if val := os.Getenv("MDP_MAX_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.MaxRetries = i
		}
	}
	if val := os.Getenv("MDP_SOCKET_HWM"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.SocketHWM = i
		}
	}
	if val := os.Getenv("MDP_MAX_MESSAGE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.MaxMessageSize = i
		}
	}
	if val := os.Getenv("MDP_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("MDP_ENABLE_MMI"); val != "" {
		c.EnableMMI = strings.ToLower(val) == boolTrue
	}
	if val := os.Getenv("MDP_WORKER_POOL_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.WorkerPoolSize = i
		}
	}
	if val := os.Getenv("MDP_PERSIST_REQUESTS"); val != "" {
		c.PersistRequests = strings.ToLower(val) == boolTrue
	}
	if val := os.Getenv("MDP_PERSIST_BACKEND"); val != "" {
		c.PersistBackend = val
	}
	if val := os.Getenv("MDP_PERSIST_PATH"); val != "" {
		c.PersistPath = val
	}
}

// Validate checks that configuration parameters are internally consistent.
func (c *Config) Validate() error { //nolint:cyclop
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if c.HeartbeatLiveness <= 0 {
		return fmt.Errorf("heartbeat_liveness must be positive")
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect_interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	if c.RetryBackoffMin <= 0 {
		return fmt.Errorf("retry_backoff_min must be positive")
	}
	if c.RetryBackoffMax < c.RetryBackoffMin {
		return fmt.Errorf("retry_backoff_max must be >= retry_backoff_min")
	}
	if c.RetryBackoffMult <= 1.0 {
		return fmt.Errorf("retry_backoff_multiplier must be > 1.0")
	}

	if c.SocketHWM <= 0 {
		return fmt.Errorf("socket_hwm must be positive")
	}

	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max_message_size must be positive")
	}
	if c.MaxMessageSize > 100*1024*1024 {
		return fmt.Errorf("max_message_size too large (max 100MB)")
	}

	validLogLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	valid := false
	for _, level := range validLogLevels {
		if strings.ToLower(c.LogLevel) == level {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log_level: %s (valid: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("worker_pool_size must be positive")
	}
	if c.WorkerIdleTimeout <= 0 {
		return fmt.Errorf("worker_idle_timeout must be positive")
	}

	if c.PersistRequests && c.PersistBackend == "bolt" && c.PersistPath == "" {
		return fmt.Errorf("persist_path required when persist_backend is bolt")
	}

	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}
	return nil
}

// String returns the configuration marshaled as YAML.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
