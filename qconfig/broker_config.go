package qconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// BrokerConfig holds all configurable parameters for the MDP broker.
type BrokerConfig struct {
	Endpoint          string        `yaml:"endpoint" default:"tcp://*:5555"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" default:"2500ms"`
	HeartbeatLiveness int           `yaml:"heartbeat_liveness" default:"3"`
	EnableMMI         bool          `yaml:"enable_mmi" default:"true"`

	// SnapshotStore enables the optional bbolt-backed in-flight-request
	// snapshot used for operator visibility. It never gates delivery and is
	// off by default: the broker remains a pure in-memory router per its
	// Non-goal of not being a persistent queue.
	SnapshotStore bool   `yaml:"snapshot_store" default:"false"`
	SnapshotPath  string `yaml:"snapshot_path" default:"./qmq-broker.snapshot"`

	Log LogConfig `yaml:"log"`
}

// DefaultBrokerConfig returns the struct-tag defaults.
func DefaultBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		Endpoint:          "tcp://*:5555",
		HeartbeatInterval: 2500 * time.Millisecond,
		HeartbeatLiveness: 3,
		EnableMMI:         true,
		SnapshotStore:     false,
		SnapshotPath:      "./qmq-broker.snapshot",
		Log: LogConfig{
			Level:     "info",
			Formatter: "text",
		},
	}
}

// LoadBrokerConfig reads a YAML file (if present), applies QMQ_BROKER_*
// environment overrides, validates, and returns the result.
func LoadBrokerConfig(filename string) (*BrokerConfig, error) {
	cfg := DefaultBrokerConfig()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading broker config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing broker config: %w", err)
			}
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *BrokerConfig) applyEnvironmentOverrides() {
	if v := os.Getenv("QMQ_BROKER_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("QMQ_BROKER_HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("QMQ_BROKER_HEARTBEAT_LIVENESS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HeartbeatLiveness = n
		}
	}
	if v := os.Getenv("QMQ_BROKER_ENABLE_MMI"); v != "" {
		c.EnableMMI = v == "1" || v == "true"
	}
	if v := os.Getenv("QMQ_BROKER_SNAPSHOT_STORE"); v != "" {
		c.SnapshotStore = v == "1" || v == "true"
	}
	if v := os.Getenv("QMQ_BROKER_SNAPSHOT_PATH"); v != "" {
		c.SnapshotPath = v
	}
	if v := os.Getenv("QMQ_BROKER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *BrokerConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("broker endpoint must not be empty")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if c.HeartbeatLiveness <= 0 {
		return fmt.Errorf("heartbeat_liveness must be positive")
	}
	if c.SnapshotStore && c.SnapshotPath == "" {
		return fmt.Errorf("snapshot_path must be set when snapshot_store is enabled")
	}
	return nil
}
