package qconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// HubConfig holds all configurable parameters for the Hub control plane.
type HubConfig struct {
	ID string `yaml:"id" default:"Q_HUB_0001"`

	// Base endpoint; the five sockets bind to sequential ports above it.
	BaseEndpoint string `yaml:"base_endpoint" default:"tcp://*:6100"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" default:"2500ms"`
	WorkerLiveness    int           `yaml:"worker_liveness" default:"3"`

	// HTTPAddr, when non-empty, mounts the /healthz and /stats admin
	// surface; this is ambient operational tooling, not part of the wire
	// contract.
	HTTPAddr string `yaml:"http_addr" default:":8061"`

	Log LogConfig `yaml:"log"`
}

// DefaultHubConfig returns the struct-tag defaults.
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		ID:                "Q_HUB_0001",
		BaseEndpoint:      "tcp://*:6100",
		HeartbeatInterval: 2500 * time.Millisecond,
		WorkerLiveness:    3,
		HTTPAddr:          ":8061",
		Log: LogConfig{
			Level:     "info",
			Formatter: "text",
		},
	}
}

// LoadHubConfig reads a YAML file (if present), applies QMQ_HUB_*
// environment overrides, validates, and returns the result.
func LoadHubConfig(filename string) (*HubConfig, error) {
	cfg := DefaultHubConfig()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading hub config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing hub config: %w", err)
			}
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *HubConfig) applyEnvironmentOverrides() {
	if v := os.Getenv("QMQ_HUB_ID"); v != "" {
		c.ID = v
	}
	if v := os.Getenv("QMQ_HUB_BASE_ENDPOINT"); v != "" {
		c.BaseEndpoint = v
	}
	if v := os.Getenv("QMQ_HUB_HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("QMQ_HUB_WORKER_LIVENESS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WorkerLiveness = n
		}
	}
	if v := os.Getenv("QMQ_HUB_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("QMQ_HUB_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *HubConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("hub id must not be empty")
	}
	if c.BaseEndpoint == "" {
		return fmt.Errorf("hub base_endpoint must not be empty")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if c.WorkerLiveness <= 0 {
		return fmt.Errorf("worker_liveness must be positive")
	}
	return nil
}
