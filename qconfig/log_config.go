// Package qconfig holds the YAML-backed configuration structs shared by every
// qmq binary.
package qconfig

// LokiConfig describes an optional Grafana Loki shipping target for the
// process logger.
type LokiConfig struct {
	Address string            `yaml:"address"`
	Labels  map[string]string `yaml:"labels"`
}

// LogConfig configures the process-wide logrus logger. Level accepts any
// logrus level name; an unrecognised value leaves the current level
// untouched rather than failing. Formatter is "text" (default) or "json".
type LogConfig struct {
	Level     string     `yaml:"level" default:"info"`
	Formatter string     `yaml:"formatter" default:"text"`
	Loki      LokiConfig `yaml:"loki"`
}

// ServiceConfig identifies the running service for registration and logging
// purposes, e.g. "org.qmq.Broker".
type ServiceConfig struct {
	ID string `yaml:"id"`
}
