// Package qlog initializes the process-wide logrus logger from a
// qconfig.LogConfig, optionally shipping Info/Warn/Error/Fatal records to
// Loki via lokirus.
package qlog

import (
	log "github.com/sirupsen/logrus"
	"github.com/yukitsune/lokirus"

	"github.com/nowrozi/qmq/qconfig"
)

// Initialize configures the standard logrus logger's level, formatter, and
// Loki hook from cfg. An unparseable Level leaves the current level
// unchanged. Never panics on a zero-value LogConfig.
func Initialize(cfg qconfig.LogConfig) {
	if cfg.Level != "" {
		if level, err := log.ParseLevel(cfg.Level); err == nil {
			log.SetLevel(level)
		}
	}

	timestampFormat := "2006-01-02 15:04:05"

	switch cfg.Formatter {
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: timestampFormat})
	default:
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	if cfg.Loki.Address == "" {
		return
	}

	hook := lokirus.NewLokiHookWithOpts(
		cfg.Loki.Address,
		lokirus.NewLokiHookOptions().
			WithLevelMap(lokirus.LevelMap{
				log.InfoLevel:  "info",
				log.WarnLevel:  "warning",
				log.ErrorLevel: "error",
				log.FatalLevel: "fatal",
			}).
			WithFormatter(&log.JSONFormatter{}).
			WithStaticLabels(lokirus.Labels(cfg.Loki.Labels)),
		log.InfoLevel, log.WarnLevel, log.ErrorLevel, log.FatalLevel,
	)

	log.AddHook(hook)
}
