package config

import (
	"github.com/sirupsen/logrus" // Logrus for structured logging
)

// SetupLogging applies the configured logrus level and format
func (c *Config) SetupLogging() {
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{}) // Machine-readable logs
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true}) // Human-readable logs
	}
	level, err := logrus.ParseLevel(c.LogLevel) // Parse configured level
	if err != nil {
		logrus.WithField("level", c.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
