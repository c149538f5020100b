// Package logging constructs the shared charmbracelet/log logger used by
// every cmd/ entrypoint, following cmd/coreml_inference_server's
// log.NewWithOptions setup.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// New builds a logger from the textual level/format pair carried in
// config.Config (LogLevel/LogFormat).
func New(level, format string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           parseLevel(level),
	})
	if strings.EqualFold(format, "json") {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
