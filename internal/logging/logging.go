// Package logging configures Lantern's structured logger. It wraps
// github.com/charmbracelet/log the way bitswalk/ldf's internal/common/logs
// package does — a single Logger constructed once at startup and passed
// down by reference — trimmed to Lantern's single-process, stderr-only
// needs (no journald switch; Lantern never runs as a system service).
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger is Lantern's structured logger.
type Logger = log.Logger

// New creates a Logger writing to stderr at the given level ("debug",
// "info", "warn", "error"; unrecognized values fall back to "info").
func New(level string) *Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           parseLevel(level),
		ReportTimestamp: true,
		ReportCaller:    false,
	})
	return logger
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
