// Package logger configures the process-wide slog logger this SDK installs
// as the default: a JSON handler in production for log aggregators, a text
// handler everywhere else for local readability.
package logger

import (
	"log/slog"
	"os"
)

// Setup builds a logger for env at level, installs it as slog's default
// logger and returns it. Unlike an env-only setup, the caller always
// controls the level explicitly through Config.LoggingLevel rather than
// this package inferring debug-in-development.
func Setup(env string, level slog.Level) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
