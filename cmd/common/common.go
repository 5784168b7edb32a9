// Package common provides shared utilities for the CLI commands.
package common

import (
	"log/slog"
	"os"
)

// NewLogger creates the process logger. JSON output is meant for
// deployments behind a log collector, text for interactive use.
func NewLogger(json, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// GetEnv returns the environment variable's value, or defaultValue when
// unset or empty.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
