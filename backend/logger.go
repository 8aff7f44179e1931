package backend

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogger initialises the slog default logger for the process.
// logLevel should be one of: "debug", "info", "warn", "error"; the
// LOG_LEVEL environment variable overrides the config value. Set
// LOG_FORMAT=json for machine-readable output.
func InitLogger(logLevel string) {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		logLevel = env
	}

	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
