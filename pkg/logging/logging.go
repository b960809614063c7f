// Package logging builds the process logger from environment variables.
//
//	LOG_LEVEL:  debug, info, warn, error (default: info)
//	LOG_FORMAT: json, text, pretty (default: json; pretty uses tint colors)
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// FromEnv constructs a slog.Logger configured by LOG_LEVEL and LOG_FORMAT.
func FromEnv() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	case "pretty":
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
