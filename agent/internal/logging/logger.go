// Package logging builds the process-wide slog.Logger from agent config.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"github.com/caiwatch/caiwatch/agent/internal/config"
)

// New returns a logger writing to w. Format "text" produces colourised console
// output; anything else produces JSON lines. verbose forces debug level.
func New(w io.Writer, cfg config.AgentConfig, verbose bool) *slog.Logger {
	level := ParseLevel(cfg.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}

	if cfg.LogFormat == "text" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps a config level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
