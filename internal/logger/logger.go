// Package logger builds the service's structured loggers.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/banking-saga-core/internal/config"
)

// NewLogger constructs the root slog.Logger: JSON on stdout, level taken
// from configuration, tagged with the application name so interleaved log
// streams stay separable.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.Logging.Level)

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		// Source locations are only worth the noise at debug verbosity.
		AddSource: level == slog.LevelDebug,
	})

	log := slog.New(handler).With("app", cfg.Application.Name)
	log.Info("logger initialized", "level", level)
	return log
}

// WithComponent derives a child logger tagged for one subsystem.
func WithComponent(log *slog.Logger, component string) *slog.Logger {
	return log.With("component", component)
}

// parseLevel maps a configured level name onto slog's levels, falling back
// to info for anything unrecognized.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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
