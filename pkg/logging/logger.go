// Package logging centralizes zerolog setup so every component logs the
// same way and so log lines at WARN and above can be mirrored into the
// event log store through a single hook.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where logs go and at what level.
type Config struct {
	Level      string // debug|info|warn|error
	Pretty     bool   // human-readable console writer, for local dev
	FilePath   string // optional rotating log file; empty disables it
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds the root logger for the process. Component loggers are
// derived from it with .With().Str("source", ...).Logger() so every line
// carries the hierarchical EL source name.
func New(cfg Config, hooks ...zerolog.Hook) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	if cfg.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stderr)
	}
	if cfg.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		})
	}

	logger := zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()
	for _, h := range hooks {
		logger = logger.Hook(h)
	}
	return logger
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// WithSource returns a child logger tagged with the EL hierarchical source
// name (e.g. "homestead.scheduler", "homestead.dispatch").
func WithSource(logger zerolog.Logger, source string) zerolog.Logger {
	return logger.With().Str("source", source).Logger()
}

// FromContext returns the logger attached to ctx, falling back to the
// supplied default when none is attached or it has been disabled —
// adapted from the teacher's context-scoped logger lookup.
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if ctx != nil {
		if ctxLog := zerolog.Ctx(ctx); ctxLog != nil && ctxLog.GetLevel() != zerolog.Disabled {
			return *ctxLog
		}
	}
	return fallback
}
