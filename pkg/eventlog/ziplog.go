package eventlog

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Hook mirrors every zerolog line at warn level or above into the event
// log store, so every core component's existing structured logging also
// satisfies spec.md §4.6's ingestion requirement without a second
// call site. Grounded on the teacher's context-scoped logger pattern in
// pkg/aiutil/logger_util.go, adapted to zerolog's Hook interface instead
// of a bespoke wrapper type.
type Hook struct {
	store *Store
}

func NewHook(store *Store) Hook {
	return Hook{store: store}
}

// Run implements zerolog.Hook. It fires synchronously on the calling
// goroutine; callers logging on a hot path should keep messages short,
// same as any other zerolog hook.
func (h Hook) Run(e *zerolog.Event, level zerolog.Level, message string) {
	if h.store == nil || level < zerolog.WarnLevel {
		return
	}
	mapped := mapLevel(level)
	// Best-effort: a failure to mirror into EL must never break the
	// caller's original log line.
	_ = h.store.Append(context.Background(), Record{
		Timestamp: time.Now().Unix(),
		Level:     mapped,
		Source:    "homestead",
		Message:   message,
	})
}

func mapLevel(level zerolog.Level) Level {
	switch level {
	case zerolog.DebugLevel:
		return LevelDebug
	case zerolog.InfoLevel:
		return LevelInfo
	case zerolog.WarnLevel:
		return LevelWarning
	default:
		return LevelError
	}
}
