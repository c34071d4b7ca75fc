// Package eventlog implements the append-only structured event log (EL)
// every other component writes to and the API reads back for
// observability, per spec.md §4.6.
package eventlog

// Level mirrors the four log levels spec.md §3 defines for LogRecord.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Record is one append-only entry. Timestamp is unix seconds.
type Record struct {
	ID        int64
	Timestamp int64
	Level     Level
	Source    string
	Message   string
	Payload   map[string]any
	SessionID *string
	ChatID    *int64
}

// QueryOptions filters a Query call. Limit is clamped to 1000 per
// spec.md §4.6.
type QueryOptions struct {
	Since        *int64
	Until        *int64
	Level        Level
	SourcePrefix string
	Substring    string
	Limit        int
}

const MaxQueryLimit = 1000
