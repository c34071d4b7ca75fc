// Package dispatch implements the model dispatcher (MD): given a
// session and a user turn, drives a backend to completion while
// emitting incremental deltas through the streaming contract in
// spec.md §4.1. The subprocess driver is grounded on the teacher's
// pkg/codexrpc (line-delimited JSON read loop) and pkg/opencode (session
// resumption, typed streaming events); the HTTP driver is grounded on
// the corpus's direct use of github.com/sashabaranov/go-openai.
package dispatch

import (
	"context"
	"time"
)

// OnDelta is called zero or more times with non-empty incremental text,
// in model-emission order. It MUST NOT be called after the terminal
// callback.
type OnDelta func(chunk string)

// Result is the terminal outcome of a dispatch call.
type Result struct {
	Text      string
	NewHandle string
	Usage     Usage
}

// Usage is a best-effort token accounting for the turn.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// DefaultTurnTimeout is MD's inner per-turn timeout (spec.md §5:
// "default 300s, configurable").
const DefaultTurnTimeout = 300 * time.Second

// Backend is the capability set a concrete model backend implements.
// Backends are polymorphic over {stream_turn, resume_prior_thread} per
// spec.md §4.1. SubprocessBackend implements both; HTTPBackend streams
// turns but ignores priorHandle, so it never resumes a prior thread.
type Backend interface {
	// StreamTurn drives one turn to completion, calling onDelta for each
	// incremental chunk and returning the terminal Result. priorHandle is
	// the session's backend_session_handle; it may be empty. modelRef is
	// the resolved model tag's modeltags.Binding.BackendModelRef, the
	// backend-specific model identifier for this turn (e.g. a CLI
	// --model value, or an HTTP API's model name); it may be empty, in
	// which case the backend falls back to whatever default it was
	// constructed with.
	StreamTurn(ctx context.Context, priorHandle, modelRef, userText string, onDelta OnDelta) (Result, error)
}
