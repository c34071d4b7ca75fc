package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/nicdavidson/homestead/pkg/apierr"
	"github.com/nicdavidson/homestead/pkg/modeltags"
)

// Dispatcher selects a backend per spec.md §4.1 based on the session's
// model tag and drives it to completion under a bounded timeout. It
// tracks in-flight turns by an opaque turn ID so a caller can cancel()
// preemptively.
type Dispatcher struct {
	tags     *modeltags.Registry
	backends map[modeltags.BackendKind]Backend
	timeout  time.Duration

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewDispatcher(tags *modeltags.Registry, backends map[modeltags.BackendKind]Backend) *Dispatcher {
	return &Dispatcher{
		tags:     tags,
		backends: backends,
		timeout:  DefaultTurnTimeout,
		active:   make(map[string]context.CancelFunc),
	}
}

// WithTimeout returns a copy configured with a different inner timeout;
// the composition root uses it for the configured turn timeout, and tests
// use it for the §8 S5 boundary behavior.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	return &Dispatcher{tags: d.tags, backends: d.backends, timeout: timeout, active: make(map[string]context.CancelFunc)}
}

// Dispatch drives modelTag's backend for one turn. turnID identifies the
// turn for Cancel; callers not needing cancellation may pass any unique
// string per in-flight turn.
func (d *Dispatcher) Dispatch(ctx context.Context, turnID, modelTag, priorHandle, userText string, onDelta OnDelta) (Result, error) {
	binding, err := d.tags.Resolve(modelTag)
	if err != nil {
		return Result{}, err
	}
	backend, ok := d.backends[binding.Backend]
	if !ok {
		return Result{}, apierr.New(apierr.CodeConfig, "no backend wired for model tag "+modelTag)
	}

	turnCtx, cancel := context.WithTimeout(ctx, d.timeout)
	d.mu.Lock()
	d.active[turnID] = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.active, turnID)
		d.mu.Unlock()
		cancel()
	}()

	result, err := backend.StreamTurn(turnCtx, priorHandle, binding.BackendModelRef, userText, onDelta)
	if err != nil {
		if turnCtx.Err() != nil && apierr.CodeOf(err) != apierr.CodeTimeout {
			return Result{}, apierr.Wrap(apierr.CodeTimeout, "turn timed out", turnCtx.Err())
		}
		return Result{}, err
	}
	return result, nil
}

// Cancel preempts the in-flight dispatch identified by turnID, if any.
func (d *Dispatcher) Cancel(turnID string) {
	d.mu.Lock()
	cancel, ok := d.active[turnID]
	d.mu.Unlock()
	if ok {
		cancel()
	}
}
