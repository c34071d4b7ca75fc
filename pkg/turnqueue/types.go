// Package turnqueue implements the per-chat bounded FIFO and
// backpressure layer (TQ) described in spec.md §4.4: turns within a
// chat are processed strictly serially; turns across chats run
// concurrently. Bounded per-chat queues with a reject-when-full policy
// are grounded in spirit on the teacher's generic queueState[T]/
// applyQueueDropPolicy machinery (pkg/simpleruntime/queue_helpers.go),
// simplified to the single drop policy spec.md requires: reject the
// newest turn once the chat's queue is full.
package turnqueue

import (
	"context"
	"time"
)

// EnqueueResult is the outcome of an Enqueue call.
type EnqueueResult string

const (
	ResultQueued       EnqueueResult = "queued"
	ResultBackpressure EnqueueResult = "backpressure"
)

// DefaultCapacity is the per-chat queue capacity spec.md §4.4 suggests
// ("capacity small, e.g. 5").
const DefaultCapacity = 5

// Turn is one user utterance awaiting dispatch. SessionName identifies
// which SS row the dispatcher resolves at dispatch time — not at
// enqueue time — so the freshest session state is always used
// (spec.md §4.4).
//
// OnDelta and OnDone carry the streaming contract (spec.md §4.1) out to
// whichever channel enqueued the turn; left as plain func types rather
// than a dispatch.OnDelta alias so this package stays independent of
// the dispatcher.
type Turn struct {
	ChatID      int64
	SessionName string
	UserText    string
	ReceivedAt  time.Time

	OnDelta func(chunk string)
	OnDone  func(text, sessionHandle string, err error)

	cancel context.CancelFunc
}

// Processor drives one turn to completion. Implemented by the channel
// driver's glue around the model dispatcher.
type Processor func(ctx context.Context, turn Turn) error
