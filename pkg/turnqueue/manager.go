package turnqueue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Manager owns one bounded FIFO per chat_id and the goroutine that
// drains it, matching spec.md §5's "one concurrent task per long-lived
// loop" model: a chat's worker goroutine is created lazily on first
// enqueue and lives for the process lifetime.
type Manager struct {
	mu       sync.Mutex
	chats    map[int64]*chatQueue
	capacity int
	process  Processor
	log      zerolog.Logger
}

func NewManager(capacity int, process Processor, log zerolog.Logger) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{
		chats:    make(map[int64]*chatQueue),
		capacity: capacity,
		process:  process,
		log:      log,
	}
}

type chatQueue struct {
	items       chan *Turn
	active      *Turn
	outstanding int // queued-in-channel + currently-active, always <= capacity
	mu          sync.Mutex
}

// Enqueue accepts turn into its chat's FIFO, starting the chat's worker
// goroutine on first use. Returns ResultBackpressure without blocking
// once capacity outstanding turns (queued plus the one in flight) already
// belong to this chat, per the boundary behavior in spec.md §8: the
// capacity-th turn counts the in-flight one, so only capacity-1 more may
// queue behind it.
func (m *Manager) Enqueue(ctx context.Context, turn Turn) EnqueueResult {
	cq := m.chatQueueFor(ctx, turn.ChatID)

	cq.mu.Lock()
	if cq.outstanding >= m.capacity {
		cq.mu.Unlock()
		return ResultBackpressure
	}
	cq.outstanding++
	cq.mu.Unlock()

	// The outstanding gate above guarantees room in the buffered channel
	// (capacity slots, never more than capacity outstanding at once), so
	// this send cannot block.
	cq.items <- &turn
	return ResultQueued
}

// Cancel preempts the active turn for chatID, if any.
func (m *Manager) Cancel(chatID int64) {
	m.mu.Lock()
	cq, ok := m.chats[chatID]
	m.mu.Unlock()
	if !ok {
		return
	}
	cq.mu.Lock()
	active := cq.active
	cq.mu.Unlock()
	if active != nil && active.cancel != nil {
		active.cancel()
	}
}

func (m *Manager) chatQueueFor(ctx context.Context, chatID int64) *chatQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cq, ok := m.chats[chatID]; ok {
		return cq
	}
	cq := &chatQueue{items: make(chan *Turn, m.capacity)}
	m.chats[chatID] = cq
	go m.drain(ctx, chatID, cq)
	return cq
}

// drain is the single worker for chatID: turns are processed strictly
// one at a time, in FIFO order, per spec.md §5.
func (m *Manager) drain(ctx context.Context, chatID int64, cq *chatQueue) {
	for {
		select {
		case <-ctx.Done():
			return
		case turn, ok := <-cq.items:
			if !ok {
				return
			}
			m.runOne(ctx, cq, turn)
		}
	}
}

func (m *Manager) runOne(ctx context.Context, cq *chatQueue, turn *Turn) {
	turnCtx, cancel := context.WithCancel(ctx)
	turn.cancel = cancel
	cq.mu.Lock()
	cq.active = turn
	cq.mu.Unlock()
	defer func() {
		cancel()
		cq.mu.Lock()
		cq.active = nil
		cq.outstanding--
		cq.mu.Unlock()
	}()

	if err := m.process(turnCtx, *turn); err != nil {
		m.log.Error().Err(err).Int64("chat_id", turn.ChatID).Msg("turnqueue: turn processing failed")
	}
}
