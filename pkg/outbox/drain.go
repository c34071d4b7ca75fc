package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicdavidson/homestead/pkg/agentregistry"
)

// Transport delivers one formatted message to chatID over whatever
// transport the channel driver wraps (Telegram, in the reference bot
// channel). It returns an error on any transport failure.
type Transport interface {
	Send(ctx context.Context, chatID int64, text, parseMode string) error
}

// DefaultPollInterval matches spec.md §4.2's "bounded interval (≈2s)".
const DefaultPollInterval = 2 * time.Second

// DefaultBatchSize bounds how many messages a single poll claims.
const DefaultBatchSize = 20

// maxTransientRetries bounds the in-memory retry counter per row before
// the drainer gives up and persists a terminal failure, per spec.md
// §4.2's "MAY keep a bounded in-memory retry counter" allowance.
const maxTransientRetries = 3

// Drainer is the single outbox drain loop, constructed once from the
// composition root per Design Note 5 (spec.md §9): the single-drainer
// invariant is expressed by never constructing a second one, not by a
// runtime lock.
type Drainer struct {
	store        *Store
	registry     *agentregistry.Registry
	transport    Transport
	pollInterval time.Duration
	batchSize    int
	log          zerolog.Logger

	retries map[int64]int
}

func NewDrainer(store *Store, registry *agentregistry.Registry, transport Transport, log zerolog.Logger) *Drainer {
	return &Drainer{
		store:        store,
		registry:     registry,
		transport:    transport,
		pollInterval: DefaultPollInterval,
		batchSize:    DefaultBatchSize,
		log:          log,
		retries:      make(map[int64]int),
	}
}

// Run polls and drains until ctx is cancelled.
func (d *Drainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

func (d *Drainer) drainOnce(ctx context.Context) {
	messages, err := d.store.ClaimBatch(ctx, d.batchSize)
	if err != nil {
		d.log.Error().Err(err).Msg("outbox: failed to claim batch")
		return
	}
	for _, m := range messages {
		d.deliver(ctx, m)
	}
}

func (d *Drainer) deliver(ctx context.Context, m Message) {
	text := FormatDelivery(d.registry, m.AgentName, m.Body)
	if err := d.transport.Send(ctx, m.ChatID, text, m.ParseMode); err != nil {
		d.retries[m.ID]++
		if d.retries[m.ID] < maxTransientRetries {
			d.log.Warn().Err(err).Int64("outbox_id", m.ID).Int("attempt", d.retries[m.ID]).Msg("outbox: transient delivery failure, will retry")
			return
		}
		delete(d.retries, m.ID)
		if markErr := d.store.MarkFailed(ctx, m.ID, err.Error()); markErr != nil {
			d.log.Error().Err(markErr).Int64("outbox_id", m.ID).Msg("outbox: failed to mark message failed")
		}
		d.log.Warn().Err(err).Int64("outbox_id", m.ID).Msg("outbox: delivery failed permanently")
		return
	}
	delete(d.retries, m.ID)
	if err := d.store.MarkSent(ctx, m.ID, time.Now()); err != nil {
		d.log.Error().Err(err).Int64("outbox_id", m.ID).Msg("outbox: failed to mark message sent")
	}
}
