package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicdavidson/homestead/pkg/apierr"
	"github.com/nicdavidson/homestead/pkg/eventlog"
)

// TickInterval is the fire loop's scan period, per spec.md §4.3 ("short
// tick, ≈1s").
const TickInterval = time.Second

// Service is the single scheduler process. It scans for due jobs on each
// tick, atomically transitions them, then dispatches their action —
// decoupled per spec.md §4.3 step 2, mirroring the teacher's
// onTimer/executeJobLocked split in pkg/cron/service.go.
type Service struct {
	store  *Store
	outbox OutboxEnqueuer
	log    zerolog.Logger
	events *eventlog.Store
}

func NewService(store *Store, outbox OutboxEnqueuer, log zerolog.Logger, events *eventlog.Store) *Service {
	return &Service{store: store, outbox: outbox, log: log, events: events}
}

// Run drives the fire loop until ctx is cancelled. Intended to run as one
// long-lived goroutine owned by the composition root.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	due, err := s.store.Due(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("scheduler: failed to scan due jobs")
		return
	}
	for _, job := range due {
		s.fire(ctx, job)
	}
}

func (s *Service) fire(ctx context.Context, job Job) {
	fired, err := s.store.TransitionFired(ctx, job.ID, time.Now())
	if err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: failed to transition job")
		return
	}
	actionErr := runAction(ctx, fired, s.outbox)
	if actionErr != nil {
		s.log.Warn().Err(actionErr).Str("job_id", job.ID).Str("job_name", job.Name).Msg("scheduler: job action failed")
		s.logEvent(ctx, eventlog.LevelWarning, job, "action failed: "+actionErr.Error())
		return
	}
	s.log.Info().Str("job_id", job.ID).Str("job_name", job.Name).Msg("scheduler: job fired")
	s.logEvent(ctx, eventlog.LevelInfo, job, "fired successfully")
}

// RunNow executes a job's atomic transition + action path immediately,
// independent of its schedule, for the API's manual-trigger operation.
func (s *Service) RunNow(ctx context.Context, jobID string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Enabled {
		return apierr.Conflict("job %q is disabled", jobID)
	}
	s.fire(ctx, job)
	return nil
}

func (s *Service) logEvent(ctx context.Context, level eventlog.Level, job Job, message string) {
	if s.events == nil {
		return
	}
	_ = s.events.Append(ctx, eventlog.Record{
		Timestamp: time.Now().Unix(),
		Level:     level,
		Source:    "homestead.scheduler",
		Message:   message,
		Payload:   map[string]any{"job_id": job.ID, "job_name": job.Name},
	})
}
