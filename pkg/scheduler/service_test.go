package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"
)

func setupSchedulerDB(t *testing.T) *dbutil.Database {
	t.Helper()
	raw, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db, err := dbutil.NewWithDB(raw, "sqlite3")
	if err != nil {
		t.Fatalf("wrap db: %v", err)
	}
	ctx := context.Background()
	_, err = db.Exec(ctx, `
		CREATE TABLE jobs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			schedule_kind TEXT NOT NULL,
			schedule_expression TEXT NOT NULL,
			action_kind TEXT NOT NULL,
			action_config TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			last_run_at INTEGER,
			next_run_at INTEGER,
			run_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			source TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		t.Fatalf("create jobs table: %v", err)
	}
	return db
}

type fakeEnqueuer struct {
	calls []struct {
		chatID    int64
		agentName string
		body      string
	}
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, chatID int64, agentName, body string) (int64, error) {
	f.calls = append(f.calls, struct {
		chatID    int64
		agentName string
		body      string
	}{chatID, agentName, body})
	return int64(len(f.calls)), nil
}

func TestServiceTickFiresDueIntervalJobAndReschedules(t *testing.T) {
	ctx := context.Background()
	db := setupSchedulerDB(t)
	store := NewStore(db)
	enqueuer := &fakeEnqueuer{}
	svc := NewService(store, enqueuer, zerolog.Nop(), nil)

	cfg, err := json.Marshal(OutboxActionConfig{ChatID: 42, AgentName: "assistant", Message: "hi"})
	if err != nil {
		t.Fatalf("marshal action config: %v", err)
	}
	job, err := store.Create(ctx, Job{
		ID:                 "job-1",
		Name:               "every minute",
		ScheduleKind:       ScheduleInterval,
		ScheduleExpression: "60",
		ActionKind:         ActionOutbox,
		ActionConfig:       string(cfg),
		Enabled:            true,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	// Force the job due by rewinding next_run_at into the past.
	past := time.Now().Add(-time.Minute).Unix()
	if _, err := db.Exec(ctx, `UPDATE jobs SET next_run_at = $1 WHERE id = $2`, past, job.ID); err != nil {
		t.Fatalf("rewind next_run_at: %v", err)
	}

	svc.tick(ctx)

	if len(enqueuer.calls) != 1 {
		t.Fatalf("expected exactly one outbox enqueue, got %d", len(enqueuer.calls))
	}
	if enqueuer.calls[0].chatID != 42 || enqueuer.calls[0].body != "hi" {
		t.Fatalf("unexpected enqueue call: %+v", enqueuer.calls[0])
	}

	fired, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job after fire: %v", err)
	}
	if fired.RunCount != 1 {
		t.Fatalf("expected run_count=1, got %d", fired.RunCount)
	}
	if fired.NextRunAt == nil || *fired.NextRunAt <= past {
		t.Fatalf("expected next_run_at to be rescheduled forward, got %v", fired.NextRunAt)
	}
}

func TestServiceTickSkipsDisabledJobs(t *testing.T) {
	ctx := context.Background()
	db := setupSchedulerDB(t)
	store := NewStore(db)
	enqueuer := &fakeEnqueuer{}
	svc := NewService(store, enqueuer, zerolog.Nop(), nil)

	cfg, _ := json.Marshal(OutboxActionConfig{ChatID: 1, Message: "x"})
	job, err := store.Create(ctx, Job{
		ID:                 "job-2",
		Name:               "disabled",
		ScheduleKind:       ScheduleInterval,
		ScheduleExpression: "60",
		ActionKind:         ActionOutbox,
		ActionConfig:       string(cfg),
		Enabled:            false,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.NextRunAt != nil {
		t.Fatalf("expected no next_run_at for a disabled job, got %v", job.NextRunAt)
	}

	svc.tick(ctx)
	if len(enqueuer.calls) != 0 {
		t.Fatalf("expected disabled job not to fire, got %d calls", len(enqueuer.calls))
	}
}

// TestServiceRestartAfterMissedFiresRunsOnceNotRepeatedly exercises the S6
// scenario: a process restart long after a job's next_run_at elapsed must
// fire the job exactly once across the following ticks, not once per
// missed interval.
func TestServiceRestartAfterMissedFiresRunsOnceNotRepeatedly(t *testing.T) {
	ctx := context.Background()
	db := setupSchedulerDB(t)
	store := NewStore(db)
	enqueuer := &fakeEnqueuer{}
	svc := NewService(store, enqueuer, zerolog.Nop(), nil)

	cfg, _ := json.Marshal(OutboxActionConfig{ChatID: 7, Message: "catch up"})
	job, err := store.Create(ctx, Job{
		ID:                 "job-3",
		Name:               "long missed",
		ScheduleKind:       ScheduleInterval,
		ScheduleExpression: "60",
		ActionKind:         ActionOutbox,
		ActionConfig:       string(cfg),
		Enabled:            true,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	longAgo := time.Now().Add(-24 * time.Hour).Unix()
	if _, err := db.Exec(ctx, `UPDATE jobs SET next_run_at = $1 WHERE id = $2`, longAgo, job.ID); err != nil {
		t.Fatalf("rewind next_run_at: %v", err)
	}

	svc.tick(ctx)
	svc.tick(ctx)

	if len(enqueuer.calls) != 1 {
		t.Fatalf("expected exactly one fire across both ticks, got %d", len(enqueuer.calls))
	}
}

func TestServiceRunNowRejectsDisabledJob(t *testing.T) {
	ctx := context.Background()
	db := setupSchedulerDB(t)
	store := NewStore(db)
	enqueuer := &fakeEnqueuer{}
	svc := NewService(store, enqueuer, zerolog.Nop(), nil)

	cfg, _ := json.Marshal(OutboxActionConfig{ChatID: 1, Message: "x"})
	job, err := store.Create(ctx, Job{
		ID:                 "job-4",
		Name:               "disabled",
		ScheduleKind:       ScheduleOnce,
		ScheduleExpression: time.Now().Add(time.Hour).Format(time.RFC3339),
		ActionKind:         ActionOutbox,
		ActionConfig:       string(cfg),
		Enabled:            false,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := svc.RunNow(ctx, job.ID); err == nil {
		t.Fatal("expected RunNow to reject a disabled job")
	}
}
