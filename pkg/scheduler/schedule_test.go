package scheduler

import (
	"testing"
	"time"
)

func TestComputeNextRunCron(t *testing.T) {
	from := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	next, err := ComputeNextRun(ScheduleCron, "0 13 * * *", from)
	if err != nil {
		t.Fatalf("compute next run: %v", err)
	}
	if next == nil {
		t.Fatal("expected a next run time")
	}
	want := time.Date(2026, 7, 31, 13, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}
}

func TestComputeNextRunCronInvalid(t *testing.T) {
	if _, err := ComputeNextRun(ScheduleCron, "not a cron expression", time.Now()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestComputeNextRunInterval(t *testing.T) {
	from := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	next, err := ComputeNextRun(ScheduleInterval, "60", from)
	if err != nil {
		t.Fatalf("compute next run: %v", err)
	}
	want := from.Add(60 * time.Second)
	if !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}
}

func TestComputeNextRunIntervalRejectsNonPositive(t *testing.T) {
	if _, err := ComputeNextRun(ScheduleInterval, "0", time.Now()); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if _, err := ComputeNextRun(ScheduleInterval, "-5", time.Now()); err == nil {
		t.Fatal("expected error for negative interval")
	}
	if _, err := ComputeNextRun(ScheduleInterval, "soon", time.Now()); err == nil {
		t.Fatal("expected error for non-numeric interval")
	}
}

func TestComputeNextRunOnce(t *testing.T) {
	from := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	future := from.Add(time.Hour).Format(time.RFC3339)
	next, err := ComputeNextRun(ScheduleOnce, future, from)
	if err != nil {
		t.Fatalf("compute next run: %v", err)
	}
	if next == nil || !next.Equal(from.Add(time.Hour)) {
		t.Fatalf("unexpected next run: %v", next)
	}
}

func TestComputeNextRunOnceElapsedReturnsNil(t *testing.T) {
	from := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	past := from.Add(-time.Hour).Format(time.RFC3339)
	next, err := ComputeNextRun(ScheduleOnce, past, from)
	if err != nil {
		t.Fatalf("compute next run: %v", err)
	}
	if next != nil {
		t.Fatalf("expected nil next run for an elapsed once schedule, got %v", next)
	}
}

func TestComputeNextRunUnknownKind(t *testing.T) {
	if _, err := ComputeNextRun(ScheduleKind("bogus"), "", time.Now()); err == nil {
		t.Fatal("expected error for unknown schedule kind")
	}
}
