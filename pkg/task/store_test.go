package task

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/util/dbutil"
)

func setupTaskDB(t *testing.T) *dbutil.Database {
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
		CREATE TABLE tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			priority TEXT NOT NULL DEFAULT 'normal',
			assignee TEXT NOT NULL DEFAULT '',
			blockers TEXT NOT NULL DEFAULT '[]',
			depends_on TEXT NOT NULL DEFAULT '[]',
			tags TEXT NOT NULL DEFAULT '[]',
			notes TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);
	`)
	if err != nil {
		t.Fatalf("create tasks table: %v", err)
	}
	return db
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTaskDB(t))
	if _, err := store.Create(ctx, Task{}); err == nil {
		t.Fatal("expected error creating a task with no title")
	}
}

func TestCreateDefaultsStatusAndPriority(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTaskDB(t))
	created, err := store.Create(ctx, Task{Title: "water the plants"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != StatusPending {
		t.Fatalf("expected default status pending, got %q", created.Status)
	}
	if created.Priority != PriorityNormal {
		t.Fatalf("expected default priority normal, got %q", created.Priority)
	}
	if created.ID == "" {
		t.Fatal("expected a generated task id")
	}
}

// TestAddBlockerMovesTaskToBlocked is the first half of the blocker
// lifecycle invariant in spec.md §3.
func TestAddBlockerMovesTaskToBlocked(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTaskDB(t))
	created, err := store.Create(ctx, Task{Title: "renew permit"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	blocked, err := store.AddBlocker(ctx, created.ID, Blocker{
		Kind:        BlockerHumanApproval,
		Description: "needs signoff",
	})
	if err != nil {
		t.Fatalf("add blocker: %v", err)
	}
	if blocked.Status != StatusBlocked {
		t.Fatalf("expected status blocked after adding an unresolved blocker, got %q", blocked.Status)
	}
	if len(blocked.Blockers) != 1 {
		t.Fatalf("expected one blocker, got %d", len(blocked.Blockers))
	}
}

// TestResolveLastBlockerReturnsTaskToPending is the second half of the
// blocker lifecycle invariant: resolving the last unresolved blocker
// moves the task back to pending.
func TestResolveLastBlockerReturnsTaskToPending(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTaskDB(t))
	created, err := store.Create(ctx, Task{Title: "renew permit"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	blocked, err := store.AddBlocker(ctx, created.ID, Blocker{Kind: BlockerHumanInput, Description: "need info"})
	if err != nil {
		t.Fatalf("add blocker: %v", err)
	}
	blockerID := blocked.Blockers[0].ID

	resolved, err := store.ResolveBlocker(ctx, created.ID, blockerID, "alice", "provided the info")
	if err != nil {
		t.Fatalf("resolve blocker: %v", err)
	}
	if resolved.Status != StatusPending {
		t.Fatalf("expected status pending after resolving the last blocker, got %q", resolved.Status)
	}
	if resolved.Blockers[0].ResolvedAt == nil {
		t.Fatal("expected blocker to record a resolved_at timestamp")
	}
}

func TestResolvingOneOfTwoBlockersStaysBlocked(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTaskDB(t))
	created, err := store.Create(ctx, Task{Title: "ship release"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	afterFirst, err := store.AddBlocker(ctx, created.ID, Blocker{Kind: BlockerDependency, Description: "waiting on upstream"})
	if err != nil {
		t.Fatalf("add blocker 1: %v", err)
	}
	afterSecond, err := store.AddBlocker(ctx, afterFirst.ID, Blocker{Kind: BlockerHumanApproval, Description: "needs review"})
	if err != nil {
		t.Fatalf("add blocker 2: %v", err)
	}

	resolved, err := store.ResolveBlocker(ctx, created.ID, afterSecond.Blockers[0].ID, "bob", "upstream shipped")
	if err != nil {
		t.Fatalf("resolve first blocker: %v", err)
	}
	if resolved.Status != StatusBlocked {
		t.Fatalf("expected task to remain blocked while a second blocker is unresolved, got %q", resolved.Status)
	}
}

func TestSetStatusCompletedSetsCompletedAt(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTaskDB(t))
	created, err := store.Create(ctx, Task{Title: "archive logs"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	completed, err := store.SetStatus(ctx, created.ID, StatusCompleted)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if completed.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestGetUnknownTaskReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTaskDB(t))
	if _, err := store.Get(ctx, "does-not-exist"); err == nil {
		t.Fatal("expected error getting an unknown task")
	}
}
