package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/util/dbutil"
)

func setupSessionDB(t *testing.T) *dbutil.Database {
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
		CREATE TABLE sessions (
			chat_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			backend_session_handle TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			last_active_at INTEGER NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, name)
		);
	`)
	if err != nil {
		t.Fatalf("create sessions table: %v", err)
	}
	return db
}

// TestCreateActivatesAtMostOneSessionPerChat is invariant 1 (spec.md §8):
// creating a second session for a chat must deactivate the first.
func TestCreateActivatesAtMostOneSessionPerChat(t *testing.T) {
	ctx := context.Background()
	db := setupSessionDB(t)
	store := NewStore(db)

	if _, err := store.Create(ctx, 1, "default", "fast", 100); err != nil {
		t.Fatalf("create first session: %v", err)
	}
	if _, err := store.Create(ctx, 1, "work", "fast", 100); err != nil {
		t.Fatalf("create second session: %v", err)
	}

	all, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	activeCount := 0
	var activeName string
	for _, s := range all {
		if s.IsActive {
			activeCount++
			activeName = s.Name
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active session, got %d", activeCount)
	}
	if activeName != "work" {
		t.Fatalf("expected the most recently created session to be active, got %q", activeName)
	}
}

func TestActivateSwitchesWhichSessionIsActive(t *testing.T) {
	ctx := context.Background()
	db := setupSessionDB(t)
	store := NewStore(db)

	if _, err := store.Create(ctx, 1, "default", "fast", 100); err != nil {
		t.Fatalf("create default: %v", err)
	}
	if _, err := store.Create(ctx, 1, "work", "fast", 100); err != nil {
		t.Fatalf("create work: %v", err)
	}
	if err := store.Activate(ctx, 1, "default"); err != nil {
		t.Fatalf("activate default: %v", err)
	}

	active, err := store.GetActive(ctx, 1)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active == nil || active.Name != "default" {
		t.Fatalf("expected default to be active, got %+v", active)
	}
}

func TestActivateUnknownSessionReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	db := setupSessionDB(t)
	store := NewStore(db)
	if err := store.Activate(ctx, 1, "does-not-exist"); err == nil {
		t.Fatal("expected error activating an unknown session")
	}
}

func TestGetActiveReturnsNilWhenNoneExists(t *testing.T) {
	ctx := context.Background()
	db := setupSessionDB(t)
	store := NewStore(db)
	active, err := store.GetActive(ctx, 1)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active session, got %+v", active)
	}
}

func TestTouchBumpsMessageCountAndHandle(t *testing.T) {
	ctx := context.Background()
	db := setupSessionDB(t)
	store := NewStore(db)
	if _, err := store.Create(ctx, 1, "default", "fast", 100); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Touch(ctx, 1, "default", "handle-123", time.Now()); err != nil {
		t.Fatalf("touch: %v", err)
	}
	sess, err := store.Get(ctx, 1, "default")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.MessageCount != 1 {
		t.Fatalf("expected message_count=1, got %d", sess.MessageCount)
	}
	if sess.BackendSessionHandle != "handle-123" {
		t.Fatalf("expected backend handle to be updated, got %q", sess.BackendSessionHandle)
	}
}

func TestSetModelUnknownSessionReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	db := setupSessionDB(t)
	store := NewStore(db)
	if err := store.SetModel(ctx, 1, "nope", "fast"); err == nil {
		t.Fatal("expected error setting model on unknown session")
	}
}
