package outbox

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/util/dbutil"

	"github.com/nicdavidson/homestead/pkg/allowlist"
)

func setupOutboxDB(t *testing.T) *dbutil.Database {
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
		CREATE TABLE outbox_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			agent_name TEXT NOT NULL,
			body TEXT NOT NULL,
			parse_mode TEXT NOT NULL DEFAULT 'HTML',
			created_at INTEGER NOT NULL,
			sent_at INTEGER,
			status TEXT NOT NULL DEFAULT 'pending',
			fail_reason TEXT
		);
	`)
	if err != nil {
		t.Fatalf("create outbox_messages table: %v", err)
	}
	return db
}

func TestStoreEnqueueRejectsChatOutsideAllowList(t *testing.T) {
	ctx := context.Background()
	db := setupOutboxDB(t)
	store := NewStore(db, allowlist.New([]int64{1}))

	if _, err := store.Enqueue(ctx, 999, "assistant", "hello"); err == nil {
		t.Fatal("expected enqueue to reject a chat_id outside the allow-list")
	}

	msgs, err := store.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no rows inserted for a rejected enqueue, got %d", len(msgs))
	}
}

func TestStoreEnqueueClaimMarkSentLifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupOutboxDB(t)
	store := NewStore(db, allowlist.New([]int64{1}))

	id, err := store.Enqueue(ctx, 1, "assistant", "hello")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	batch, err := store.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(batch) != 1 || batch[0].Status != StatusPending {
		t.Fatalf("expected one pending message, got %+v", batch)
	}

	if err := store.MarkSent(ctx, id, time.Now()); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	afterSent, err := store.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim batch after sent: %v", err)
	}
	if len(afterSent) != 0 {
		t.Fatalf("expected sent message not to be claimable, got %d", len(afterSent))
	}
}

func TestStoreMarkFailedIsTerminalAndIdempotent(t *testing.T) {
	ctx := context.Background()
	db := setupOutboxDB(t)
	store := NewStore(db, allowlist.New([]int64{1}))

	id, err := store.Enqueue(ctx, 1, "assistant", "hello")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.MarkFailed(ctx, id, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	// A repeated MarkFailed, and a MarkSent, on the already-terminal row must
	// each be a no-op, not an error, and leave the row failed.
	if err := store.MarkFailed(ctx, id, "boom again"); err != nil {
		t.Fatalf("second mark failed should be a no-op, got error: %v", err)
	}
	if err := store.MarkSent(ctx, id, time.Now()); err != nil {
		t.Fatalf("mark sent on terminal row should be a no-op, got error: %v", err)
	}
	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.FailReason != "boom" {
		t.Fatalf("expected row to stay failed with reason %q, got status %q reason %q", "boom", got.Status, got.FailReason)
	}

	rows, err := store.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected failed message not to be claimable, got %d", len(rows))
	}
}

func TestStoreClaimBatchOrdersOldestFirst(t *testing.T) {
	ctx := context.Background()
	db := setupOutboxDB(t)
	store := NewStore(db, allowlist.New([]int64{1}))

	first, err := store.Enqueue(ctx, 1, "assistant", "first")
	if err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	if _, err := store.Enqueue(ctx, 1, "assistant", "second"); err != nil {
		t.Fatalf("enqueue second: %v", err)
	}

	batch, err := store.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(batch) != 2 || batch[0].ID != first {
		t.Fatalf("expected oldest message first, got %+v", batch)
	}
}
