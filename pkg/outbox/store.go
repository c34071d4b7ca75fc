package outbox

import (
	"context"
	"database/sql"
	"time"

	"go.mau.fi/util/dbutil"

	"github.com/nicdavidson/homestead/pkg/allowlist"
	"github.com/nicdavidson/homestead/pkg/apierr"
)

// Store is the OB persistence layer.
type Store struct {
	db        *dbutil.Database
	allowlist *allowlist.List
}

func NewStore(db *dbutil.Database, allowed *allowlist.List) *Store {
	return &Store{db: db, allowlist: allowed}
}

// Enqueue inserts a pending row, rejecting chat_ids outside the
// allow-list with a validation error and no row inserted, per spec.md
// §4.2 and the boundary-behavior test in §8.
func (s *Store) Enqueue(ctx context.Context, chatID int64, agentName, body string) (int64, error) {
	return s.EnqueueWithParseMode(ctx, chatID, agentName, body, DefaultParseMode)
}

func (s *Store) EnqueueWithParseMode(ctx context.Context, chatID int64, agentName, body, parseMode string) (int64, error) {
	if !s.allowlist.Allowed(chatID) {
		return 0, apierr.Validation("chat_id %d is not in the allow-list", chatID)
	}
	if parseMode == "" {
		parseMode = DefaultParseMode
	}
	now := time.Now().Unix()
	result, err := s.db.Exec(ctx,
		`INSERT INTO outbox_messages (chat_id, agent_name, body, parse_mode, created_at, status)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		chatID, agentName, body, parseMode, now, StatusPending,
	)
	if err != nil {
		return 0, apierr.Internal(err, "enqueue outbox message")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, apierr.Internal(err, "read inserted outbox id")
	}
	return id, nil
}

// Get returns the message row for id, for status inspection by callers
// (and tests) that need to observe a terminal state.
func (s *Store) Get(ctx context.Context, id int64) (Message, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, chat_id, agent_name, body, parse_mode, created_at, sent_at, status, fail_reason
		 FROM outbox_messages WHERE id = $1`, id)
	var m Message
	var sentAt sql.NullInt64
	var failReason sql.NullString
	if err := row.Scan(&m.ID, &m.ChatID, &m.AgentName, &m.Body, &m.ParseMode, &m.CreatedAt, &sentAt, &m.Status, &failReason); err != nil {
		if err == sql.ErrNoRows {
			return Message{}, apierr.NotFound("outbox message %d not found", id)
		}
		return Message{}, apierr.Internal(err, "get outbox message")
	}
	if sentAt.Valid {
		v := sentAt.Int64
		m.SentAt = &v
	}
	m.FailReason = failReason.String
	return m, nil
}

// ClaimBatch returns up to limit oldest pending rows, oldest first. The
// reference implementation assumes a single drainer (spec.md §4.2,
// Design Note 5), so a plain read suffices; no row is marked claimed.
func (s *Store) ClaimBatch(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, chat_id, agent_name, body, parse_mode, created_at, sent_at, status, fail_reason
		 FROM outbox_messages WHERE status = $1 ORDER BY created_at ASC, id ASC LIMIT $2`,
		StatusPending, limit,
	)
	if err != nil {
		return nil, apierr.Internal(err, "claim outbox batch")
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var sentAt sql.NullInt64
		var failReason sql.NullString
		if err := rows.Scan(&m.ID, &m.ChatID, &m.AgentName, &m.Body, &m.ParseMode, &m.CreatedAt, &sentAt, &m.Status, &failReason); err != nil {
			return nil, apierr.Internal(err, "scan outbox message")
		}
		if sentAt.Valid {
			v := sentAt.Int64
			m.SentAt = &v
		}
		m.FailReason = failReason.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkSent transitions id to sent, recording sent_at. A second call on an
// already-terminal row is a no-op, per the strict lifecycle.
func (s *Store) MarkSent(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE outbox_messages SET status = $1, sent_at = $2 WHERE id = $3 AND status = $4`,
		StatusSent, at.Unix(), id, StatusPending,
	)
	if err != nil {
		return apierr.Internal(err, "mark outbox message sent")
	}
	return nil
}

// MarkFailed transitions id to failed, recording reason. A second call on
// an already-terminal row is a no-op.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE outbox_messages SET status = $1, fail_reason = $2 WHERE id = $3 AND status = $4`,
		StatusFailed, reason, id, StatusPending,
	)
	if err != nil {
		return apierr.Internal(err, "mark outbox message failed")
	}
	return nil
}
