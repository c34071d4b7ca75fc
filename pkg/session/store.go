package session

import (
	"context"
	"database/sql"
	"time"

	"go.mau.fi/util/dbutil"

	"github.com/nicdavidson/homestead/pkg/apierr"
)

// Store is the SS persistence layer. The activation invariant (exactly
// zero or one active session per chat_id) is enforced here by wrapping
// the deactivate-then-activate pair in a single transaction, per
// spec.md §5's shared-resource policy.
type Store struct {
	db *dbutil.Database
}

func NewStore(db *dbutil.Database) *Store {
	return &Store{db: db}
}

// GetActive returns the active session for chatID, if any.
func (s *Store) GetActive(ctx context.Context, chatID int64) (*Session, error) {
	row := s.db.QueryRow(ctx,
		`SELECT chat_id, name, user_id, backend_session_handle, model, is_active, created_at, last_active_at, message_count
		 FROM sessions WHERE chat_id = $1 AND is_active = 1`, chatID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.Internal(err, "get active session")
	}
	return &sess, nil
}

// Get returns the named session for chatID.
func (s *Store) Get(ctx context.Context, chatID int64, name string) (*Session, error) {
	row := s.db.QueryRow(ctx,
		`SELECT chat_id, name, user_id, backend_session_handle, model, is_active, created_at, last_active_at, message_count
		 FROM sessions WHERE chat_id = $1 AND name = $2`, chatID, name)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("session %q for chat %d not found", name, chatID)
	}
	if err != nil {
		return nil, apierr.Internal(err, "get session")
	}
	return &sess, nil
}

// Create inserts a new, immediately active session, deactivating any
// prior active session for the chat in the same transaction.
func (s *Store) Create(ctx context.Context, chatID int64, name, model string, userID int64) (Session, error) {
	now := time.Now().Unix()
	sess := Session{
		ChatID:       chatID,
		Name:         name,
		UserID:       userID,
		Model:        model,
		IsActive:     true,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	err := s.db.DoTxn(ctx, nil, func(ctx context.Context) error {
		if _, err := s.db.Exec(ctx, `UPDATE sessions SET is_active = 0 WHERE chat_id = $1 AND is_active = 1`, chatID); err != nil {
			return err
		}
		_, err := s.db.Exec(ctx,
			`INSERT INTO sessions (chat_id, name, user_id, backend_session_handle, model, is_active, created_at, last_active_at, message_count)
			 VALUES ($1,$2,$3,'',$4,1,$5,$6,0)`,
			chatID, name, userID, model, now, now,
		)
		return err
	})
	if err != nil {
		return Session{}, apierr.Internal(err, "create session")
	}
	return sess, nil
}

// Activate sets name active for chatID, deactivating whatever was
// previously active, atomically.
func (s *Store) Activate(ctx context.Context, chatID int64, name string) error {
	return s.db.DoTxn(ctx, nil, func(ctx context.Context) error {
		var exists int
		row := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE chat_id = $1 AND name = $2`, chatID, name)
		if err := row.Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return apierr.NotFound("session %q for chat %d not found", name, chatID)
		}
		if _, err := s.db.Exec(ctx, `UPDATE sessions SET is_active = 0 WHERE chat_id = $1 AND is_active = 1`, chatID); err != nil {
			return err
		}
		_, err := s.db.Exec(ctx, `UPDATE sessions SET is_active = 1 WHERE chat_id = $1 AND name = $2`, chatID, name)
		return err
	})
}

// SetModel validates-at-the-boundary is the caller's job (spec.md §4.5);
// the store only persists the change.
func (s *Store) SetModel(ctx context.Context, chatID int64, name, model string) error {
	result, err := s.db.Exec(ctx, `UPDATE sessions SET model = $1 WHERE chat_id = $2 AND name = $3`, model, chatID, name)
	if err != nil {
		return apierr.Internal(err, "set session model")
	}
	return noRowsToNotFound(result, name, chatID)
}

// Touch is called by the channel driver on successful dispatch: it
// atomically bumps message_count, last_active_at, and the backend
// handle, per invariant 5 in spec.md §8.
func (s *Store) Touch(ctx context.Context, chatID int64, name, newHandle string, at time.Time) error {
	result, err := s.db.Exec(ctx,
		`UPDATE sessions SET backend_session_handle = $1, last_active_at = $2, message_count = message_count + 1
		 WHERE chat_id = $3 AND name = $4`,
		newHandle, at.Unix(), chatID, name,
	)
	if err != nil {
		return apierr.Internal(err, "touch session")
	}
	return noRowsToNotFound(result, name, chatID)
}

func (s *Store) Delete(ctx context.Context, chatID int64, name string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE chat_id = $1 AND name = $2`, chatID, name)
	if err != nil {
		return apierr.Internal(err, "delete session")
	}
	return nil
}

func (s *Store) List(ctx context.Context, chatID int64) ([]Session, error) {
	rows, err := s.db.Query(ctx,
		`SELECT chat_id, name, user_id, backend_session_handle, model, is_active, created_at, last_active_at, message_count
		 FROM sessions WHERE chat_id = $1 ORDER BY created_at ASC`, chatID)
	if err != nil {
		return nil, apierr.Internal(err, "list sessions")
	}
	defer rows.Close()
	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, apierr.Internal(err, "scan session")
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (Session, error) {
	var sess Session
	err := row.Scan(&sess.ChatID, &sess.Name, &sess.UserID, &sess.BackendSessionHandle, &sess.Model,
		&sess.IsActive, &sess.CreatedAt, &sess.LastActiveAt, &sess.MessageCount)
	return sess, err
}

func noRowsToNotFound(result sql.Result, name string, chatID int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return apierr.Internal(err, "read rows affected")
	}
	if rows == 0 {
		return apierr.NotFound("session %q for chat %d not found", name, chatID)
	}
	return nil
}
