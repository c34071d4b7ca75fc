package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.mau.fi/util/dbutil"

	"github.com/nicdavidson/homestead/pkg/apierr"
)

// Store is the TS persistence layer.
type Store struct {
	db *dbutil.Database
}

func NewStore(db *dbutil.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, t Task) (Task, error) {
	if t.Title == "" {
		return Task{}, apierr.Validation("task title is required")
	}
	t.ID = uuid.NewString()
	now := time.Now().Unix()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	if t.hasUnresolvedBlocker() {
		t.Status = StatusBlocked
	}
	if err := s.insert(ctx, t); err != nil {
		return Task{}, apierr.Internal(err, "insert task")
	}
	return t, nil
}

func (s *Store) insert(ctx context.Context, t Task) error {
	blockersJSON, err := json.Marshal(t.Blockers)
	if err != nil {
		return err
	}
	dependsJSON, err := json.Marshal(t.DependsOn)
	if err != nil {
		return err
	}
	tagsJSON, err := json.Marshal(t.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO tasks (id, title, description, status, priority, assignee, blockers, depends_on, tags, notes, source, created_at, updated_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.Assignee,
		string(blockersJSON), string(dependsJSON), string(tagsJSON), t.Notes, t.Source, t.CreatedAt, t.UpdatedAt, t.CompletedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (Task, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, title, description, status, priority, assignee, blockers, depends_on, tags, notes, source, created_at, updated_at, completed_at
		 FROM tasks WHERE id=$1`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, apierr.NotFound("task %q not found", id)
	}
	if err != nil {
		return Task{}, apierr.Internal(err, "get task")
	}
	return t, nil
}

func (s *Store) List(ctx context.Context) ([]Task, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, title, description, status, priority, assignee, blockers, depends_on, tags, notes, source, created_at, updated_at, completed_at
		 FROM tasks ORDER BY created_at ASC`)
	if err != nil {
		return nil, apierr.Internal(err, "list tasks")
	}
	defer rows.Close()
	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, apierr.Internal(err, "scan task")
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// SetStatus applies an explicit status transition requested by a
// caller (e.g. marking in_progress or cancelled). Blocked/pending
// transitions implied by blocker changes go through AddBlocker/
// ResolveBlocker instead, which compute status themselves.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) (Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	t.Status = status
	t.UpdatedAt = time.Now().Unix()
	if status == StatusCompleted {
		completed := t.UpdatedAt
		t.CompletedAt = &completed
	}
	if err := s.update(ctx, t); err != nil {
		return Task{}, apierr.Internal(err, "set task status")
	}
	return t, nil
}

// AddBlocker appends a blocker and moves status to blocked, per
// spec.md §3's invariant.
func (s *Store) AddBlocker(ctx context.Context, id string, b Blocker) (Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	b.ID = uuid.NewString()
	b.CreatedAt = time.Now().Unix()
	t.Blockers = append(t.Blockers, b)
	t.Status = StatusBlocked
	t.UpdatedAt = time.Now().Unix()
	if err := s.update(ctx, t); err != nil {
		return Task{}, apierr.Internal(err, "add task blocker")
	}
	return t, nil
}

// ResolveBlocker resolves blockerID and, if it was the last unresolved
// blocker, moves the task back to pending, per spec.md §3's invariant.
func (s *Store) ResolveBlocker(ctx context.Context, id, blockerID, resolvedBy, resolution string) (Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	now := time.Now().Unix()
	found := false
	for i := range t.Blockers {
		if t.Blockers[i].ID == blockerID {
			t.Blockers[i].ResolvedAt = &now
			t.Blockers[i].ResolvedBy = resolvedBy
			t.Blockers[i].Resolution = resolution
			found = true
			break
		}
	}
	if !found {
		return Task{}, apierr.NotFound("blocker %q not found on task %q", blockerID, id)
	}
	if !t.hasUnresolvedBlocker() && t.Status == StatusBlocked {
		t.Status = StatusPending
	}
	t.UpdatedAt = now
	if err := s.update(ctx, t); err != nil {
		return Task{}, apierr.Internal(err, "resolve task blocker")
	}
	return t, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return apierr.Internal(err, "delete task")
	}
	return nil
}

func (s *Store) update(ctx context.Context, t Task) error {
	blockersJSON, err := json.Marshal(t.Blockers)
	if err != nil {
		return err
	}
	dependsJSON, err := json.Marshal(t.DependsOn)
	if err != nil {
		return err
	}
	tagsJSON, err := json.Marshal(t.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`UPDATE tasks SET title=$1, description=$2, status=$3, priority=$4, assignee=$5, blockers=$6, depends_on=$7, tags=$8, notes=$9, source=$10, updated_at=$11, completed_at=$12
		 WHERE id=$13`,
		t.Title, t.Description, t.Status, t.Priority, t.Assignee,
		string(blockersJSON), string(dependsJSON), string(tagsJSON), t.Notes, t.Source, t.UpdatedAt, t.CompletedAt, t.ID,
	)
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTask(row scannable) (Task, error) {
	var t Task
	var blockersJSON, dependsJSON, tagsJSON string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Assignee,
		&blockersJSON, &dependsJSON, &tagsJSON, &t.Notes, &t.Source, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if err != nil {
		return Task{}, err
	}
	_ = json.Unmarshal([]byte(blockersJSON), &t.Blockers)
	_ = json.Unmarshal([]byte(dependsJSON), &t.DependsOn)
	_ = json.Unmarshal([]byte(tagsJSON), &t.Tags)
	return t, nil
}
