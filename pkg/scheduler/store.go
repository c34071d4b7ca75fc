package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.mau.fi/util/dbutil"

	"github.com/nicdavidson/homestead/pkg/apierr"
)

// Store is the job store (JS), a plain CRUD layer consumed by the
// scheduler's fire loop and by the API surface.
type Store struct {
	db *dbutil.Database
}

func NewStore(db *dbutil.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, job Job) (Job, error) {
	if err := ValidateSchedule(job.ScheduleKind, job.ScheduleExpression); err != nil {
		return Job{}, err
	}
	if err := ValidateAction(job.ActionKind, job.ActionConfig); err != nil {
		return Job{}, err
	}
	now := time.Now().UTC()
	job.CreatedAt = now.Unix()
	job.RunCount = 0
	job.LastRunAt = nil
	if job.Enabled {
		next, err := ComputeNextRun(job.ScheduleKind, job.ScheduleExpression, now)
		if err != nil {
			return Job{}, err
		}
		job.NextRunAt = unixPtr(next)
	} else {
		job.NextRunAt = nil
	}
	tagsJSON, err := json.Marshal(job.Tags)
	if err != nil {
		return Job{}, apierr.Internal(err, "marshal tags")
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO jobs (id, name, description, schedule_kind, schedule_expression, action_kind, action_config, enabled, last_run_at, next_run_at, run_count, created_at, tags, source)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		job.ID, job.Name, job.Description, job.ScheduleKind, job.ScheduleExpression, job.ActionKind, job.ActionConfig,
		job.Enabled, job.LastRunAt, job.NextRunAt, job.RunCount, job.CreatedAt, string(tagsJSON), job.Source,
	)
	if err != nil {
		return Job{}, apierr.Internal(err, "insert job")
	}
	return job, nil
}

func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, name, description, schedule_kind, schedule_expression, action_kind, action_config, enabled, last_run_at, next_run_at, run_count, created_at, tags, source
		 FROM jobs WHERE id=$1`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return Job{}, apierr.NotFound("job %q not found", id)
	}
	if err != nil {
		return Job{}, apierr.Internal(err, "get job")
	}
	return job, nil
}

func (s *Store) List(ctx context.Context) ([]Job, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, description, schedule_kind, schedule_expression, action_kind, action_config, enabled, last_run_at, next_run_at, run_count, created_at, tags, source
		 FROM jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, apierr.Internal(err, "list jobs")
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apierr.Internal(err, "scan job")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Due returns enabled jobs whose next_run_at has passed.
func (s *Store) Due(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, description, schedule_kind, schedule_expression, action_kind, action_config, enabled, last_run_at, next_run_at, run_count, created_at, tags, source
		 FROM jobs WHERE enabled=1 AND next_run_at IS NOT NULL AND next_run_at <= $1`, now.UTC().Unix())
	if err != nil {
		return nil, apierr.Internal(err, "list due jobs")
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apierr.Internal(err, "scan due job")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetEnabled toggles a job, recomputing or clearing next_run_at.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return s.db.DoTxn(ctx, nil, func(ctx context.Context) error {
		job, err := s.getTx(ctx, id)
		if err != nil {
			return err
		}
		var next *int64
		if enabled {
			computed, err := ComputeNextRun(job.ScheduleKind, job.ScheduleExpression, time.Now())
			if err != nil {
				return err
			}
			next = unixPtr(computed)
		}
		_, err = s.db.Exec(ctx, `UPDATE jobs SET enabled=$1, next_run_at=$2 WHERE id=$3`, enabled, next, id)
		return err
	})
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM jobs WHERE id=$1`, id)
	return err
}

// TransitionFired atomically records a fire: run_count+=1, last_run_at=at,
// next_run_at recomputed. Separated from action dispatch per the fire
// loop's decoupling rule (spec.md §4.3 step 1 vs step 2).
func (s *Store) TransitionFired(ctx context.Context, id string, at time.Time) (Job, error) {
	var result Job
	err := s.db.DoTxn(ctx, nil, func(ctx context.Context) error {
		job, err := s.getTx(ctx, id)
		if err != nil {
			return err
		}
		job.RunCount++
		atUnix := at.UTC().Unix()
		job.LastRunAt = &atUnix
		next, err := ComputeNextRun(job.ScheduleKind, job.ScheduleExpression, at)
		if err != nil {
			return err
		}
		job.NextRunAt = unixPtr(next)
		_, err = s.db.Exec(ctx,
			`UPDATE jobs SET run_count=$1, last_run_at=$2, next_run_at=$3 WHERE id=$4`,
			job.RunCount, job.LastRunAt, job.NextRunAt, id,
		)
		if err != nil {
			return err
		}
		result = job
		return nil
	})
	return result, err
}

func (s *Store) getTx(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, name, description, schedule_kind, schedule_expression, action_kind, action_config, enabled, last_run_at, next_run_at, run_count, created_at, tags, source
		 FROM jobs WHERE id=$1`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return Job{}, apierr.NotFound("job %q not found", id)
	}
	if err != nil {
		return Job{}, apierr.Internal(err, "get job in txn")
	}
	return job, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (Job, error) {
	var job Job
	var tagsJSON string
	err := row.Scan(
		&job.ID, &job.Name, &job.Description, &job.ScheduleKind, &job.ScheduleExpression,
		&job.ActionKind, &job.ActionConfig, &job.Enabled, &job.LastRunAt, &job.NextRunAt,
		&job.RunCount, &job.CreatedAt, &tagsJSON, &job.Source,
	)
	if err != nil {
		return Job{}, err
	}
	_ = json.Unmarshal([]byte(tagsJSON), &job.Tags)
	return job, nil
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UTC().Unix()
	return &v
}
