package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/nicdavidson/homestead/pkg/apierr"
)

// backupFile is the on-disk shape for a job backup, adapted from the
// teacher's pkg/cron/store.go file-store record. Homestead keeps jobs in
// SQLite as the system of record; this format exists only for
// operator-facing export/import (a human-editable snapshot, comments and
// all, rather than a second source of truth).
type backupFile struct {
	Jobs []Job `json:"jobs"`
}

// Export serializes every job to JSON5, in the teacher's indented
// MarshalIndent style, for an operator to inspect or archive outside the
// database.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	jobs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json5.MarshalIndent(backupFile{Jobs: jobs}, "", "  ")
	if err != nil {
		return nil, apierr.Internal(err, "marshal job backup")
	}
	return data, nil
}

// Import parses a JSON5 job backup (tolerating the trailing commas and
// comments operators tend to leave in hand-edited files) and recreates
// each job via Create, so the usual validation rules apply. It returns
// the count of jobs successfully recreated; the first validation failure
// aborts the remainder.
func (s *Store) Import(ctx context.Context, data []byte) (int, error) {
	var parsed backupFile
	if err := json5.Unmarshal(data, &parsed); err != nil {
		return 0, apierr.Wrap(apierr.CodeValidation, "parse job backup", err)
	}
	for i, job := range parsed.Jobs {
		job.ID = uuid.New().String()
		if _, err := s.Create(ctx, job); err != nil {
			return i, fmt.Errorf("importing job %q: %w", job.Name, err)
		}
	}
	return len(parsed.Jobs), nil
}
