package eventlog

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"go.mau.fi/util/dbutil"

	"github.com/nicdavidson/homestead/pkg/apierr"
)

// Store is the EL persistence layer: cheap append, indexed query, and a
// per-source/per-level summary, backed by the shared SQLite database.
type Store struct {
	db *dbutil.Database
}

func NewStore(db *dbutil.Database) *Store {
	return &Store{db: db}
}

// Append inserts one record. Cheap and append-only; no update path.
func (s *Store) Append(ctx context.Context, r Record) error {
	var payloadJSON *string
	if r.Payload != nil {
		b, err := json.Marshal(r.Payload)
		if err != nil {
			return apierr.Internal(err, "marshal event payload")
		}
		str := string(b)
		payloadJSON = &str
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO log_records (timestamp, level, source, message, payload, session_id, chat_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.Timestamp, r.Level, r.Source, r.Message, payloadJSON, r.SessionID, r.ChatID,
	)
	if err != nil {
		return apierr.Internal(err, "append log record")
	}
	return nil
}

// Query returns records matching opts, newest-first, per spec.md §4.6.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]Record, error) {
	limit := opts.Limit
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	query := strings.Builder{}
	query.WriteString(`SELECT id, timestamp, level, source, message, payload, session_id, chat_id FROM log_records WHERE 1=1`)
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}
	if opts.Since != nil {
		query.WriteString(" AND timestamp >= " + arg(*opts.Since))
	}
	if opts.Until != nil {
		query.WriteString(" AND timestamp <= " + arg(*opts.Until))
	}
	if opts.Level != "" {
		query.WriteString(" AND level = " + arg(string(opts.Level)))
	}
	if opts.SourcePrefix != "" {
		query.WriteString(" AND source LIKE " + arg(opts.SourcePrefix+"%"))
	}
	if opts.Substring != "" {
		query.WriteString(" AND message LIKE " + arg("%"+opts.Substring+"%"))
	}
	query.WriteString(" ORDER BY timestamp DESC, id DESC LIMIT " + arg(limit))

	rows, err := s.db.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, apierr.Internal(err, "query log records")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var payload *string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Level, &r.Source, &r.Message, &payload, &r.SessionID, &r.ChatID); err != nil {
			return nil, apierr.Internal(err, "scan log record")
		}
		if payload != nil {
			_ = json.Unmarshal([]byte(*payload), &r.Payload)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary returns per-source, per-level counts since the given timestamp.
func (s *Store) Summary(ctx context.Context, since int64) (map[string]map[string]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT source, level, COUNT(*) FROM log_records WHERE timestamp >= $1 GROUP BY source, level`, since)
	if err != nil {
		return nil, apierr.Internal(err, "summarize log records")
	}
	defer rows.Close()

	summary := make(map[string]map[string]int)
	for rows.Next() {
		var source, level string
		var count int
		if err := rows.Scan(&source, &level, &count); err != nil {
			return nil, apierr.Internal(err, "scan log summary row")
		}
		if summary[source] == nil {
			summary[source] = make(map[string]int)
		}
		summary[source][level] = count
	}
	return summary, rows.Err()
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
