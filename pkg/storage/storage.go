// Package storage opens the single embedded SQLite database every store
// (event log, outbox, sessions, tasks, jobs) shares, and runs its
// migrations. Modeled on the teacher's use of go.mau.fi/util/dbutil to
// wrap database/sql with query helpers and dialect awareness.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Open opens the SQLite database at path with WAL journaling and a
// bounded busy timeout, per the data model's storage requirements, and
// applies any pending migrations.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*dbutil.Database, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	raw, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	raw.SetMaxOpenConns(1) // single-writer SQLite; WAL still allows concurrent readers

	db, err := dbutil.NewWithDB(raw, "sqlite3")
	if err != nil {
		return nil, fmt.Errorf("wrap sqlite: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// migrate applies every embedded migration not yet recorded in
// schema_migrations, in ascending numeric order, each inside its own
// transaction — the same embed-then-apply shape as the teacher's
// pkg/memory/migrations package, minus the mautrix-specific upgrades
// registry it builds on (see DESIGN.md).
func migrate(ctx context.Context, db *dbutil.Database) error {
	if _, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at INTEGER NOT NULL)`); err != nil {
		return err
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return err
	}
	type migration struct {
		version int
		name    string
	}
	var ordered []migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 2)
		version, convErr := strconv.Atoi(parts[0])
		if convErr != nil {
			continue
		}
		ordered = append(ordered, migration{version: version, name: e.Name()})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].version < ordered[j].version })

	for _, m := range ordered {
		var applied int
		row := db.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, m.version)
		if err := row.Scan(&applied); err != nil {
			return err
		}
		if applied > 0 {
			continue
		}
		sqlBytes, err := migrationFiles.ReadFile("migrations/" + m.name)
		if err != nil {
			return err
		}
		err = db.DoTxn(ctx, nil, func(ctx context.Context) error {
			if _, err := db.Exec(ctx, string(sqlBytes)); err != nil {
				return fmt.Errorf("apply %s: %w", m.name, err)
			}
			_, err := db.Exec(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, strftime('%s','now'))`, m.version)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}
