// Package storage provides the shared SQLite database used by the task and
// history stores, plus the JSONL event log.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrUnavailable wraps any SQLite failure so callers can treat storage
// problems uniformly, without inspecting driver errors.
var ErrUnavailable = fmt.Errorf("storage unavailable")

// Open opens (creating if needed) the tally database at path and applies the
// schema. WAL mode keeps concurrent readers from blocking the single writer.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// The sqlite driver is single-writer; capping the pool at one connection
	// avoids SQLITE_BUSY during concurrent appends.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		title            TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		due_date         TEXT,
		priority         TEXT NOT NULL DEFAULT 'medium',
		category         TEXT NOT NULL DEFAULT '',
		completed        INTEGER NOT NULL DEFAULT 0,
		completion_notes TEXT NOT NULL DEFAULT '',
		completed_at     TEXT,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks (user_id, completed);`,

	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		position        INTEGER NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		tool_calls      TEXT,
		tool_results    TEXT,
		created_at      TEXT NOT NULL,
		UNIQUE (user_id, conversation_id, position)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages (user_id, conversation_id, position);`,
}

// Ping verifies the database is reachable.
func Ping(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
