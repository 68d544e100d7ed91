// Package storage owns the sqlite database shared by the memory, todo and
// checkpoint stores, plus the JSONL event log.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// schema is applied on every open; all statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS memory_records (
		id         TEXT PRIMARY KEY,
		scope      TEXT NOT NULL,
		type       TEXT NOT NULL,
		content    TEXT NOT NULL,
		ordinal    INTEGER NOT NULL,
		conv_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_scope_ordinal
		ON memory_records (scope, ordinal)`,
	`CREATE TABLE IF NOT EXISTS todos (
		thread_id TEXT NOT NULL,
		id        TEXT NOT NULL,
		title     TEXT NOT NULL,
		status    TEXT NOT NULL,
		position  INTEGER NOT NULL,
		retries   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (thread_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id  TEXT NOT NULL,
		turn       INTEGER NOT NULL,
		state      TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (thread_id, turn)
	)`,
}

// Open opens (creating if needed) the sqlite database at path and applies
// the schema. The parent directory is created when missing.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// modernc sqlite is not safe for concurrent writers on one connection
	// pool without serialization.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return db, nil
}

// OpenMemory opens an in-memory database, used by tests and ephemeral
// sub-agent threads.
func OpenMemory() (*sql.DB, error) {
	return Open(":memory:")
}
