// Package db wires the Store's sqlite-backed schema, generalizing the
// teacher's pkg/textfs.Store connection pattern (a dbutil.Database over
// mattn/go-sqlite3) from a single memory-files table into the fabric's full
// entity set.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/util/dbutil"
)

// Open opens (or creates) the sqlite database at path and applies the
// schema. path may be ":memory:" for tests.
func Open(ctx context.Context, path string) (*dbutil.Database, error) {
	raw, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	db, err := dbutil.NewWithDB(raw, "sqlite3")
	if err != nil {
		return nil, fmt.Errorf("db: wrap sqlite: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		return nil, fmt.Errorf("db: apply schema: %w", err)
	}
	return db, nil
}

func applySchema(ctx context.Context, db *dbutil.Database) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		public_id TEXT NOT NULL UNIQUE,
		principal TEXT NOT NULL,
		title TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		source_type TEXT NOT NULL DEFAULT '',
		public INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		version INTEGER NOT NULL DEFAULT 1,
		external_session_key TEXT,
		message_count INTEGER NOT NULL DEFAULT 0,
		last_message_at TEXT,
		last_role TEXT,
		agent_kind TEXT NOT NULL DEFAULT '',
		agent_version TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_external_key ON entries(principal, external_session_key) WHERE external_session_key IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id TEXT NOT NULL REFERENCES entries(id),
		message_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TEXT,
		source TEXT NOT NULL DEFAULT '',
		seq INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_entry ON chat_messages(entry_id, seq)`,

	`CREATE TABLE IF NOT EXISTS reactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target_message_id TEXT NOT NULL,
		emoji TEXT NOT NULL,
		from_user TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		entry_id TEXT,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		chunk_index INTEGER NOT NULL DEFAULT 0,
		source_agent TEXT NOT NULL,
		derived_from TEXT,
		depth INTEGER NOT NULL DEFAULT 0,
		valid_until TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_owner_hash ON memories(owner, content_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_derived_from ON memories(derived_from)`,

	`CREATE TABLE IF NOT EXISTS memory_chain (
		owner TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		kind TEXT NOT NULL DEFAULT 'create',
		entry_id TEXT NOT NULL,
		prev_hash TEXT NOT NULL DEFAULT '',
		this_hash TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (owner, sequence)
	)`,

	`CREATE TABLE IF NOT EXISTS relationships (
		id TEXT PRIMARY KEY,
		source_entry_id TEXT NOT NULL,
		target_entry_id TEXT NOT NULL,
		relationship_type TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		UNIQUE(source_entry_id, target_entry_id, relationship_type)
	)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		person_id TEXT,
		gtd_bucket TEXT NOT NULL DEFAULT 'inbox',
		claimed_by TEXT,
		claimed_at TEXT,
		assignee_kind TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS import_files (
		external_session_key TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		imported_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS extraction_jobs (
		entry_id TEXT PRIMARY KEY,
		enqueued_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS trusted_memory_owners (
		owner TEXT PRIMARY KEY
	)`,
}
