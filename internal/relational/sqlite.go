package relational

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteDialect uses "?" positional placeholders.
type sqliteDialect struct{}

func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) Name() string            { return "sqlite" }

// SQLiteStore is the embedded backend, a single-process file engine.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a SQLite database file and
// applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("configuration_error: opening sqlite at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite serializes writers; avoid lock contention
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *SQLiteStore) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *SQLiteStore) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *SQLiteStore) Dialect() Dialect { return sqliteDialect{} }

func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQLite)
	return err
}

// sqlTx adapts *sql.Tx to the Tx interface (shared between backends).
type sqlTx struct{ tx *sql.Tx }

func (t *sqlTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}
func (t *sqlTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}
func (t *sqlTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}
func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	owner_id TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	provider TEXT NOT NULL,
	external_id TEXT,
	title TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	conversation_id TEXT,
	type TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence REAL NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	source_message_ids TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	lifecycle_state TEXT NOT NULL,
	last_accessed_at TIMESTAMP NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	importance_score REAL NOT NULL DEFAULT 0.5,
	decay_score REAL NOT NULL DEFAULT 1.0,
	effective_ttl_ms INTEGER NOT NULL DEFAULT 0,
	pinned INTEGER NOT NULL DEFAULT 0,
	pinned_by TEXT,
	pinned_at TIMESTAMP,
	archived_at TIMESTAMP,
	expires_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_memories_workspace ON memories(workspace_id);
CREATE TABLE IF NOT EXISTS archived_memories (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	conversation_id TEXT,
	type TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence REAL NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	source_message_ids TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	lifecycle_state TEXT NOT NULL,
	last_accessed_at TIMESTAMP NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	importance_score REAL NOT NULL DEFAULT 0.5,
	decay_score REAL NOT NULL DEFAULT 1.0,
	effective_ttl_ms INTEGER NOT NULL DEFAULT 0,
	pinned INTEGER NOT NULL DEFAULT 0,
	pinned_by TEXT,
	pinned_at TIMESTAMP,
	archived_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS relationships (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	from_memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	to_memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	relationship_type TEXT NOT NULL,
	confidence REAL NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS archived_relationships (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	from_memory_id TEXT NOT NULL,
	to_memory_id TEXT NOT NULL,
	relationship_type TEXT NOT NULL,
	confidence REAL NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS lifecycle_events (
	id TEXT PRIMARY KEY,
	memory_id TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	previous_state TEXT NOT NULL,
	new_state TEXT NOT NULL,
	reason TEXT NOT NULL,
	triggered_by TEXT NOT NULL,
	user_id TEXT,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lifecycle_events_workspace ON lifecycle_events(workspace_id);
`
