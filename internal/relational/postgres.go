package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
)

// postgresDialect uses "$N" positional placeholders.
type postgresDialect struct{}

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (postgresDialect) Name() string              { return "postgres" }

// PostgresStore is the networked backend, for multi-process deployments.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to PostgreSQL via dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("configuration_error: opening postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database: pinging postgres: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *PostgresStore) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *PostgresStore) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *PostgresStore) Dialect() Dialect { return postgresDialect{} }

func (s *PostgresStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaPostgres)
	return err
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	owner_id TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	provider TEXT NOT NULL,
	external_id TEXT,
	title TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	conversation_id TEXT,
	type TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	source_message_ids JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	lifecycle_state TEXT NOT NULL,
	last_accessed_at TIMESTAMPTZ NOT NULL,
	access_count BIGINT NOT NULL DEFAULT 0,
	importance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	decay_score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	effective_ttl_ms BIGINT NOT NULL DEFAULT 0,
	pinned BOOLEAN NOT NULL DEFAULT FALSE,
	pinned_by TEXT,
	pinned_at TIMESTAMPTZ,
	archived_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_memories_workspace ON memories(workspace_id);
CREATE TABLE IF NOT EXISTS archived_memories (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	conversation_id TEXT,
	type TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	source_message_ids JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	lifecycle_state TEXT NOT NULL,
	last_accessed_at TIMESTAMPTZ NOT NULL,
	access_count BIGINT NOT NULL DEFAULT 0,
	importance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	decay_score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	effective_ttl_ms BIGINT NOT NULL DEFAULT 0,
	pinned BOOLEAN NOT NULL DEFAULT FALSE,
	pinned_by TEXT,
	pinned_at TIMESTAMPTZ,
	archived_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS relationships (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	from_memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	to_memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	relationship_type TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS archived_relationships (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	from_memory_id TEXT NOT NULL,
	to_memory_id TEXT NOT NULL,
	relationship_type TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
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
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lifecycle_events_workspace ON lifecycle_events(workspace_id);
`
