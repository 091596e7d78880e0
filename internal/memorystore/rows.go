package memorystore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"workspacememory/internal/relational"
	"workspacememory/internal/types"
)

const memoryColumns = `id, workspace_id, conversation_id, type, content, confidence, metadata,
	source_message_ids, created_at, updated_at, lifecycle_state, last_accessed_at,
	access_count, importance_score, decay_score, effective_ttl_ms, pinned, pinned_by,
	pinned_at, archived_at, expires_at`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row *sql.Row) (*types.Memory, error)   { return scanMemoryScanner(row) }
func scanMemoryRows(rows *sql.Rows) (*types.Memory, error) { return scanMemoryScanner(rows) }

func scanMemoryScanner(s scanner) (*types.Memory, error) {
	var (
		m                                         types.Memory
		conversationID, pinnedBy                  sql.NullString
		metadataJSON, sourceJSON, lifecycleState   string
		pinnedAt, archivedAt, expiresAt            sql.NullTime
		effectiveTTLMs                             int64
	)
	err := s.Scan(
		&m.ID, &m.WorkspaceID, &conversationID, &m.Type, &m.Content, &m.Confidence, &metadataJSON,
		&sourceJSON, &m.CreatedAt, &m.UpdatedAt, &lifecycleState, &m.LastAccessedAt,
		&m.AccessCount, &m.ImportanceScore, &m.DecayScore, &effectiveTTLMs, &m.Pinned, &pinnedBy,
		&pinnedAt, &archivedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	m.ConversationID = conversationID.String
	m.PinnedBy = pinnedBy.String
	m.LifecycleState = types.LifecycleState(lifecycleState)
	m.EffectiveTTL = time.Duration(effectiveTTLMs) * time.Millisecond
	if pinnedAt.Valid {
		m.PinnedAt = pinnedAt.Time
	}
	if archivedAt.Valid {
		m.ArchivedAt = archivedAt.Time
	}
	if expiresAt.Valid {
		m.ExpiresAt = expiresAt.Time
	}

	if err := json.Unmarshal([]byte(metadataJSON), &m.Metadata); err != nil {
		return nil, fmt.Errorf("parse_error: decoding memory metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(sourceJSON), &m.SourceMessageIDs); err != nil {
		return nil, fmt.Errorf("parse_error: decoding source_message_ids: %w", err)
	}
	return &m, nil
}

func orEmptyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// ph builds a dialect-correct, comma-separated placeholder list for bind
// positions start through count inclusive (count is the last position,
// not a length).
func ph(db interface{ Dialect() relational.Dialect }, start, count int) string {
	d := db.Dialect()
	parts := make([]string, 0, count-start+1)
	for i := start; i <= count; i++ {
		parts = append(parts, d.Placeholder(i))
	}
	return strings.Join(parts, ", ")
}

// typeInClause appends a parameterized "AND type IN (...)" fragment and
// extends args with the type values.
func typeInClause(db interface{ Dialect() relational.Dialect }, types []string, args *[]interface{}) string {
	d := db.Dialect()
	placeholders := make([]string, len(types))
	for i, t := range types {
		*args = append(*args, t)
		placeholders[i] = d.Placeholder(len(*args))
	}
	return " AND type IN (" + strings.Join(placeholders, ", ") + ")"
}
