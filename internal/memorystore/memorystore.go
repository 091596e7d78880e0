// Package memorystore implements the user-facing storage API: users,
// workspaces, conversations, messages, memories, relationships, and
// search, combining the relational and vector adapters behind a single
// façade over workspace-scoped operations.
package memorystore

import (
	"context"
	"encoding/json"
	"time"

	"workspacememory/internal/apperrors"
	"workspacememory/internal/idgen"
	"workspacememory/internal/logging"
	"workspacememory/internal/relational"
	"workspacememory/internal/types"
	"workspacememory/internal/vector"
)

// Store is the Memory Store façade: relational persistence paired with a
// vector index, enforcing workspace scoping and cross-store consistency.
type Store struct {
	db     relational.Store
	vec    vector.Store
	log    logging.Logger
	access *AccessTracker
}

// New builds a Store over the given relational and vector adapters. log
// may be nil (defaults to a no-op logger).
func New(db relational.Store, vec vector.Store, log logging.Logger) *Store {
	if log == nil {
		log = logging.Noop()
	}
	s := &Store{db: db, vec: vec, log: log}
	s.access = NewAccessTracker(s, log)
	return s
}

// Close stops the background access tracker. Callers should call this
// during shutdown to drain the queue's worker goroutine.
func (s *Store) Close() { s.access.Stop() }

// --- Users & workspaces -----------------------------------------------

// CreateUser inserts a new user with a random id.
func (s *Store) CreateUser(ctx context.Context, email, name string) (*types.User, error) {
	now := time.Now().UTC()
	u := &types.User{ID: idgen.New(), Email: email, Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, created_at, updated_at) VALUES (`+ph(s.db, 1, 5)+`)`,
		u.ID, u.Email, u.Name, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, relational.ClassifyError(err)
	}
	return u, nil
}

// CreateWorkspace inserts a new workspace owned by ownerID.
func (s *Store) CreateWorkspace(ctx context.Context, name string, wsType types.WorkspaceType, ownerID string) (*types.Workspace, error) {
	now := time.Now().UTC()
	w := &types.Workspace{ID: idgen.New(), Name: name, Type: wsType, OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspaces (id, name, type, owner_id, created_at, updated_at) VALUES (`+ph(s.db, 1, 6)+`)`,
		w.ID, w.Name, w.Type, w.OwnerID, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return nil, relational.ClassifyError(err)
	}
	return w, nil
}

func (s *Store) workspaceExists(ctx context.Context, workspaceID string) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM workspaces WHERE id = `+ph(s.db, 1, 1), workspaceID).Scan(&id)
	if err != nil {
		if apperrors.IsNotFound(relational.ClassifyError(err)) {
			return false, nil
		}
		return false, relational.ClassifyError(err)
	}
	return true, nil
}

func (s *Store) conversationBelongsToWorkspace(ctx context.Context, conversationID, workspaceID string) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE id = `+ph(s.db, 1, 1)+` AND workspace_id = `+ph(s.db, 2, 2),
		conversationID, workspaceID).Scan(&id)
	if err != nil {
		if apperrors.IsNotFound(relational.ClassifyError(err)) {
			return false, nil
		}
		return false, relational.ClassifyError(err)
	}
	return true, nil
}

// --- Memories -----------------------------------------------------------

// CreateMemoryInput is the create_memory operation's input.
type CreateMemoryInput struct {
	ID             string // optional: caller-supplied deterministic id
	WorkspaceID    string
	ConversationID string
	Type           string
	Content        string
	Confidence     float64
	Metadata       map[string]interface{}
	Embedding      []float32
	SourceMessageIDs []string
}

// CreateMemory validates preconditions, inserts the relational row, and
// (if an embedding was supplied) upserts the vector index, applying a
// compensating delete if the vector upsert fails so the two stores never
// drift out of sync.
func (s *Store) CreateMemory(ctx context.Context, in CreateMemoryInput) (*types.Memory, error) {
	if in.Confidence < 0 || in.Confidence > 1 {
		return nil, apperrors.Validation("confidence", "must be in [0,1]")
	}
	if in.Type == "" {
		return nil, apperrors.Validation("type", "must not be empty")
	}
	if in.Content == "" {
		return nil, apperrors.Validation("content", "must not be empty")
	}
	ok, err := s.workspaceExists(ctx, in.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NotFound("workspace", in.WorkspaceID)
	}
	if in.ConversationID != "" {
		ok, err := s.conversationBelongsToWorkspace(ctx, in.ConversationID, in.WorkspaceID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.Validation("conversation_id", "conversation does not belong to workspace")
		}
	}

	id := in.ID
	if id == "" {
		id = idgen.MemoryID(in.Type, in.Content, in.WorkspaceID, "")
	}
	now := time.Now().UTC()
	m := &types.Memory{
		ID:               id,
		WorkspaceID:      in.WorkspaceID,
		ConversationID:   in.ConversationID,
		Type:             in.Type,
		Content:          in.Content,
		Confidence:       in.Confidence,
		Metadata:         in.Metadata,
		SourceMessageIDs: in.SourceMessageIDs,
		CreatedAt:        now,
		UpdatedAt:        now,
		LifecycleState:   types.StateActive,
		LastAccessedAt:   now,
		AccessCount:      0,
		ImportanceScore:  0.5,
		DecayScore:       1.0,
		Pinned:           false,
	}

	if err := s.insertMemory(ctx, "memories", m); err != nil {
		return nil, err
	}

	if len(in.Embedding) > 0 {
		err := s.vec.Upsert(ctx, m.ID, in.Embedding, vector.Metadata{
			WorkspaceID: m.WorkspaceID, Type: m.Type, CreatedAt: m.CreatedAt,
		})
		if err != nil {
			// Compensating action: the vector upsert failed, so the
			// relational insert must not survive either.
			if delErr := s.deleteMemoryRow(ctx, "memories", m.ID); delErr != nil {
				s.log.Error("compensating delete failed after vector upsert error", "memory_id", m.ID, "error", delErr)
			}
			return nil, apperrors.VectorStore("failed to upsert embedding", err)
		}
	}

	return m, nil
}

func (s *Store) insertMemory(ctx context.Context, table string, m *types.Memory) error {
	metadataJSON, err := json.Marshal(orEmptyMap(m.Metadata))
	if err != nil {
		return apperrors.Validation("metadata", "not JSON-serializable")
	}
	sourceJSON, err := json.Marshal(orEmptySlice(m.SourceMessageIDs))
	if err != nil {
		return apperrors.Validation("source_message_ids", "not JSON-serializable")
	}

	query := `INSERT INTO ` + table + ` (
		id, workspace_id, conversation_id, type, content, confidence, metadata,
		source_message_ids, created_at, updated_at, lifecycle_state,
		last_accessed_at, access_count, importance_score, decay_score,
		effective_ttl_ms, pinned, pinned_by, pinned_at, archived_at, expires_at
	) VALUES (` + ph(s.db, 1, 21) + `)`

	_, err = s.db.ExecContext(ctx, query,
		m.ID, m.WorkspaceID, nullableString(m.ConversationID), m.Type, m.Content, m.Confidence,
		string(metadataJSON), string(sourceJSON), m.CreatedAt, m.UpdatedAt, string(m.LifecycleState),
		m.LastAccessedAt, m.AccessCount, m.ImportanceScore, m.DecayScore,
		m.EffectiveTTL.Milliseconds(), m.Pinned, nullableString(m.PinnedBy), nullableTime(m.PinnedAt),
		nullableTime(m.ArchivedAt), nullableTime(m.ExpiresAt))
	if err != nil {
		return relational.ClassifyError(err)
	}
	return nil
}

func (s *Store) deleteMemoryRow(ctx context.Context, table, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = `+ph(s.db, 1, 1), id)
	if err != nil {
		return relational.ClassifyError(err)
	}
	return nil
}

// GetMemory fetches a memory by id scoped to workspaceID; a mismatch or
// miss both return not_found. On hit, an access-tracking update is
// enqueued fire-and-forget.
func (s *Store) GetMemory(ctx context.Context, id, workspaceID string) (*types.Memory, error) {
	m, err := s.fetchMemory(ctx, "memories", id, workspaceID)
	if err != nil {
		return nil, err
	}
	s.access.Track(id, workspaceID)
	return m, nil
}

func (s *Store) fetchMemory(ctx context.Context, table, id, workspaceID string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM `+table+` WHERE id = `+ph(s.db, 1, 1)+` AND workspace_id = `+ph(s.db, 2, 2),
		id, workspaceID)
	m, err := scanMemory(row)
	if err != nil {
		if apperrors.IsNotFound(relational.ClassifyError(err)) {
			return nil, apperrors.NotFound("memory", id)
		}
		return nil, relational.ClassifyError(err)
	}
	return m, nil
}

// ListMemories returns memories in a workspace matching filter.
func (s *Store) ListMemories(ctx context.Context, workspaceID string, filter types.ListFilter) ([]types.Memory, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	order := "DESC"
	if filter.Order == types.SortCreatedAtAsc {
		order = "ASC"
	}

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE workspace_id = ` + ph(s.db, 1, 1)
	args := []interface{}{workspaceID}
	if len(filter.Types) > 0 {
		query += typeInClause(s.db, filter.Types, &args)
	}
	query += ` ORDER BY created_at ` + order + ` LIMIT ` + ph(s.db, len(args)+1, len(args)+1) + ` OFFSET ` + ph(s.db, len(args)+2, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, relational.ClassifyError(err)
	}
	defer rows.Close()

	var out []types.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, relational.ClassifyError(err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// DeleteMemory deletes the relational row (cascading relationships) and
// best-effort deletes the vector entry; vector failure is logged but does
// not fail the overall delete.
func (s *Store) DeleteMemory(ctx context.Context, id, workspaceID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE id = `+ph(s.db, 1, 1)+` AND workspace_id = `+ph(s.db, 2, 2),
		id, workspaceID)
	if err != nil {
		return relational.ClassifyError(err)
	}
	if err := relational.RowsAffectedOrNotFound(res, "memory", id); err != nil {
		return err
	}
	if err := s.vec.Delete(ctx, id); err != nil {
		s.log.Warn("vector delete failed during memory delete", "memory_id", id, "error", err)
	}
	return nil
}

// --- Relationships -------------------------------------------------------

// CreateRelationshipInput is create_relationship's input.
type CreateRelationshipInput struct {
	FromMemoryID     string
	ToMemoryID       string
	RelationshipType string
	Confidence       float64
}

// CreateRelationship validates both endpoints exist and share a workspace
// before inserting, rejecting cross-workspace attempts as validation
// errors.
func (s *Store) CreateRelationship(ctx context.Context, workspaceID string, in CreateRelationshipInput) (*types.Relationship, error) {
	fromWS, err := s.memoryWorkspace(ctx, in.FromMemoryID)
	if err != nil {
		return nil, err
	}
	toWS, err := s.memoryWorkspace(ctx, in.ToMemoryID)
	if err != nil {
		return nil, err
	}
	if fromWS != workspaceID || toWS != workspaceID || fromWS != toWS {
		return nil, apperrors.Validation("workspace_id", "relationship endpoints must share the caller's workspace")
	}

	r := &types.Relationship{
		ID:               idgen.New(),
		WorkspaceID:      workspaceID,
		FromMemoryID:     in.FromMemoryID,
		ToMemoryID:       in.ToMemoryID,
		RelationshipType: in.RelationshipType,
		Confidence:       in.Confidence,
		CreatedAt:        time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO relationships (id, workspace_id, from_memory_id, to_memory_id, relationship_type, confidence, created_at) VALUES (`+ph(s.db, 1, 7)+`)`,
		r.ID, r.WorkspaceID, r.FromMemoryID, r.ToMemoryID, r.RelationshipType, r.Confidence, r.CreatedAt)
	if err != nil {
		return nil, relational.ClassifyError(err)
	}
	return r, nil
}

func (s *Store) memoryWorkspace(ctx context.Context, memoryID string) (string, error) {
	var ws string
	err := s.db.QueryRowContext(ctx, `SELECT workspace_id FROM memories WHERE id = `+ph(s.db, 1, 1), memoryID).Scan(&ws)
	if err != nil {
		if apperrors.IsNotFound(relational.ClassifyError(err)) {
			return "", apperrors.NotFound("memory", memoryID)
		}
		return "", relational.ClassifyError(err)
	}
	return ws, nil
}

// GetMemoryRelationships returns relationships touching memoryID, scoped
// to workspaceID on both endpoints.
func (s *Store) GetMemoryRelationships(ctx context.Context, memoryID, workspaceID string) ([]types.Relationship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.workspace_id, r.from_memory_id, r.to_memory_id, r.relationship_type, r.confidence, r.created_at
		 FROM relationships r
		 JOIN memories mf ON mf.id = r.from_memory_id AND mf.workspace_id = `+ph(s.db, 1, 1)+`
		 JOIN memories mt ON mt.id = r.to_memory_id AND mt.workspace_id = `+ph(s.db, 2, 2)+`
		 WHERE r.workspace_id = `+ph(s.db, 3, 3)+` AND (r.from_memory_id = `+ph(s.db, 4, 4)+` OR r.to_memory_id = `+ph(s.db, 5, 5)+`)`,
		workspaceID, workspaceID, workspaceID, memoryID, memoryID)
	if err != nil {
		return nil, relational.ClassifyError(err)
	}
	defer rows.Close()

	var out []types.Relationship
	for rows.Next() {
		var r types.Relationship
		if err := rows.Scan(&r.ID, &r.WorkspaceID, &r.FromMemoryID, &r.ToMemoryID, &r.RelationshipType, &r.Confidence, &r.CreatedAt); err != nil {
			return nil, relational.ClassifyError(err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
