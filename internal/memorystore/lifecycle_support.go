package memorystore

import (
	"context"
	"encoding/json"
	"time"

	"workspacememory/internal/apperrors"
	"workspacememory/internal/idgen"
	"workspacememory/internal/relational"
	"workspacememory/internal/types"
)

// ListEvaluable returns every non-pinned, active-table memory in a
// workspace, for the lifecycle engine's batch evaluator to classify.
func (s *Store) ListEvaluable(ctx context.Context, workspaceID string) ([]types.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE workspace_id = `+ph(s.db, 1, 1)+` AND pinned = `+ph(s.db, 2, 2),
		workspaceID, false)
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

// ListArchived returns every still-archived (not yet expired) row in a
// workspace, for the lifecycle engine's archived -> expired sweep.
func (s *Store) ListArchived(ctx context.Context, workspaceID string) ([]types.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM archived_memories WHERE workspace_id = `+ph(s.db, 1, 1)+` AND lifecycle_state = `+ph(s.db, 2, 2),
		workspaceID, string(types.StateArchived))
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

// UpdateLifecycle writes the lifecycle_state and decay_score fields
// (write-coalescing: callers only invoke this when something actually
// changed).
func (s *Store) UpdateLifecycle(ctx context.Context, id, workspaceID string, state types.LifecycleState, decayScore float64) error {
	d := s.db.Dialect()
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET lifecycle_state = `+d.Placeholder(1)+`, decay_score = `+d.Placeholder(2)+`, updated_at = `+d.Placeholder(3)+
			` WHERE id = `+d.Placeholder(4)+` AND workspace_id = `+d.Placeholder(5),
		string(state), decayScore, time.Now().UTC(), id, workspaceID)
	if err != nil {
		return relational.ClassifyError(err)
	}
	return relational.RowsAffectedOrNotFound(res, "memory", id)
}

// Pin sets pinned=true, lifecycle_state=pinned, the "any (not pinned) ->
// pinned" user-triggered transition.
func (s *Store) Pin(ctx context.Context, id, workspaceID, pinnedBy string) error {
	d := s.db.Dialect()
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET pinned = `+d.Placeholder(1)+`, lifecycle_state = `+d.Placeholder(2)+`, pinned_by = `+d.Placeholder(3)+`, pinned_at = `+d.Placeholder(4)+`, updated_at = `+d.Placeholder(5)+
			` WHERE id = `+d.Placeholder(6)+` AND workspace_id = `+d.Placeholder(7),
		true, string(types.StatePinned), pinnedBy, now, now, id, workspaceID)
	if err != nil {
		return relational.ClassifyError(err)
	}
	return relational.RowsAffectedOrNotFound(res, "memory", id)
}

// Unpin clears pinned and sets the post-unpin state to target (chosen by
// the caller from the current decay score, so the state transition never
// hides a decision inside this method).
func (s *Store) Unpin(ctx context.Context, id, workspaceID string, target types.LifecycleState) error {
	d := s.db.Dialect()
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET pinned = `+d.Placeholder(1)+`, lifecycle_state = `+d.Placeholder(2)+`, pinned_by = NULL, pinned_at = NULL, updated_at = `+d.Placeholder(3)+
			` WHERE id = `+d.Placeholder(4)+` AND workspace_id = `+d.Placeholder(5),
		false, string(target), now, id, workspaceID)
	if err != nil {
		return relational.ClassifyError(err)
	}
	return relational.RowsAffectedOrNotFound(res, "memory", id)
}

// AppendLifecycleEvent inserts an audit row.
func (s *Store) AppendLifecycleEvent(ctx context.Context, ev types.LifecycleEvent) error {
	if ev.ID == "" {
		ev.ID = idgen.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	metadataJSON, err := json.Marshal(orEmptyMap(ev.Metadata))
	if err != nil {
		return apperrors.Validation("metadata", "not JSON-serializable")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events (id, memory_id, workspace_id, previous_state, new_state, reason, triggered_by, user_id, metadata, created_at) VALUES (`+ph(s.db, 1, 10)+`)`,
		ev.ID, ev.MemoryID, ev.WorkspaceID, string(ev.PreviousState), string(ev.NewState), ev.Reason,
		string(ev.TriggeredBy), nullableString(ev.UserID), string(metadataJSON), ev.CreatedAt)
	if err != nil {
		return relational.ClassifyError(err)
	}
	return nil
}

// CountRelationships returns how many relationship rows touch memoryID,
// an input to the importance scorer.
func (s *Store) CountRelationships(ctx context.Context, memoryID string) (int, error) {
	d := s.db.Dialect()
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM relationships WHERE from_memory_id = `+d.Placeholder(1)+` OR to_memory_id = `+d.Placeholder(2),
		memoryID, memoryID).Scan(&count)
	if err != nil {
		return 0, relational.ClassifyError(err)
	}
	return count, nil
}

// ListWorkspaceIDs pages through every distinct workspace id, for the
// background loop to iterate workspaces in batches.
func (s *Store) ListWorkspaceIDs(ctx context.Context, limit, offset int) ([]string, error) {
	d := s.db.Dialect()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM workspaces ORDER BY id LIMIT `+d.Placeholder(1)+` OFFSET `+d.Placeholder(2),
		limit, offset)
	if err != nil {
		return nil, relational.ClassifyError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, relational.ClassifyError(err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ArchiveMemory implements the archival procedure: read
// the row, insert into archived_memories, delete the vector entry
// (warn-and-continue on failure), delete the active row, append a
// LifecycleEvent, and preserve relationships by copying them into
// archived_relationships (this implementation's choice for Open Question
// 1, see DESIGN.md).
func (s *Store) ArchiveMemory(ctx context.Context, id, workspaceID, reason string, triggeredBy types.TriggerSource, userID string) error {
	m, err := s.fetchMemory(ctx, "memories", id, workspaceID)
	if err != nil {
		return err
	}
	prevState := m.LifecycleState
	now := time.Now().UTC()
	m.LifecycleState = types.StateArchived
	m.ArchivedAt = now

	if err := s.insertMemory(ctx, "archived_memories", m); err != nil {
		return err
	}

	if err := s.vec.Delete(ctx, id); err != nil {
		s.log.Warn("vector delete failed during archive", "memory_id", id, "error", err)
	}

	if err := s.copyRelationshipsToArchive(ctx, id, workspaceID); err != nil {
		s.log.Warn("failed to copy relationships to archive", "memory_id", id, "error", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = `+ph(s.db, 1, 1), id); err != nil {
		// Rollback the archived insert so we don't end up with the memory
		// in both tables.
		if _, delErr := s.db.ExecContext(ctx, `DELETE FROM archived_memories WHERE id = `+ph(s.db, 1, 1), id); delErr != nil {
			s.log.Error("failed to rollback archived insert after delete failure", "memory_id", id, "error", delErr)
		}
		return relational.ClassifyError(err)
	}

	return s.AppendLifecycleEvent(ctx, types.LifecycleEvent{
		MemoryID: id, WorkspaceID: workspaceID, PreviousState: prevState, NewState: types.StateArchived,
		Reason: reason, TriggeredBy: triggeredBy, UserID: userID,
	})
}

func (s *Store) copyRelationshipsToArchive(ctx context.Context, memoryID, workspaceID string) error {
	d := s.db.Dialect()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, from_memory_id, to_memory_id, relationship_type, confidence, created_at
		 FROM relationships WHERE from_memory_id = `+d.Placeholder(1)+` OR to_memory_id = `+d.Placeholder(2),
		memoryID, memoryID)
	if err != nil {
		return relational.ClassifyError(err)
	}
	defer rows.Close()

	var rels []types.Relationship
	for rows.Next() {
		var r types.Relationship
		if err := rows.Scan(&r.ID, &r.WorkspaceID, &r.FromMemoryID, &r.ToMemoryID, &r.RelationshipType, &r.Confidence, &r.CreatedAt); err != nil {
			return relational.ClassifyError(err)
		}
		rels = append(rels, r)
	}
	if err := rows.Err(); err != nil {
		return relational.ClassifyError(err)
	}

	for _, r := range rels {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO archived_relationships (id, workspace_id, from_memory_id, to_memory_id, relationship_type, confidence, created_at) VALUES (`+ph(s.db, 1, 7)+`)`,
			r.ID, r.WorkspaceID, r.FromMemoryID, r.ToMemoryID, r.RelationshipType, r.Confidence, r.CreatedAt)
		if err != nil {
			return relational.ClassifyError(err)
		}
	}
	_ = workspaceID
	return nil
}

// RestoreMemory inverts ArchiveMemory: moves the row back to memories,
// resets decay_score=1.0, increments access_count, clears pin/archival
// fields, restores archived relationships, and emits an event. The
// restored memory is not re-embedded here; callers who need vector
// search participation must re-embed and upsert separately.
func (s *Store) RestoreMemory(ctx context.Context, id, workspaceID string) (*types.Memory, error) {
	m, err := s.fetchMemory(ctx, "archived_memories", id, workspaceID)
	if err != nil {
		return nil, err
	}
	prevState := m.LifecycleState
	m.LifecycleState = types.StateActive
	m.DecayScore = 1.0
	m.AccessCount++
	m.ArchivedAt = time.Time{}
	m.Pinned = false
	m.PinnedBy = ""
	m.PinnedAt = time.Time{}
	m.UpdatedAt = time.Now().UTC()

	if err := s.insertMemory(ctx, "memories", m); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM archived_memories WHERE id = `+ph(s.db, 1, 1), id); err != nil {
		return nil, relational.ClassifyError(err)
	}

	if err := s.restoreArchivedRelationships(ctx, id); err != nil {
		s.log.Warn("failed to restore archived relationships", "memory_id", id, "error", err)
	}

	if err := s.AppendLifecycleEvent(ctx, types.LifecycleEvent{
		MemoryID: id, WorkspaceID: workspaceID, PreviousState: prevState, NewState: types.StateActive,
		Reason: "restored", TriggeredBy: types.TriggerUser,
	}); err != nil {
		s.log.Warn("failed to append restore event", "memory_id", id, "error", err)
	}

	return m, nil
}

func (s *Store) restoreArchivedRelationships(ctx context.Context, memoryID string) error {
	d := s.db.Dialect()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, from_memory_id, to_memory_id, relationship_type, confidence, created_at
		 FROM archived_relationships WHERE from_memory_id = `+d.Placeholder(1)+` OR to_memory_id = `+d.Placeholder(2),
		memoryID, memoryID)
	if err != nil {
		return relational.ClassifyError(err)
	}
	defer rows.Close()

	var rels []types.Relationship
	for rows.Next() {
		var r types.Relationship
		if err := rows.Scan(&r.ID, &r.WorkspaceID, &r.FromMemoryID, &r.ToMemoryID, &r.RelationshipType, &r.Confidence, &r.CreatedAt); err != nil {
			return relational.ClassifyError(err)
		}
		rels = append(rels, r)
	}
	if err := rows.Err(); err != nil {
		return relational.ClassifyError(err)
	}

	for _, r := range rels {
		// Only restore once both endpoints are live again (both present
		// in `memories`); otherwise leave it archived until the other
		// endpoint is restored too.
		var otherID string
		if r.FromMemoryID == memoryID {
			otherID = r.ToMemoryID
		} else {
			otherID = r.FromMemoryID
		}
		var exists string
		err := s.db.QueryRowContext(ctx, `SELECT id FROM memories WHERE id = `+ph(s.db, 1, 1), otherID).Scan(&exists)
		if err != nil {
			continue
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO relationships (id, workspace_id, from_memory_id, to_memory_id, relationship_type, confidence, created_at) VALUES (`+ph(s.db, 1, 7)+`)`,
			r.ID, r.WorkspaceID, r.FromMemoryID, r.ToMemoryID, r.RelationshipType, r.Confidence, r.CreatedAt)
		if err != nil {
			continue
		}
		_, _ = s.db.ExecContext(ctx, `DELETE FROM archived_relationships WHERE id = `+ph(s.db, 1, 1), r.ID)
	}
	return nil
}

// CleanupExpired hard-deletes memories in the expired state whose
// archived_at exceeded retentionPeriod, and prunes lifecycle_events older
// than auditRetentionPeriod. Never deletes a memory that is not in the
// expired state.
func (s *Store) CleanupExpired(ctx context.Context, retentionPeriod, auditRetentionPeriod time.Duration, now time.Time) (int, error) {
	d := s.db.Dialect()
	cutoff := now.Add(-retentionPeriod)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM archived_memories WHERE lifecycle_state = `+d.Placeholder(1)+` AND archived_at < `+d.Placeholder(2),
		string(types.StateExpired), cutoff)
	if err != nil {
		return 0, relational.ClassifyError(err)
	}
	n, _ := res.RowsAffected()

	auditCutoff := now.Add(-auditRetentionPeriod)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM lifecycle_events WHERE created_at < `+d.Placeholder(1), auditCutoff); err != nil {
		return int(n), relational.ClassifyError(err)
	}
	return int(n), nil
}

// MarkExpired transitions an archived memory to expired, per the
// archived -> expired system transition.
func (s *Store) MarkExpired(ctx context.Context, id, workspaceID, reason string) error {
	d := s.db.Dialect()
	res, err := s.db.ExecContext(ctx,
		`UPDATE archived_memories SET lifecycle_state = `+d.Placeholder(1)+` WHERE id = `+d.Placeholder(2)+` AND workspace_id = `+d.Placeholder(3),
		string(types.StateExpired), id, workspaceID)
	if err != nil {
		return relational.ClassifyError(err)
	}
	if err := relational.RowsAffectedOrNotFound(res, "archived_memory", id); err != nil {
		return err
	}
	return s.AppendLifecycleEvent(ctx, types.LifecycleEvent{
		MemoryID: id, WorkspaceID: workspaceID, PreviousState: types.StateArchived, NewState: types.StateExpired,
		Reason: reason, TriggeredBy: types.TriggerSystem,
	})
}
