package memorystore

import (
	"context"
	"strings"

	"workspacememory/internal/relational"
	"workspacememory/internal/types"
	"workspacememory/internal/vector"
)

// SearchMemories implements search_memories: vector
// search when a query vector is given (preserving its ordering when
// fetching relational rows), substring search over content when only
// text is given, and an archived-table union when include_archived is
// set.
func (s *Store) SearchMemories(ctx context.Context, workspaceID string, q types.SearchQuery) ([]types.ScoredMemory, error) {
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var results []types.ScoredMemory
	switch {
	case len(q.Vector) > 0:
		var err error
		results, err = s.vectorSearch(ctx, workspaceID, q, limit)
		if err != nil {
			return nil, err
		}
	case q.Text != "":
		var err error
		results, err = s.textSearch(ctx, workspaceID, q, limit)
		if err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}

	if q.IncludeArchived {
		archived, err := s.textSearchTable(ctx, "archived_memories", workspaceID, q, limit)
		if err != nil {
			return nil, err
		}
		results = append(results, archived...)
		if len(results) > limit {
			results = results[:limit]
		}
	}
	return results, nil
}

func (s *Store) vectorSearch(ctx context.Context, workspaceID string, q types.SearchQuery, limit int) ([]types.ScoredMemory, error) {
	filter := vector.Filter{WorkspaceID: workspaceID, Types: q.Types, CreatedFrom: q.DateFrom, CreatedTo: q.DateTo}
	matches, err := s.vec.Search(ctx, q.Vector, limit, filter)
	if err != nil {
		return nil, err
	}

	out := make([]types.ScoredMemory, 0, len(matches))
	for _, match := range matches {
		m, err := s.fetchMemory(ctx, "memories", match.ID, workspaceID)
		if err != nil {
			// The vector index and relational table can drift (e.g. a
			// delete that failed to propagate); skip rather than fail
			// the whole search.
			continue
		}
		out = append(out, types.ScoredMemory{Memory: *m, Score: match.Score})
	}
	return out, nil
}

func (s *Store) textSearch(ctx context.Context, workspaceID string, q types.SearchQuery, limit int) ([]types.ScoredMemory, error) {
	return s.textSearchTable(ctx, "memories", workspaceID, q, limit)
}

func (s *Store) textSearchTable(ctx context.Context, table, workspaceID string, q types.SearchQuery, limit int) ([]types.ScoredMemory, error) {
	d := s.db.Dialect()
	query := `SELECT ` + memoryColumns + ` FROM ` + table + ` WHERE workspace_id = ` + d.Placeholder(1)
	args := []interface{}{workspaceID}

	if q.Text != "" {
		args = append(args, "%"+strings.ToLower(q.Text)+"%")
		query += ` AND LOWER(content) LIKE ` + d.Placeholder(len(args))
	}
	if len(q.Types) > 0 {
		query += typeInClause(s.db, q.Types, &args)
	}
	if !q.DateFrom.IsZero() {
		args = append(args, q.DateFrom)
		query += ` AND created_at >= ` + d.Placeholder(len(args))
	}
	if !q.DateTo.IsZero() {
		args = append(args, q.DateTo)
		query += ` AND created_at <= ` + d.Placeholder(len(args))
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT ` + d.Placeholder(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, relational.ClassifyError(err)
	}
	defer rows.Close()

	var out []types.ScoredMemory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, relational.ClassifyError(err)
		}
		// Text search carries no similarity signal; score is a constant
		// placeholder distinguishing "matched" from vector results.
		out = append(out, types.ScoredMemory{Memory: *m, Score: 1.0})
	}
	return out, rows.Err()
}
