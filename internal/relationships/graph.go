// Package relationships provides depth-limited graph traversal over a
// workspace's memory relationships, for the context builder's "pull in
// connected memories" expansion step. The BFS walks edges in both
// directions, tracks a visited set, and stops at a depth cutoff, running
// directly against the relational store instead of an in-memory index.
package relationships

import (
	"context"

	"workspacememory/internal/memorystore"
	"workspacememory/internal/types"
)

// Expander walks the relationship graph rooted at a set of memories.
type Expander struct {
	store *memorystore.Store
}

func NewExpander(store *memorystore.Store) *Expander {
	return &Expander{store: store}
}

// queueEntry pairs a memory id with the depth at which it was reached.
type queueEntry struct {
	id    string
	depth int
}

// Expand performs a breadth-first walk from rootIDs out to maxDepth hops,
// returning every relationship touched, keyed by the memory id whose
// edges they are. A memory is visited at most once even if reachable via
// multiple paths.
func (ex *Expander) Expand(ctx context.Context, workspaceID string, rootIDs []string, maxDepth int) (map[string][]types.Relationship, error) {
	graph := make(map[string][]types.Relationship)
	visited := make(map[string]bool, len(rootIDs))
	queue := make([]queueEntry, 0, len(rootIDs))
	for _, id := range rootIDs {
		if !visited[id] {
			visited[id] = true
			queue = append(queue, queueEntry{id: id, depth: 0})
		}
	}

	for len(queue) > 0 {
		entry := queue[0]
		queue = queue[1:]
		if entry.depth >= maxDepth {
			continue
		}

		rels, err := ex.store.GetMemoryRelationships(ctx, entry.id, workspaceID)
		if err != nil {
			return nil, err
		}
		graph[entry.id] = rels

		for _, r := range rels {
			next := r.ToMemoryID
			if next == entry.id {
				next = r.FromMemoryID
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, queueEntry{id: next, depth: entry.depth + 1})
			}
		}
	}
	return graph, nil
}

// ExpandedIDs flattens Expand's graph into the distinct set of memory ids
// reachable within maxDepth hops, excluding the roots themselves, for
// callers that only need "what else should I fetch" rather than the edges.
func (ex *Expander) ExpandedIDs(ctx context.Context, workspaceID string, rootIDs []string, maxDepth int) ([]string, error) {
	graph, err := ex.Expand(ctx, workspaceID, rootIDs, maxDepth)
	if err != nil {
		return nil, err
	}
	roots := make(map[string]bool, len(rootIDs))
	for _, id := range rootIDs {
		roots[id] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, rels := range graph {
		for _, r := range rels {
			for _, candidate := range [2]string{r.FromMemoryID, r.ToMemoryID} {
				if roots[candidate] || seen[candidate] {
					continue
				}
				seen[candidate] = true
				out = append(out, candidate)
			}
		}
	}
	return out, nil
}
