// Package vector defines the vector adapter: upsert/search/delete of
// id+vector+metadata, with a local in-process cosine-similarity mode and
// a remote Qdrant-backed mode.
package vector

import (
	"context"
	"math"
	"time"
)

// Filter is a set of metadata conditions: equality, set membership, or range.
type Filter struct {
	WorkspaceID string   // equality, applied when non-empty
	Types       []string // set membership ($in), optional
	CreatedFrom time.Time // $gte, optional (zero = unset)
	CreatedTo   time.Time // $lte, optional (zero = unset)
}

// Match reports whether metadata satisfies the filter, used by the local
// in-process mode and by tests of the remote mode's filter translation.
func (f Filter) Match(md Metadata) bool {
	if f.WorkspaceID != "" && md.WorkspaceID != f.WorkspaceID {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == md.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.CreatedFrom.IsZero() && md.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && md.CreatedAt.After(f.CreatedTo) {
		return false
	}
	return true
}

// Metadata is the payload stored alongside each vector.
type Metadata struct {
	WorkspaceID string
	Type        string
	CreatedAt   time.Time
}

// Match is one search hit.
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Store is the vector adapter's capability set. Local and remote
// implementations both satisfy it; compensating-action logic in
// internal/memorystore is written against this interface only.
type Store interface {
	Upsert(ctx context.Context, id string, vec []float32, md Metadata) error
	Search(ctx context.Context, vec []float32, topK int, filter Filter) ([]Match, error)
	Delete(ctx context.Context, id string) error
}

// CosineSimilarity computes dot(a,b) / (||a|| * ||b||), returning 0 for
// zero-length, mismatched, or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
