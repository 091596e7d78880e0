package vector

import (
	"context"
	"sort"
	"sync"

	"workspacememory/internal/apperrors"
)

// entry pairs a stored vector with its metadata.
type entry struct {
	vec []float32
	md  Metadata
}

// LocalStore is an in-process cosine-similarity index, used for tests and
// single-node/offline deployments.
type LocalStore struct {
	mu  sync.RWMutex
	dim int
	data map[string]entry
}

// NewLocalStore creates an empty local store. dim <= 0 means "unconstrained",
// used by tests that don't care about dimension checks.
func NewLocalStore(dim int) *LocalStore {
	return &LocalStore{dim: dim, data: make(map[string]entry)}
}

func (s *LocalStore) Upsert(_ context.Context, id string, vec []float32, md Metadata) error {
	if s.dim > 0 && len(vec) != s.dim {
		return apperrors.VectorStore("dimension mismatch", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]float32, len(vec))
	copy(cp, vec)
	s.data[id] = entry{vec: cp, md: md}
	return nil
}

func (s *LocalStore) Search(_ context.Context, vec []float32, topK int, filter Filter) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.data))
	for id, e := range s.data {
		if !filter.Match(e.md) {
			continue
		}
		matches = append(matches, Match{ID: id, Score: CosineSimilarity(vec, e.vec), Metadata: e.md})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *LocalStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}
