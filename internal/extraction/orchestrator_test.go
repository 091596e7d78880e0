package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"workspacememory/internal/chunking"
	"workspacememory/internal/dedup"
	"workspacememory/internal/llm"
	"workspacememory/internal/memorystore"
	"workspacememory/internal/relational"
	"workspacememory/internal/types"
	"workspacememory/internal/vector"
)

// scriptedStrategy returns a fixed RawResult (or error) regardless of chunk
// content, one entry per call in call order.
type scriptedStrategy struct {
	results []RawResult
	errs    []error
	calls   int
}

func (s *scriptedStrategy) Extract(ctx context.Context, chunk chunking.Chunk, allowedTypes []string, params llm.Params) (RawResult, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return RawResult{}, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return RawResult{}, nil
}

func newTestOrchestrator(t *testing.T, strategy Strategy, cfg Config) (*Orchestrator, string) {
	t.Helper()
	ctx := context.Background()

	db, err := relational.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := memorystore.New(db, vector.NewLocalStore(0), nil)
	t.Cleanup(store.Close)

	u, err := store.CreateUser(ctx, "owner@example.com", "Owner")
	require.NoError(t, err)
	ws, err := store.CreateWorkspace(ctx, "extraction workspace", types.WorkspacePersonal, u.ID)
	require.NoError(t, err)

	registry := NewRegistry()
	registry.Register(Profile{Name: "default", Strategy: strategy})

	return NewOrchestrator(cfg, store, registry, nil), ws.ID
}

func testMessages() []types.Message {
	now := time.Now().UTC()
	return []types.Message{
		{ID: "msg1", Role: types.RoleUser, Content: "I prefer dark mode", CreatedAt: now},
		{ID: "msg2", Role: types.RoleAssistant, Content: "Noted, dark mode it is", CreatedAt: now},
	}
}

func TestExtract_UnknownProfileReturnsConfigurationError(t *testing.T) {
	o, ws := newTestOrchestrator(t, &scriptedStrategy{}, Config{})
	_, err := o.Extract(context.Background(), ws, types.Conversation{ID: "c1"}, testMessages(), "missing", nil)
	require.Error(t, err)
}

func TestExtract_SuccessClassifiesAllValid(t *testing.T) {
	strategy := &scriptedStrategy{results: []RawResult{{
		Memories: []RawMemory{{Type: "preference", Content: "prefers dark mode", Confidence: 0.9}},
	}}}
	o, ws := newTestOrchestrator(t, strategy, Config{})

	result, err := o.Extract(context.Background(), ws, types.Conversation{ID: "c1"}, testMessages(), "default", nil)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)
	require.Len(t, result.Memories, 1)
	require.Equal(t, "prefers dark mode", result.Memories[0].Content)
}

func TestExtract_DropsMemoryMissingRequiredFields(t *testing.T) {
	strategy := &scriptedStrategy{results: []RawResult{{
		Memories: []RawMemory{{Type: "", Content: "no type set"}},
	}}}
	o, ws := newTestOrchestrator(t, strategy, Config{})

	result, err := o.Extract(context.Background(), ws, types.Conversation{ID: "c1"}, testMessages(), "default", nil)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.Empty(t, result.Memories)
}

func TestExtract_SchemaValidatorRejectsMalformedCustomType(t *testing.T) {
	strategy := &scriptedStrategy{results: []RawResult{{
		Memories: []RawMemory{{Type: "custom", Content: "missing a required field", Confidence: 0.8}},
	}}}
	cfg := Config{SchemaValidators: map[string]SchemaValidator{
		"custom": func(metadata map[string]interface{}) error {
			if _, ok := metadata["required_field"]; !ok {
				return errors.New("missing required_field")
			}
			return nil
		},
	}}
	o, ws := newTestOrchestrator(t, strategy, cfg)

	result, err := o.Extract(context.Background(), ws, types.Conversation{ID: "c1"}, testMessages(), "default", nil)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.NotEmpty(t, result.Warnings)
}

func TestExtract_ExistingMemoriesNotReExtractedAreExcludedFromResult(t *testing.T) {
	strategy := &scriptedStrategy{results: []RawResult{{
		Memories: []RawMemory{{Type: "fact", Content: "new fact this round", Confidence: 0.6}},
	}}}
	o, ws := newTestOrchestrator(t, strategy, Config{})

	existing := []types.Memory{
		{ID: "already-known", WorkspaceID: ws, Type: "fact", Content: "unrelated old fact", Confidence: 0.9, CreatedAt: time.Now().UTC()},
	}

	result, err := o.Extract(context.Background(), ws, types.Conversation{ID: "c2"}, testMessages(), "default", existing)
	require.NoError(t, err)
	require.Len(t, result.Memories, 1)
	require.Equal(t, "new fact this round", result.Memories[0].Content)
}

func TestExtract_ReExtractedExistingMemoryMergesMetadataAndStays(t *testing.T) {
	strategy := &scriptedStrategy{results: []RawResult{{
		Memories: []RawMemory{{Type: "fact", Content: "shared fact", Confidence: 0.6}},
	}}}
	o, ws := newTestOrchestrator(t, strategy, Config{})

	first, err := o.Extract(context.Background(), ws, types.Conversation{ID: "c1"}, testMessages(), "default", nil)
	require.NoError(t, err)
	require.Len(t, first.Memories, 1)

	strategy.calls = 0
	result, err := o.Extract(context.Background(), ws, types.Conversation{ID: "c2"}, testMessages(), "default", first.Memories)
	require.NoError(t, err)
	require.Len(t, result.Memories, 1, "memory re-extracted in this round still appears, merged")
}

func TestExtract_RelationshipWithOutOfRangeIndexIsDropped(t *testing.T) {
	strategy := &scriptedStrategy{results: []RawResult{{
		Memories:      []RawMemory{{Type: "fact", Content: "alone", Confidence: 0.7}},
		Relationships: []RawRelationship{{FromIndex: 0, ToIndex: 5, RelationshipType: "relates_to"}},
	}}}
	o, ws := newTestOrchestrator(t, strategy, Config{})

	result, err := o.Extract(context.Background(), ws, types.Conversation{ID: "c1"}, testMessages(), "default", nil)
	require.NoError(t, err)
	require.Empty(t, result.Relationships)
	require.NotEmpty(t, result.Warnings)
}

func TestExtract_ContinueOnErrorSkipsFailedChunkAndWarns(t *testing.T) {
	strategy := &scriptedStrategy{errs: []error{errors.New("provider unavailable")}}
	o, ws := newTestOrchestrator(t, strategy, Config{Chunking: chunking.Config{FailureMode: chunking.ContinueOnError}})

	result, err := o.Extract(context.Background(), ws, types.Conversation{ID: "c1"}, testMessages(), "default", nil)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.NotEmpty(t, result.Warnings)
}

func TestExtract_FailFastPropagatesChunkError(t *testing.T) {
	strategy := &scriptedStrategy{errs: []error{errors.New("provider unavailable")}}
	o, ws := newTestOrchestrator(t, strategy, Config{Chunking: chunking.Config{FailureMode: chunking.FailFast}})

	_, err := o.Extract(context.Background(), ws, types.Conversation{ID: "c1"}, testMessages(), "default", nil)
	require.Error(t, err)
}

func TestPersist_WritesMemoriesAndRelationshipsToStore(t *testing.T) {
	strategy := &scriptedStrategy{}
	o, ws := newTestOrchestrator(t, strategy, Config{})

	result := &Result{
		Status: StatusSuccess,
		Memories: []types.Memory{
			{ID: "mem-a", WorkspaceID: ws, Type: "fact", Content: "a", Confidence: 0.8},
			{ID: "mem-b", WorkspaceID: ws, Type: "fact", Content: "b", Confidence: 0.8},
		},
		Relationships: []types.Relationship{
			{FromMemoryID: "mem-a", ToMemoryID: "mem-b", RelationshipType: "relates_to", Confidence: 0.9},
		},
	}

	err := o.Persist(context.Background(), ws, result, nil)
	require.NoError(t, err)

	got, err := o.store.GetMemory(context.Background(), "mem-a", ws)
	require.NoError(t, err)
	require.Equal(t, "a", got.Content)
}

func TestValidateMemory_RejectsTooShortContent(t *testing.T) {
	err := dedup.ValidateMemory(types.Memory{Type: "fact", Content: "hi", Confidence: 0.5}, dedup.Rules{MinContentLength: 10})
	require.Error(t, err)
}
