package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspacememory/internal/types"
)

func TestMerge_KeepsHighestConfidence(t *testing.T) {
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	memories := []types.Memory{
		{ID: "m1", Confidence: 0.4, CreatedAt: later, SourceMessageIDs: []string{"a"}},
		{ID: "m1", Confidence: 0.9, CreatedAt: earlier, SourceMessageIDs: []string{"b"}, Content: "winner"},
	}

	merged := Merge(memories)
	require.Len(t, merged, 1)
	assert.Equal(t, 0.9, merged[0].Confidence)
	assert.Equal(t, "winner", merged[0].Content)
	assert.Equal(t, earlier, merged[0].CreatedAt)
	assert.ElementsMatch(t, []string{"a", "b"}, merged[0].SourceMessageIDs)
}

func TestMerge_DistinctIDsPassThrough(t *testing.T) {
	memories := []types.Memory{
		{ID: "a", Confidence: 0.5},
		{ID: "b", Confidence: 0.6},
	}
	merged := Merge(memories)
	assert.Len(t, merged, 2)
}

func TestMerge_BackfillsMetadataFromLowerConfidence(t *testing.T) {
	memories := []types.Memory{
		{ID: "m1", Confidence: 0.9, Metadata: map[string]interface{}{"a": 1}},
		{ID: "m1", Confidence: 0.3, Metadata: map[string]interface{}{"a": 2, "b": 3}},
	}
	merged := Merge(memories)
	require.Len(t, merged, 1)
	assert.Equal(t, 1, merged[0].Metadata["a"], "highest-confidence value wins on conflict")
	assert.Equal(t, 3, merged[0].Metadata["b"], "missing field backfilled from lower-confidence candidate")
}

func TestMerge_SingleElementUnchanged(t *testing.T) {
	memories := []types.Memory{{ID: "m1", Confidence: 0.5, Content: "x"}}
	merged := Merge(memories)
	require.Len(t, merged, 1)
	assert.Equal(t, memories[0], merged[0])
}

func TestValidateMemory_RequiredFields(t *testing.T) {
	rules := Rules{MinContentLength: 3}

	assert.Error(t, ValidateMemory(types.Memory{Content: "abc", Confidence: 0.5}, rules), "missing type")
	assert.Error(t, ValidateMemory(types.Memory{Type: "fact", Confidence: 0.5}, rules), "missing content")
	assert.Error(t, ValidateMemory(types.Memory{Type: "fact", Content: "abc", Confidence: 1.5}, rules), "confidence out of range")
	assert.Error(t, ValidateMemory(types.Memory{Type: "fact", Content: "ab", Confidence: 0.5}, rules), "too short")
	assert.NoError(t, ValidateMemory(types.Memory{Type: "fact", Content: "abc", Confidence: 0.5}, rules))
}

func TestValidateRelationship_DanglingEndpointRejected(t *testing.T) {
	valid := map[string]string{"a": "ws1"}
	rel := types.Relationship{FromMemoryID: "a", ToMemoryID: "missing"}
	assert.Error(t, ValidateRelationship(rel, valid))
}

func TestValidateRelationship_WorkspaceMismatchRejected(t *testing.T) {
	valid := map[string]string{"a": "ws1", "b": "ws2"}
	rel := types.Relationship{FromMemoryID: "a", ToMemoryID: "b"}
	assert.Error(t, ValidateRelationship(rel, valid))
}

func TestValidateRelationship_ValidPasses(t *testing.T) {
	valid := map[string]string{"a": "ws1", "b": "ws1"}
	rel := types.Relationship{FromMemoryID: "a", ToMemoryID: "b"}
	assert.NoError(t, ValidateRelationship(rel, valid))
}
