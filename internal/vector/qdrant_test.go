package vector

import (
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldCondition(c *qdrant.Condition) *qdrant.FieldCondition {
	f, ok := c.ConditionOneOf.(*qdrant.Condition_Field)
	if !ok {
		return nil
	}
	return f.Field
}

func TestBuildFilter_EmptyFilterProducesNilQdrantFilter(t *testing.T) {
	assert.Nil(t, buildFilter(Filter{}))
}

func TestBuildFilter_WorkspaceAndTypesTranslateToMatchConditions(t *testing.T) {
	f := buildFilter(Filter{WorkspaceID: "ws1", Types: []string{"fact", "decision"}})
	require.NotNil(t, f)
	require.Len(t, f.Must, 2)
}

func TestBuildFilter_CreatedFromOnlySetsGteRange(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := buildFilter(Filter{CreatedFrom: from})
	require.NotNil(t, f)
	require.Len(t, f.Must, 1)

	fc := fieldCondition(f.Must[0])
	require.NotNil(t, fc)
	assert.Equal(t, "created_at", fc.Key)
	require.NotNil(t, fc.Range)
	require.NotNil(t, fc.Range.Gte)
	assert.Equal(t, float64(from.Unix()), *fc.Range.Gte)
	assert.Nil(t, fc.Range.Lte)
}

func TestBuildFilter_CreatedFromAndToSetBothBounds(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	f := buildFilter(Filter{WorkspaceID: "ws1", CreatedFrom: from, CreatedTo: to})
	require.NotNil(t, f)
	require.Len(t, f.Must, 2) // workspace match + one range condition

	var rangeCond *qdrant.FieldCondition
	for _, c := range f.Must {
		if fc := fieldCondition(c); fc != nil && fc.Key == "created_at" {
			rangeCond = fc
		}
	}
	require.NotNil(t, rangeCond, "expected a created_at range condition")
	require.NotNil(t, rangeCond.Range.Gte)
	require.NotNil(t, rangeCond.Range.Lte)
	assert.Equal(t, float64(from.Unix()), *rangeCond.Range.Gte)
	assert.Equal(t, float64(to.Unix()), *rangeCond.Range.Lte)
}

func TestBuildFilter_MatchesLocalFilterMatchSemantics(t *testing.T) {
	// The local backend's Filter.Match is the reference semantics; a memory
	// created before CreatedFrom must be excluded by both backends.
	from := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	filter := Filter{CreatedFrom: from}

	tooOld := Metadata{CreatedAt: from.Add(-time.Hour)}
	inRange := Metadata{CreatedAt: from.Add(time.Hour)}

	assert.False(t, filter.Match(tooOld))
	assert.True(t, filter.Match(inRange))

	qf := buildFilter(filter)
	fc := fieldCondition(qf.Must[0])
	assert.Equal(t, float64(from.Unix()), *fc.Range.Gte)
}
