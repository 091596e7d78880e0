package maker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspacememory/internal/llm"
)

// scriptedProvider replays a fixed response per call, in no guaranteed
// order (the extractor fans calls out concurrently); it is a stand-in for
// the real HTTP-backed llm.Provider during unit tests.
type scriptedProvider struct {
	responses []string
	calls     int32
}

func (p *scriptedProvider) Complete(ctx context.Context, prompt string, params llm.Params) (string, error) {
	i := atomic.AddInt32(&p.calls, 1) - 1
	if int(i) >= len(p.responses) {
		return "", context.DeadlineExceeded
	}
	return p.responses[i], nil
}

func (p *scriptedProvider) CompleteStructured(ctx context.Context, prompt string, schema map[string]interface{}, params llm.Params) (map[string]interface{}, error) {
	return nil, context.DeadlineExceeded
}

func TestRedFlagCheck_RejectsTooShortSummary(t *testing.T) {
	_, ok := redFlagCheck(`{"summary": "too short", "decisions": [], "todos": []}`)
	assert.False(t, ok)
}

func TestRedFlagCheck_RejectsMalformedJSON(t *testing.T) {
	_, ok := redFlagCheck("not json at all")
	assert.False(t, ok)
}

func TestRedFlagCheck_AcceptsWellFormedCandidate(t *testing.T) {
	raw := `{"summary": "The team decided to migrate the billing service to the new queue.", "decisions": ["migrate billing"], "todos": ["write runbook"]}`
	c, ok := redFlagCheck(raw)
	require.True(t, ok)
	assert.Equal(t, []string{"migrate billing"}, c.Decisions)
}

func TestRedFlagCheck_StripsCodeFence(t *testing.T) {
	raw := "```json\n" + `{"summary": "The team decided to migrate the billing service to the new queue.", "decisions": [], "todos": []}` + "\n```"
	_, ok := redFlagCheck(raw)
	assert.True(t, ok)
}

func TestVote_PrefersCandidateWithMostOverlap(t *testing.T) {
	candidates := []Candidate{
		{Decisions: []string{"migrate billing"}, Todos: []string{"write runbook"}},
		{Decisions: []string{"migrate billing"}, Todos: []string{"write runbook"}},
		{Decisions: []string{"rewrite frontend"}, Todos: []string{"nothing in common"}},
	}
	winner := vote(candidates)
	assert.Equal(t, "migrate billing", winner.Decisions[0])
}

func TestVote_FirstSeenWinsOnTie(t *testing.T) {
	candidates := []Candidate{
		{Summary: "first"},
		{Summary: "second"},
	}
	winner := vote(candidates)
	assert.Equal(t, "first", winner.Summary)
}

func TestExtract_ReturnsNilWhenAllCandidatesFailRedFlag(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"garbage", "garbage", "garbage"}}
	e := NewExtractor(Config{Replicas: 3, Timeout: time.Second, Model: "claude-haiku"}, provider)

	c, err := e.Extract(context.Background(), "some conversation text")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestExtract_ReturnsConsensusCandidate(t *testing.T) {
	good := `{"summary": "The team decided to migrate the billing service to the new queue.", "decisions": ["migrate billing"], "todos": []}`
	provider := &scriptedProvider{responses: []string{good, good, "garbage"}}
	e := NewExtractor(Config{Replicas: 3, Timeout: time.Second, Model: "claude-haiku"}, provider)

	c, err := e.Extract(context.Background(), "some conversation text")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, []string{"migrate billing"}, c.Decisions)
}

func TestExtract_DropsTimedOutMicroagents(t *testing.T) {
	provider := &scriptedProvider{responses: []string{}}
	e := NewExtractor(Config{Replicas: 2, Timeout: time.Second, Model: "claude-haiku"}, provider)

	c, err := e.Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Nil(t, c)
}
