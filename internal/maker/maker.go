// Package maker implements the MAKER-style consensus extractor: N
// parallel microagents, red-flag schema validation, and exact-string
// overlap voting, fanning calls out with a WaitGroup the same way a
// provider-with-fallback call fans out to multiple backends.
package maker

import (
	"context"
	"strings"
	"sync"
	"time"

	"workspacememory/internal/llm"
)

// Config bundles the extractor's tunables.
type Config struct {
	Enabled     bool
	Replicas    int
	VoteK       int
	MaxRetries  int
	Temperature float64
	Timeout     time.Duration
	Model       string
}

// DefaultConfig is the suggested default: 3 replicas, temp 0.4, 10s.
func DefaultConfig() Config {
	return Config{Enabled: true, Replicas: 3, VoteK: 1, MaxRetries: 1, Temperature: 0.4, Timeout: 10 * time.Second, Model: "claude-haiku"}
}

// Candidate is a red-flag-validated extraction result.
type Candidate struct {
	Summary   string
	Decisions []string
	Todos     []string
}

// Extractor runs the consensus algorithm against an LLM provider.
type Extractor struct {
	cfg      Config
	provider llm.Provider
}

func NewExtractor(cfg Config, provider llm.Provider) *Extractor {
	return &Extractor{cfg: cfg, provider: provider}
}

// Extract launches cfg.Replicas parallel microagent calls over
// sourceText, red-flags each response, and votes among survivors. Returns
// nil if no candidate survives red-flagging.
func (e *Extractor) Extract(ctx context.Context, sourceText string) (*Candidate, error) {
	raw := e.runMicroagents(ctx, sourceText)

	var candidates []Candidate
	for _, r := range raw {
		if c, ok := redFlagCheck(r); ok {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return vote(candidates), nil
}

// runMicroagents launches e.cfg.Replicas parallel LLM calls, each with a
// per-call timeout; failed or timed-out calls yield an empty string and
// are dropped during red-flagging.
func (e *Extractor) runMicroagents(ctx context.Context, sourceText string) []string {
	n := e.cfg.Replicas
	if n <= 0 {
		n = 1
	}
	results := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
			defer cancel()

			text, err := e.provider.Complete(callCtx, extractionPrompt(sourceText), llm.Params{
				Model:       e.cfg.Model,
				Temperature: e.cfg.Temperature,
				MaxTokens:   1024,
			})
			if err != nil {
				return
			}
			results[idx] = text
		}(i)
	}
	wg.Wait()
	return results
}

func extractionPrompt(sourceText string) string {
	return "Summarize the following conversation as JSON {summary, decisions, todos}:\n\n" + sourceText
}

// redFlagCheck strips a code-fence wrapper, parses the structured shape,
// and rejects malformed or hallucination-shaped candidates.
func redFlagCheck(raw string) (Candidate, bool) {
	if raw == "" {
		return Candidate{}, false
	}
	obj, err := parseCandidateJSON(raw)
	if err != nil {
		return Candidate{}, false
	}

	if len(obj.Summary) < 20 || len(obj.Summary) > 1500 {
		return Candidate{}, false
	}
	if len(obj.Decisions) == 0 && len(obj.Todos) == 0 && len(obj.Summary) < 50 {
		return Candidate{}, false
	}
	return obj, true
}

// vote scores each candidate by counting exact-string overlaps of its
// decisions/todos against every other candidate, returning the highest
// scorer; ties break by iteration order (first-seen wins).
func vote(candidates []Candidate) *Candidate {
	best := 0
	bestScore := -1
	for i, c := range candidates {
		score := 0
		for j, other := range candidates {
			if i == j {
				continue
			}
			score += overlapCount(c.Decisions, other.Decisions)
			score += overlapCount(c.Todos, other.Todos)
		}
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	result := candidates[best]
	return &result
}

func overlapCount(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[strings.TrimSpace(s)] = struct{}{}
	}
	count := 0
	for _, s := range a {
		if _, ok := set[strings.TrimSpace(s)]; ok {
			count++
		}
	}
	return count
}
