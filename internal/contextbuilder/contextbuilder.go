// Package contextbuilder assembles a token-budgeted prompt context out of
// ranked, relationship-expanded memories, rendered with text/template and
// a small func map, with a header/separator/footer around each memory.
package contextbuilder

import (
	"bytes"
	"context"
	"strings"
	"text/template"
	"time"

	"workspacememory/internal/chunking"
	"workspacememory/internal/embeddings"
	"workspacememory/internal/memorystore"
	"workspacememory/internal/ranker"
	"workspacememory/internal/relationships"
	"workspacememory/internal/types"
)

// Template controls how assembled memories are rendered into text.
type Template struct {
	Name         string
	Header       string
	MemoryFormat string // text/template source, fields: .Type .Content .Score .CreatedAt
	Separator    string
	Footer       string
}

// DefaultTemplate is the suggested default rendering.
func DefaultTemplate() Template {
	return Template{
		Name:         "default",
		Header:       "Relevant memories:\n",
		MemoryFormat: "- [{{.Type}}] {{.Content}} (score: {{printf \"%.2f\" .Score}})",
		Separator:    "\n",
		Footer:       "",
	}
}

// Options configures one Build/Preview call.
type Options struct {
	TopK                int
	TokenBudget         int
	IncludeArchived     bool
	ExpandRelationships bool
	MaxExpansionDepth   int
	Types               []string
	RankStrategy        ranker.Strategy
	RankWeights         ranker.Weights
	Template            Template
	TokenCountFn        func(string) int // defaults to chunking.EstimateTokens
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 10
	}
	if o.TokenBudget <= 0 {
		o.TokenBudget = 4000
	}
	if o.MaxExpansionDepth <= 0 {
		o.MaxExpansionDepth = 1
	}
	if o.RankStrategy == "" {
		o.RankStrategy = ranker.Composite
	}
	if (o.RankWeights == ranker.Weights{}) {
		o.RankWeights = ranker.DefaultWeights()
	}
	if o.Template.MemoryFormat == "" {
		o.Template = DefaultTemplate()
	}
	if o.TokenCountFn == nil {
		o.TokenCountFn = chunking.EstimateTokens
	}
	return o
}

// Result is what Build returns: the assembled text plus bookkeeping.
type Result struct {
	Context    string
	TokenCount int
	Memories   []types.Memory
	Truncated  bool
	Template   string
}

// PreviewResult extends Result with ranking diagnostics, for callers that
// want to see what would be assembled without committing to it.
type PreviewResult struct {
	Result
	MemoryIDs         []string
	RankingScores     map[string]float64
	BudgetUsedPercent float64
}

// Builder assembles context: embed query, search, rank, optionally expand
// via relationships, then render within a token budget.
type Builder struct {
	store    *memorystore.Store
	embedder embeddings.Provider
	expander *relationships.Expander
}

func NewBuilder(store *memorystore.Store, embedder embeddings.Provider, expander *relationships.Expander) *Builder {
	return &Builder{store: store, embedder: embedder, expander: expander}
}

// Build runs the full pipeline and renders the result template, truncating
// at the token budget (a memory is only ever included whole; it is never
// cut mid-content).
func (b *Builder) Build(ctx context.Context, workspaceID, query string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	ranked, err := b.rankedCandidates(ctx, workspaceID, query, opts)
	if err != nil {
		return nil, err
	}

	tmpl, err := parseTemplate(opts.Template)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(opts.Template.Header)
	headerTokens := opts.TokenCountFn(opts.Template.Header) + opts.TokenCountFn(opts.Template.Footer)
	tokenCount := headerTokens
	truncated := false

	var included []types.Memory
	for i, m := range ranked {
		rendered, err := renderMemory(tmpl, m)
		if err != nil {
			return nil, err
		}
		pieceTokens := opts.TokenCountFn(rendered)
		if i > 0 {
			pieceTokens += opts.TokenCountFn(opts.Template.Separator)
		}
		if tokenCount+pieceTokens > opts.TokenBudget {
			truncated = true
			break
		}
		if i > 0 {
			sb.WriteString(opts.Template.Separator)
		}
		sb.WriteString(rendered)
		tokenCount += pieceTokens
		included = append(included, m.Memory)
	}
	sb.WriteString(opts.Template.Footer)

	return &Result{
		Context:    sb.String(),
		TokenCount: tokenCount,
		Memories:   included,
		Truncated:  truncated,
		Template:   opts.Template.Name,
	}, nil
}

// Preview runs the same pipeline as Build but additionally reports the
// ranked candidate ids, their scores, and how much of the budget the
// final render consumed.
func (b *Builder) Preview(ctx context.Context, workspaceID, query string, opts Options) (*PreviewResult, error) {
	opts = opts.withDefaults()
	ranked, err := b.rankedCandidates(ctx, workspaceID, query, opts)
	if err != nil {
		return nil, err
	}

	result, err := b.Build(ctx, workspaceID, query, opts)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(ranked))
	scores := make(map[string]float64, len(ranked))
	for i, m := range ranked {
		ids[i] = m.Memory.ID
		scores[m.Memory.ID] = m.Score
	}

	return &PreviewResult{
		Result:            *result,
		MemoryIDs:         ids,
		RankingScores:     scores,
		BudgetUsedPercent: 100 * float64(result.TokenCount) / float64(opts.TokenBudget),
	}, nil
}

func (b *Builder) rankedCandidates(ctx context.Context, workspaceID, query string, opts Options) ([]types.ScoredMemory, error) {
	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := b.store.SearchMemories(ctx, workspaceID, types.SearchQuery{
		Vector:          vec,
		Types:           opts.Types,
		Limit:           opts.TopK,
		IncludeArchived: opts.IncludeArchived,
	})
	if err != nil {
		return nil, err
	}

	if opts.ExpandRelationships && b.expander != nil && len(results) > 0 {
		rootIDs := make([]string, len(results))
		seen := make(map[string]bool, len(results))
		for i, r := range results {
			rootIDs[i] = r.Memory.ID
			seen[r.Memory.ID] = true
		}
		expandedIDs, err := b.expander.ExpandedIDs(ctx, workspaceID, rootIDs, opts.MaxExpansionDepth)
		if err != nil {
			return nil, err
		}
		for _, id := range expandedIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			m, err := b.store.GetMemory(ctx, id, workspaceID)
			if err != nil {
				continue
			}
			results = append(results, types.ScoredMemory{Memory: *m, Score: 0})
		}
	}

	r := ranker.New(opts.RankStrategy, opts.RankWeights)
	return r.Rank(results, time.Now().UTC()), nil
}

func parseTemplate(t Template) (*template.Template, error) {
	return template.New(t.Name).Funcs(template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}).Parse(t.MemoryFormat)
}

func renderMemory(tmpl *template.Template, m types.ScoredMemory) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Type      string
		Content   string
		Score     float64
		CreatedAt time.Time
	}{Type: m.Memory.Type, Content: m.Memory.Content, Score: m.Score, CreatedAt: m.Memory.CreatedAt}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
