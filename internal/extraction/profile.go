package extraction

import "workspacememory/internal/llm"

// Profile is a named bundle of extraction settings. Strategies and
// providers are pluggable and may be swapped per-call by naming a profile.
type Profile struct {
	Name          string
	Strategy      Strategy
	Provider      llm.Provider
	ModelParams   llm.Params
	MemoryTypes   []string
	MinConfidence float64
}

// Registry looks profiles up by name, so callers can swap the active
// extraction behavior per call without rebuilding the orchestrator.
type Registry struct {
	profiles map[string]Profile
}

func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]Profile)}
}

func (r *Registry) Register(p Profile) {
	r.profiles[p.Name] = p
}

func (r *Registry) Get(name string) (Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}
