// Package llm defines the LLM provider interface (plain and schema
// constrained completion) and a Claude-style HTTP client.
package llm

import "context"

// Params bundles per-call model parameters.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider is the LLM provider interface consumed by the extraction
// orchestrator and MAKER consensus extractor.
type Provider interface {
	Complete(ctx context.Context, prompt string, params Params) (string, error)
	CompleteStructured(ctx context.Context, prompt string, schema map[string]interface{}, params Params) (map[string]interface{}, error)
}
