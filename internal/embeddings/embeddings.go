// Package embeddings defines the embedding provider interface consumed by
// the extraction orchestrator and context builder, plus an HTTP client and
// an LRU+TTL cache fronting it.
package embeddings

import "context"

// Provider turns text into a fixed-dimension float vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
