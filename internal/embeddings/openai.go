package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"workspacememory/internal/apperrors"
	"workspacememory/internal/ratelimit"
)

// Config configures the HTTP embeddings client: base URL, key, model,
// and request timeout. RateLimiter is optional; when set, every outbound
// batch call is gated through it before hitting the network.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Dim         int
	Timeout     time.Duration
	RateLimiter *ratelimit.Limiter
}

// HTTPProvider calls an OpenAI-style /embeddings endpoint.
type HTTPProvider struct {
	cfg        Config
	httpClient *http.Client
}

// NewHTTPProvider validates the config and builds a client, filling in
// defaults for anything left unset.
func NewHTTPProvider(cfg Config) (*HTTPProvider, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.Configuration("embeddings: APIKey is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dim <= 0 {
		cfg.Dim = 1536
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *HTTPProvider) Dimensions() int { return p.cfg.Dim }

func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.cfg.RateLimiter != nil {
		if err := p.cfg.RateLimiter.Allow(ctx, "embeddings:openai"); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(embeddingsRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, apperrors.Parse("failed to encode embeddings request", "")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.LLM("openai", "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.ClassifyLLMError("openai", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.LLM("openai", "failed to read response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.RateLimit(0)
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperrors.Parse("failed to decode embeddings response", string(raw))
	}
	if parsed.Error != nil {
		return nil, apperrors.ClassifyLLMError("openai", fmt.Errorf("%s: %s", parsed.Error.Type, parsed.Error.Message))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.LLM("openai", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		if err := validateFinite(d.Embedding); err != nil {
			return nil, err
		}
		if len(d.Embedding) != p.cfg.Dim {
			return nil, apperrors.VectorStore(fmt.Sprintf("embedding dimension mismatch: got %d want %d", len(d.Embedding), p.cfg.Dim), nil)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func validateFinite(vec []float32) error {
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return apperrors.Parse("embedding contains non-finite value", "")
		}
	}
	return nil
}
