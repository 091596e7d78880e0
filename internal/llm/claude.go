package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"workspacememory/internal/apperrors"
	"workspacememory/internal/ratelimit"
	"workspacememory/internal/retry"
)

// ClaudeConfig configures the HTTP client: API key, base URL, default
// model, timeout. RateLimiter is optional; when set, every outbound call
// is gated through it before hitting the network.
type ClaudeConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	Retry        *retry.Config
	RateLimiter  *ratelimit.Limiter
}

// ClaudeClient calls the Anthropic Messages API shape.
type ClaudeClient struct {
	cfg        ClaudeConfig
	httpClient *http.Client
	retrier    *retry.Retrier
}

// NewClaudeClient validates required fields and fills defaults.
func NewClaudeClient(cfg ClaudeConfig) (*ClaudeClient, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.Configuration("llm: APIKey is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-haiku-4"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ClaudeClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retrier:    retry.New(cfg.Retry),
	}, nil
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
	Error   *claudeError    `json:"error,omitempty"`
}

func (c *ClaudeClient) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	model := params.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}
	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	var text string
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		out, err := c.call(ctx, claudeRequest{
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: params.Temperature,
			Messages:    []claudeMessage{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return err
		}
		text = out
		return nil
	}).Err
	return text, err
}

// CompleteStructured appends a JSON-only instruction to the prompt and
// parses the response as JSON against the (informally) provided schema;
// actual schema-shape validation is the caller's responsibility (the
// extraction orchestrator and MAKER extractor do their own red-flag
// checks). Retries on parse_error up to the provider's retry budget.
func (c *ClaudeClient) CompleteStructured(ctx context.Context, prompt string, schema map[string]interface{}, params Params) (map[string]interface{}, error) {
	schemaJSON, _ := json.Marshal(schema)
	fullPrompt := prompt + "\n\nRespond with ONLY a JSON object matching this schema, no prose, no code fences:\n" + string(schemaJSON)

	var out map[string]interface{}
	res := c.retrier.Do(ctx, func(ctx context.Context) error {
		text, err := c.Complete(ctx, fullPrompt, params)
		if err != nil {
			return err
		}
		parsed, err := parseJSONObject(text)
		if err != nil {
			return &retry.Temporary{Err: apperrors.Parse(err.Error(), text)}
		}
		out = parsed
		return nil
	})
	return out, res.Err
}

func (c *ClaudeClient) call(ctx context.Context, reqBody claudeRequest) (string, error) {
	if c.cfg.RateLimiter != nil {
		if err := c.cfg.RateLimiter.Allow(ctx, "llm:claude"); err != nil {
			return "", err
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", apperrors.Parse("failed to encode request", "")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.LLM("claude", "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.ClassifyLLMError("claude", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.LLM("claude", "failed to read response", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", apperrors.RateLimit(0)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", apperrors.Parse("failed to decode claude response", string(raw))
	}
	if parsed.Error != nil {
		return "", apperrors.ClassifyLLMError("claude", fmt.Errorf("%s: %s", parsed.Error.Type, parsed.Error.Message))
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.LLM("claude", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var sb strings.Builder
	for _, c := range parsed.Content {
		sb.WriteString(c.Text)
	}
	return sb.String(), nil
}

// parseJSONObject strips a markdown code-fence wrapper if present and
// parses the remainder as a JSON object, mirroring the red-flagging
// preprocessing the MAKER extractor applies to raw microagent output.
func parseJSONObject(text string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("failed to parse JSON object: %w", err)
	}
	return out, nil
}
