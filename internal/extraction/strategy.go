package extraction

import (
	"context"
	"fmt"

	"workspacememory/internal/chunking"
	"workspacememory/internal/llm"
)

// RawMemory is what a Strategy returns before id computation and
// enrichment.
type RawMemory struct {
	Type       string
	Content    string
	Confidence float64 // 0 means "not set", filled to 0.5 by the orchestrator
	EntityType string  // non-empty for entity memories, folded into the id hash
	Metadata   map[string]interface{}
}

// RawRelationship references its endpoints by index into the same
// extraction call's RawMemory slice, since no ids exist yet at this stage.
type RawRelationship struct {
	FromIndex        int
	ToIndex          int
	RelationshipType string
	Confidence       float64
}

// RawResult is one chunk's extraction output.
type RawResult struct {
	Memories      []RawMemory
	Relationships []RawRelationship
}

// Strategy runs one extraction call against a chunk of messages. Strategies
// and providers are pluggable and may be swapped per-call by profile name.
type Strategy interface {
	Extract(ctx context.Context, chunk chunking.Chunk, allowedTypes []string, params llm.Params) (RawResult, error)
}

var extractionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"memories": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"type":        map[string]interface{}{"type": "string"},
					"content":     map[string]interface{}{"type": "string"},
					"confidence":  map[string]interface{}{"type": "number"},
					"entity_type": map[string]interface{}{"type": "string"},
					"metadata":    map[string]interface{}{"type": "object"},
				},
				"required": []string{"type", "content"},
			},
		},
		"relationships": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"from_index":        map[string]interface{}{"type": "integer"},
					"to_index":          map[string]interface{}{"type": "integer"},
					"relationship_type": map[string]interface{}{"type": "string"},
					"confidence":        map[string]interface{}{"type": "number"},
				},
				"required": []string{"from_index", "to_index", "relationship_type"},
			},
		},
	},
}

// LLMStrategy asks the provider for a structured {memories, relationships}
// object in one call. This is the default strategy shape.
type LLMStrategy struct {
	Provider llm.Provider
}

func NewLLMStrategy(provider llm.Provider) *LLMStrategy {
	return &LLMStrategy{Provider: provider}
}

func (s *LLMStrategy) Extract(ctx context.Context, chunk chunking.Chunk, allowedTypes []string, params llm.Params) (RawResult, error) {
	prompt := buildExtractionPrompt(chunk, allowedTypes)
	obj, err := s.Provider.CompleteStructured(ctx, prompt, extractionSchema, params)
	if err != nil {
		return RawResult{}, err
	}
	return parseRawResult(obj), nil
}

func buildExtractionPrompt(chunk chunking.Chunk, allowedTypes []string) string {
	prompt := "Extract structured memories from the following conversation messages.\n"
	if len(allowedTypes) > 0 {
		prompt += fmt.Sprintf("Only use these memory types: %v\n", allowedTypes)
	}
	prompt += "Also identify any relationships between the memories you extract, referencing them by their position (0-based index) in your memories array.\n\n"
	for _, m := range chunk.Messages {
		prompt += fmt.Sprintf("[%s] %s\n", m.Role, m.Content)
	}
	return prompt
}

func parseRawResult(obj map[string]interface{}) RawResult {
	var out RawResult

	if rawMemories, ok := obj["memories"].([]interface{}); ok {
		for _, item := range rawMemories {
			fields, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			rm := RawMemory{
				Type:       asString(fields["type"]),
				Content:    asString(fields["content"]),
				Confidence: asFloat(fields["confidence"]),
				EntityType: asString(fields["entity_type"]),
			}
			if meta, ok := fields["metadata"].(map[string]interface{}); ok {
				rm.Metadata = meta
			}
			out.Memories = append(out.Memories, rm)
		}
	}

	if rawRels, ok := obj["relationships"].([]interface{}); ok {
		for _, item := range rawRels {
			fields, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			out.Relationships = append(out.Relationships, RawRelationship{
				FromIndex:        int(asFloat(fields["from_index"])),
				ToIndex:          int(asFloat(fields["to_index"])),
				RelationshipType: asString(fields["relationship_type"]),
				Confidence:       asFloat(fields["confidence"]),
			})
		}
	}

	return out
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
