// Package extraction drives the pipeline that turns a conversation into
// validated, deduplicated memories and relationships: decide whether to
// chunk, run a per-chunk or whole-conversation LLM call through a named
// strategy/provider/profile, then aggregate, dedup, and validate the
// result.
package extraction

import (
	"context"
	"fmt"
	"time"

	"workspacememory/internal/apperrors"
	"workspacememory/internal/chunking"
	"workspacememory/internal/dedup"
	"workspacememory/internal/idgen"
	"workspacememory/internal/logging"
	"workspacememory/internal/memorystore"
	"workspacememory/internal/types"
)

// Status classifies the outcome of one Extract call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// SchemaValidator enforces a custom memory type's declared shape against
// its metadata.
type SchemaValidator func(metadata map[string]interface{}) error

// Config bundles the orchestrator's tunables, independent of any one
// profile.
type Config struct {
	Chunking         chunking.Config
	DedupRules       dedup.Rules
	SchemaValidators map[string]SchemaValidator
}

// Result is what one Extract call produces.
type Result struct {
	Status        Status
	Memories      []types.Memory
	Relationships []types.Relationship
	Warnings      []string
}

// Orchestrator runs the extraction pipeline against a memory store.
type Orchestrator struct {
	cfg        Config
	chunker    *chunking.Service
	store      *memorystore.Store
	registry   *Registry
	log        logging.Logger
}

func NewOrchestrator(cfg Config, store *memorystore.Store, registry *Registry, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.Noop()
	}
	return &Orchestrator{
		cfg:      cfg,
		chunker:  chunking.NewService(cfg.Chunking),
		store:    store,
		registry: registry,
		log:      log.WithComponent("extraction"),
	}
}

// Extract runs the full pipeline for one conversation under the named
// profile: chunk (if oversized), extract per chunk, enrich, schema-gate,
// dedup across chunks and against existingMemories (the cross-conversation
// pass), validate, and classify.
func (o *Orchestrator) Extract(ctx context.Context, workspaceID string, conv types.Conversation, messages []types.Message, profileName string, existingMemories []types.Memory) (*Result, error) {
	profile, ok := o.registry.Get(profileName)
	if !ok {
		return nil, apperrors.Configuration(fmt.Sprintf("extraction: unknown profile %q", profileName))
	}

	chunks := o.splitIntoChunks(messages)

	var rawMemories []types.Memory
	var pendingRels []pendingRelationship
	var warnings []string

	for _, chunk := range chunks {
		raw, err := profile.Strategy.Extract(ctx, chunk, profile.MemoryTypes, profile.ModelParams)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("chunk extraction failed: %v", err))
			if o.cfg.Chunking.FailureMode == chunking.FailFast {
				return nil, err
			}
			o.log.WarnContext(ctx, "chunk extraction failed, continuing", "error", err.Error())
			continue
		}

		chunkIDs := messageIDs(chunk.Messages)
		enriched, idByIndex := o.enrichChunk(raw, workspaceID, chunkIDs, profile)
		rawMemories = append(rawMemories, enriched...)
		for _, r := range raw.Relationships {
			fromID, fromOK := idByIndex[r.FromIndex]
			toID, toOK := idByIndex[r.ToIndex]
			if !fromOK || !toOK {
				warnings = append(warnings, "relationship referenced an out-of-range memory index, dropped")
				continue
			}
			pendingRels = append(pendingRels, pendingRelationship{
				fromID: fromID, toID: toID,
				relType: r.RelationshipType, confidence: r.Confidence,
			})
		}
	}

	// Schema gate (step 4): run before dedup so a malformed custom-type
	// memory never wins a merge over a well-formed one.
	var gated []types.Memory
	for _, m := range rawMemories {
		if validator, ok := o.cfg.SchemaValidators[m.Type]; ok {
			if err := validator(m.Metadata); err != nil {
				warnings = append(warnings, fmt.Sprintf("memory %s failed schema validation: %v", m.ID, err))
				continue
			}
		}
		gated = append(gated, m)
	}

	// Dedup: in-chunk and cross-chunk are both folded into this one Merge
	// call (equal-id merging is associative), then merge again against
	// existingMemories for the cross-conversation pass.
	merged := dedup.Merge(append(append([]types.Memory{}, gated...), existingMemories...))
	// Drop merged results that came solely from existingMemories (already
	// persisted, nothing new to validate or return).
	newIDByID := make(map[string]bool, len(gated))
	for _, m := range gated {
		newIDByID[m.ID] = true
	}
	var candidates []types.Memory
	for _, m := range merged {
		if newIDByID[m.ID] {
			candidates = append(candidates, m)
		}
	}

	// Validation batch (step 6).
	validIDs := make(map[string]string, len(candidates))
	var valid []types.Memory
	invalidCount := 0
	for _, m := range candidates {
		if err := dedup.ValidateMemory(m, o.cfg.DedupRules); err != nil {
			warnings = append(warnings, fmt.Sprintf("memory %s dropped: %v", m.ID, err))
			invalidCount++
			continue
		}
		valid = append(valid, m)
		validIDs[m.ID] = m.WorkspaceID
	}

	var validRels []types.Relationship
	for _, r := range pendingRels {
		rel := types.Relationship{
			ID:               idgen.New(),
			WorkspaceID:      workspaceID,
			FromMemoryID:     r.fromID,
			ToMemoryID:       r.toID,
			RelationshipType: r.relType,
			Confidence:       r.confidence,
			CreatedAt:        time.Now().UTC(),
		}
		if err := dedup.ValidateRelationship(rel, validIDs); err != nil {
			warnings = append(warnings, fmt.Sprintf("relationship %s->%s dropped: %v", r.fromID, r.toID, err))
			continue
		}
		validRels = append(validRels, rel)
	}

	return &Result{
		Status:        classifyStatus(len(valid), invalidCount),
		Memories:      valid,
		Relationships: validRels,
		Warnings:      warnings,
	}, nil
}

// Persist writes a Result's memories and relationships into the store,
// generating embeddings is the caller's responsibility (the memory store
// accepts a precomputed embedding per CreateMemoryInput).
func (o *Orchestrator) Persist(ctx context.Context, workspaceID string, result *Result, embeddingsByMemoryID map[string][]float32) error {
	for _, m := range result.Memories {
		_, err := o.store.CreateMemory(ctx, memorystore.CreateMemoryInput{
			ID:               m.ID,
			WorkspaceID:      workspaceID,
			ConversationID:   m.ConversationID,
			Type:             m.Type,
			Content:          m.Content,
			Confidence:       m.Confidence,
			Metadata:         m.Metadata,
			Embedding:        embeddingsByMemoryID[m.ID],
			SourceMessageIDs: m.SourceMessageIDs,
		})
		if err != nil && !apperrors.IsConflict(err) {
			return err
		}
	}
	for _, r := range result.Relationships {
		_, err := o.store.CreateRelationship(ctx, workspaceID, memorystore.CreateRelationshipInput{
			FromMemoryID:     r.FromMemoryID,
			ToMemoryID:       r.ToMemoryID,
			RelationshipType: r.RelationshipType,
			Confidence:       r.Confidence,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type pendingRelationship struct {
	fromID, toID string
	relType      string
	confidence   float64
}

func (o *Orchestrator) splitIntoChunks(messages []types.Message) []chunking.Chunk {
	if o.cfg.Chunking.Enabled && o.chunker.ShouldChunk(messages) {
		return o.chunker.Split(messages)
	}
	tokens := 0
	for _, m := range messages {
		tokens += chunking.EstimateTokens(m.Content)
	}
	return []chunking.Chunk{{Messages: messages, EstimatedTokens: tokens}}
}

// enrichChunk fills defaults and computes deterministic ids for one
// chunk's raw memories. Returns the enriched
// memories plus a map from the raw memory's index within this chunk's
// RawResult to its computed id, so relationships can be resolved.
func (o *Orchestrator) enrichChunk(raw RawResult, workspaceID string, sourceMessageIDs []string, profile Profile) ([]types.Memory, map[int]string) {
	now := time.Now().UTC()
	idByIndex := make(map[int]string, len(raw.Memories))
	out := make([]types.Memory, 0, len(raw.Memories))

	for i, rm := range raw.Memories {
		if rm.Type == "" || rm.Content == "" {
			continue
		}
		if len(profile.MemoryTypes) > 0 && !contains(profile.MemoryTypes, rm.Type) {
			continue
		}
		confidence := rm.Confidence
		if confidence == 0 {
			confidence = 0.5
		}
		if profile.MinConfidence > 0 && confidence < profile.MinConfidence {
			continue
		}

		id := idgen.MemoryID(rm.Type, rm.Content, workspaceID, rm.EntityType)
		idByIndex[i] = id

		m := types.Memory{
			ID:               id,
			WorkspaceID:      workspaceID,
			Type:             rm.Type,
			Content:          rm.Content,
			Confidence:       confidence,
			Metadata:         rm.Metadata,
			CreatedAt:        now,
			UpdatedAt:        now,
			SourceMessageIDs: sourceMessageIDs,
		}
		out = append(out, m)
	}
	return out, idByIndex
}

func messageIDs(messages []types.Message) []string {
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	return ids
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func classifyStatus(validCount, invalidCount int) Status {
	switch {
	case invalidCount == 0 && validCount > 0:
		return StatusSuccess
	case validCount > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
