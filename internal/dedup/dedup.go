// Package dedup implements deterministic-id merge rules, per-field
// validation, and relationship integrity checks for the extraction
// orchestrator's pipeline.
package dedup

import (
	"sort"

	"workspacememory/internal/types"
)

// Rules bundles the validation thresholds the orchestrator configures.
type Rules struct {
	MinContentLength int
}

// Merge collapses memories sharing the same id into one, keeping the
// highest-confidence candidate's scalar fields, unioning
// source_message_ids, taking the earliest created_at, and merging
// metadata with the highest-confidence candidate's fields taking
// precedence over back-filled values from others. Input order is
// preserved for ties (first-seen wins among equal confidence).
func Merge(memories []types.Memory) []types.Memory {
	groups := make(map[string][]types.Memory)
	var order []string
	for _, m := range memories {
		if _, seen := groups[m.ID]; !seen {
			order = append(order, m.ID)
		}
		groups[m.ID] = append(groups[m.ID], m)
	}

	out := make([]types.Memory, 0, len(order))
	for _, id := range order {
		out = append(out, mergeGroup(groups[id]))
	}
	return out
}

func mergeGroup(group []types.Memory) types.Memory {
	if len(group) == 1 {
		return group[0]
	}

	best := group[0]
	for _, m := range group[1:] {
		if m.Confidence > best.Confidence {
			best = m
		}
	}

	merged := best
	merged.Metadata = map[string]interface{}{}

	sourceSet := map[string]struct{}{}
	earliest := group[0].CreatedAt
	for _, m := range group {
		for _, id := range m.SourceMessageIDs {
			sourceSet[id] = struct{}{}
		}
		if m.CreatedAt.Before(earliest) {
			earliest = m.CreatedAt
		}
	}
	merged.CreatedAt = earliest

	sources := make([]string, 0, len(sourceSet))
	for id := range sourceSet {
		sources = append(sources, id)
	}
	sort.Strings(sources)
	merged.SourceMessageIDs = sources

	// Back-fill metadata: highest-confidence candidate's fields win,
	// others fill gaps only.
	for _, m := range group {
		for k, v := range m.Metadata {
			if _, exists := merged.Metadata[k]; !exists {
				merged.Metadata[k] = v
			}
		}
	}
	for k, v := range best.Metadata {
		merged.Metadata[k] = v
	}

	return merged
}

// ValidateMemory drops memories missing required fields, with confidence
// outside [0,1], or shorter content than configured.
func ValidateMemory(m types.Memory, rules Rules) error {
	if m.Type == "" {
		return errMissingField("type")
	}
	if m.Content == "" {
		return errMissingField("content")
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return errOutOfRange("confidence")
	}
	if rules.MinContentLength > 0 && len(m.Content) < rules.MinContentLength {
		return errTooShort(rules.MinContentLength)
	}
	return nil
}

// ValidateRelationship drops relationships whose endpoints are not in the
// validIDs set, or whose endpoints disagree on workspace.
func ValidateRelationship(r types.Relationship, validByWorkspace map[string]string) error {
	fromWS, fromOK := validByWorkspace[r.FromMemoryID]
	toWS, toOK := validByWorkspace[r.ToMemoryID]
	if !fromOK || !toOK {
		return errDanglingEndpoint()
	}
	if fromWS != toWS {
		return errWorkspaceMismatch()
	}
	return nil
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func errMissingField(field string) error   { return &validationError{"missing required field: " + field} }
func errOutOfRange(field string) error     { return &validationError{field + " out of range"} }
func errTooShort(min int) error            { return &validationError{"content shorter than minimum length"} }
func errDanglingEndpoint() error           { return &validationError{"relationship endpoint did not survive validation"} }
func errWorkspaceMismatch() error          { return &validationError{"relationship endpoints disagree on workspace"} }
