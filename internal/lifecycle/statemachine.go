// Package lifecycle implements the memory lifecycle engine: the state
// machine transition table, the batch decay/classify/transition
// evaluator, archival and restore, and expired-memory cleanup. The batch
// evaluator returns a Report-style result, joins per-workspace failures
// with errors.Join, and paginates through every workspace.
package lifecycle

import "workspacememory/internal/types"

// transitionKey identifies one (from, to) edge, independent of trigger or
// pin state, which ValidateTransition layers on top.
type transitionKey struct {
	from types.LifecycleState
	to   types.LifecycleState
}

// systemEdges lists every transition the system (decay/TTL) may make on
// its own.
var systemEdges = map[transitionKey]bool{
	{types.StateActive, types.StateDecaying}:  true,
	{types.StateDecaying, types.StateActive}:  true,
	{types.StateDecaying, types.StateArchived}: true,
	{types.StateActive, types.StateArchived}:  true, // only via TTL grace
	{types.StateArchived, types.StateExpired}: true,
}

// userEdges lists every transition a user action may make directly,
// separate from pin/unpin which is handled by its own rule below.
var userEdges = map[transitionKey]bool{
	{types.StateActive, types.StateArchived}: true,
	{types.StateArchived, types.StateActive}: true, // restore
}

// ValidateTransition implements the pure (from, to, is_pinned, trigger) ->
// {valid, reason} function. It never reads or writes
// anything; the batch evaluator and the user-facing pin/unpin/restore
// operations both call through this single source of truth.
func ValidateTransition(from, to types.LifecycleState, isPinned bool, trigger types.TriggerSource) (bool, string) {
	if from == types.StateExpired {
		return false, "expired is a terminal state"
	}
	if from == to {
		return false, "no-op transition"
	}

	if to == types.StatePinned {
		if isPinned {
			return false, "already pinned"
		}
		if trigger != types.TriggerUser {
			return false, "pinning requires a user trigger"
		}
		return true, ""
	}

	if from == types.StatePinned {
		if trigger != types.TriggerUser {
			return false, "a pinned memory cannot be moved by the system"
		}
		if to != types.StateActive && to != types.StateDecaying {
			return false, "unpinning must target active or decaying"
		}
		return true, ""
	}

	if isPinned {
		return false, "pinned memories do not transition except by unpin"
	}

	switch trigger {
	case types.TriggerSystem:
		if systemEdges[transitionKey{from, to}] {
			return true, ""
		}
		return false, "no system edge from " + string(from) + " to " + string(to)
	case types.TriggerUser:
		if userEdges[transitionKey{from, to}] {
			return true, ""
		}
		return false, "no user edge from " + string(from) + " to " + string(to)
	default:
		return false, "unknown trigger source"
	}
}
