package lifecycle

import (
	"context"

	"workspacememory/internal/apperrors"
	"workspacememory/internal/types"
)

// Pin marks a memory pinned on a user's request, validating the
// any(not pinned) -> pinned edge before writing.
func (e *Engine) Pin(ctx context.Context, id, workspaceID, userID string) error {
	m, err := e.store.GetMemory(ctx, id, workspaceID)
	if err != nil {
		return err
	}
	valid, reason := ValidateTransition(m.LifecycleState, types.StatePinned, m.Pinned, types.TriggerUser)
	if !valid {
		return apperrors.Validation("lifecycle_state", reason)
	}
	if err := e.store.Pin(ctx, id, workspaceID, userID); err != nil {
		return err
	}
	return e.store.AppendLifecycleEvent(ctx, types.LifecycleEvent{
		MemoryID: id, WorkspaceID: workspaceID, PreviousState: m.LifecycleState, NewState: types.StatePinned,
		Reason: "pinned by user", TriggeredBy: types.TriggerUser, UserID: userID,
	})
}

// Unpin releases a pin, moving the memory to target (active or decaying,
// chosen by the caller from the memory's current decay score), the
// pinned -> {active,decaying} user edge.
func (e *Engine) Unpin(ctx context.Context, id, workspaceID string, target types.LifecycleState) error {
	m, err := e.store.GetMemory(ctx, id, workspaceID)
	if err != nil {
		return err
	}
	if !m.Pinned {
		return apperrors.Validation("lifecycle_state", "memory is not pinned")
	}
	valid, reason := ValidateTransition(types.StatePinned, target, true, types.TriggerUser)
	if !valid {
		return apperrors.Validation("lifecycle_state", reason)
	}
	if err := e.store.Unpin(ctx, id, workspaceID, target); err != nil {
		return err
	}
	return e.store.AppendLifecycleEvent(ctx, types.LifecycleEvent{
		MemoryID: id, WorkspaceID: workspaceID, PreviousState: types.StatePinned, NewState: target,
		Reason: "unpinned by user", TriggeredBy: types.TriggerUser,
	})
}

// Archive archives a memory on a user's explicit request (the active ->
// archived user edge; a decaying memory must first decay back to active
// or be archived by the system, since users cannot directly archive out
// of decaying), as opposed to the system's TTL-driven archival in the
// batch evaluator.
func (e *Engine) Archive(ctx context.Context, id, workspaceID, userID, reason string) error {
	m, err := e.store.GetMemory(ctx, id, workspaceID)
	if err != nil {
		return err
	}
	valid, vReason := ValidateTransition(m.LifecycleState, types.StateArchived, m.Pinned, types.TriggerUser)
	if !valid {
		return apperrors.Validation("lifecycle_state", vReason)
	}
	return e.store.ArchiveMemory(ctx, id, workspaceID, reason, types.TriggerUser, userID)
}

// Restore moves an archived memory back to active on a user's request,
// resetting its decay score and incrementing its access count.
func (e *Engine) Restore(ctx context.Context, id, workspaceID string) (*types.Memory, error) {
	valid, reason := ValidateTransition(types.StateArchived, types.StateActive, false, types.TriggerUser)
	if !valid {
		return nil, apperrors.Validation("lifecycle_state", reason)
	}
	return e.store.RestoreMemory(ctx, id, workspaceID)
}
