package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"workspacememory/internal/types"
)

func TestValidateTransition_ExpiredIsTerminal(t *testing.T) {
	ok, _ := ValidateTransition(types.StateExpired, types.StateActive, false, types.TriggerUser)
	assert.False(t, ok)

	ok, _ = ValidateTransition(types.StateExpired, types.StateArchived, false, types.TriggerSystem)
	assert.False(t, ok)
}

func TestValidateTransition_SystemEdges(t *testing.T) {
	cases := []struct {
		from, to types.LifecycleState
		want     bool
	}{
		{types.StateActive, types.StateDecaying, true},
		{types.StateDecaying, types.StateActive, true},
		{types.StateDecaying, types.StateArchived, true},
		{types.StateActive, types.StateArchived, true},
		{types.StateArchived, types.StateExpired, true},
		{types.StateArchived, types.StateActive, false}, // restore is user-only
		{types.StateExpired, types.StateActive, false},
	}
	for _, c := range cases {
		ok, reason := ValidateTransition(c.from, c.to, false, types.TriggerSystem)
		assert.Equal(t, c.want, ok, "system %s->%s: %s", c.from, c.to, reason)
	}
}

func TestValidateTransition_UserEdges(t *testing.T) {
	cases := []struct {
		from, to types.LifecycleState
		want     bool
	}{
		{types.StateActive, types.StateArchived, true},
		{types.StateArchived, types.StateActive, true},
		{types.StateDecaying, types.StateArchived, false}, // system-only, users can't archive out of decaying
		{types.StateActive, types.StateDecaying, false},   // system-only
		{types.StateDecaying, types.StateActive, false},   // system-only
	}
	for _, c := range cases {
		ok, reason := ValidateTransition(c.from, c.to, false, types.TriggerUser)
		assert.Equal(t, c.want, ok, "user %s->%s: %s", c.from, c.to, reason)
	}
}

func TestValidateTransition_PinningRequiresUserTrigger(t *testing.T) {
	ok, _ := ValidateTransition(types.StateActive, types.StatePinned, false, types.TriggerUser)
	assert.True(t, ok)

	ok, _ = ValidateTransition(types.StateActive, types.StatePinned, false, types.TriggerSystem)
	assert.False(t, ok)
}

func TestValidateTransition_CannotPinTwice(t *testing.T) {
	ok, _ := ValidateTransition(types.StateActive, types.StatePinned, true, types.TriggerUser)
	assert.False(t, ok)
}

func TestValidateTransition_UnpinTargetsOnlyActiveOrDecaying(t *testing.T) {
	ok, _ := ValidateTransition(types.StatePinned, types.StateActive, true, types.TriggerUser)
	assert.True(t, ok)

	ok, _ = ValidateTransition(types.StatePinned, types.StateDecaying, true, types.TriggerUser)
	assert.True(t, ok)

	ok, _ = ValidateTransition(types.StatePinned, types.StateArchived, true, types.TriggerUser)
	assert.False(t, ok)
}

func TestValidateTransition_PinnedNeverMovedBySystem(t *testing.T) {
	ok, _ := ValidateTransition(types.StatePinned, types.StateArchived, true, types.TriggerSystem)
	assert.False(t, ok)

	ok, _ = ValidateTransition(types.StatePinned, types.StateExpired, true, types.TriggerSystem)
	assert.False(t, ok)
}

func TestValidateTransition_PinnedMemoryBlocksOtherTransitions(t *testing.T) {
	ok, reason := ValidateTransition(types.StateActive, types.StateDecaying, true, types.TriggerSystem)
	assert.False(t, ok)
	assert.Contains(t, reason, "pinned")
}

func TestValidateTransition_NoOpRejected(t *testing.T) {
	ok, _ := ValidateTransition(types.StateActive, types.StateActive, false, types.TriggerSystem)
	assert.False(t, ok)
}

func TestValidateTransition_UnknownTrigger(t *testing.T) {
	ok, _ := ValidateTransition(types.StateActive, types.StateDecaying, false, types.TriggerSource("bogus"))
	assert.False(t, ok)
}
