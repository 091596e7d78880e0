package apperrors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsHelpers_MatchConstructedKind(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("memory", "m1")))
	assert.True(t, IsValidation(Validation("type", "required")))
	assert.True(t, IsConflict(Conflict("duplicate")))
	assert.True(t, IsRateLimit(RateLimit(time.Second)))
	assert.False(t, IsNotFound(Validation("type", "required")))
}

func TestIsHelpers_FalseOnPlainError(t *testing.T) {
	plain := errors.New("boom")
	assert.False(t, IsNotFound(plain))
	assert.False(t, IsValidation(plain))
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Database("insert failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestError_IsComparesKindOnly(t *testing.T) {
	a := NotFound("memory", "m1")
	b := NotFound("workspace", "w1")
	assert.True(t, a.Is(b), "Is compares Kind, not Resource/ResourceID")
}

func TestError_MessageIncludesCauseWhenPresent(t *testing.T) {
	err := VectorStore("upsert failed", errors.New("timeout"))
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), string(KindVectorStore))
}

func TestClassifyLLMError_RateLimit(t *testing.T) {
	err := ClassifyLLMError("anthropic", fmt.Errorf("429 Too Many Requests"))
	assert.True(t, IsRateLimit(err))
}

func TestClassifyLLMError_Parse(t *testing.T) {
	err := ClassifyLLMError("anthropic", fmt.Errorf("failed to unmarshal response JSON"))
	assert.True(t, IsKind(err, KindParse))
}

func TestClassifyLLMError_DefaultsToLLM(t *testing.T) {
	err := ClassifyLLMError("anthropic", fmt.Errorf("connection reset by peer"))
	assert.True(t, IsKind(err, KindLLM))
}

func TestClassifyLLMError_NilPassesThrough(t *testing.T) {
	assert.NoError(t, ClassifyLLMError("anthropic", nil))
}
