package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsWithoutRetryingOnFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), &Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientErrorsUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), &Config{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 1}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), &Config{MaxAttempts: 2, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), &Config{MaxAttempts: 5, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return &Permanent{Err: errors.New("bad request")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, &Config{MaxAttempts: 5, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return errors.New("fails")
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestNew_ClampsOutOfRangeRandomizeFactor(t *testing.T) {
	r := New(&Config{RandomizeFactor: 5})
	assert.Equal(t, 1.0, r.config.RandomizeFactor)
}

func TestDefaultRetryIf_RetriesPlainErrors(t *testing.T) {
	assert.True(t, DefaultRetryIf(errors.New("anything")))
	assert.False(t, DefaultRetryIf(&Permanent{Err: errors.New("x")}))
	assert.True(t, DefaultRetryIf(&Temporary{Err: errors.New("x")}))
}
