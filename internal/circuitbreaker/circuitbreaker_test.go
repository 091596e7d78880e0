package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_StaysClosedOnSuccess(t *testing.T) {
	cb := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
		require.NoError(t, err)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_OpensAfterFailureThreshold(t *testing.T) {
	cb := New(&Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Hour, MaxConcurrentRequests: 1})
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	}
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestExecute_RejectsWhileOpen(t *testing.T) {
	cb := New(&Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour, MaxConcurrentRequests: 1})
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn must not run while circuit is open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestExecute_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	cb := New(&Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond, MaxConcurrentRequests: 1})
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(5 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	cb := New(&Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond, MaxConcurrentRequests: 1})
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("still broken") })
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestExecuteWithFallback_InvokedOnRejection(t *testing.T) {
	cb := New(&Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour, MaxConcurrentRequests: 1})
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })

	fallbackCalled := false
	err := cb.ExecuteWithFallback(context.Background(),
		func(ctx context.Context) error { return nil },
		func(ctx context.Context, cause error) error { fallbackCalled = true; return nil })
	require.NoError(t, err)
	assert.True(t, fallbackCalled)
}

func TestReset_ReturnsToClosed(t *testing.T) {
	cb := New(&Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour, MaxConcurrentRequests: 1})
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestGetStats_TracksRequestCounts(t *testing.T) {
	cb := New(DefaultConfig())
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("x") })

	stats := cb.GetStats()
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.TotalSuccesses)
	assert.Equal(t, int64(1), stats.TotalFailures)
}
