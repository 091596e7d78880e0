package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"workspacememory/internal/apperrors"
)

func newTestLimiter(t *testing.T, window time.Duration, maxRequests int) *Limiter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	l := New(mr.Addr(), 0, window, maxRequests)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAllow_PermitsRequestsUnderLimit(t *testing.T) {
	l := newTestLimiter(t, time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "llm:claude"))
	}
}

func TestAllow_DeniesRequestOverLimit(t *testing.T) {
	l := newTestLimiter(t, time.Minute, 2)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "embeddings:openai"))
	require.NoError(t, l.Allow(ctx, "embeddings:openai"))

	err := l.Allow(ctx, "embeddings:openai")
	require.Error(t, err)
	require.True(t, apperrors.IsRateLimit(err), "expected a rate_limit error, got %v", err)
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "llm:claude"))
	require.Error(t, l.Allow(ctx, "llm:claude"))

	// A distinct key has its own independent window.
	require.NoError(t, l.Allow(ctx, "embeddings:openai"))
}

func TestAllow_WindowSlidesAfterExpiry(t *testing.T) {
	l := newTestLimiter(t, 50*time.Millisecond, 1)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "llm:claude"))
	require.Error(t, l.Allow(ctx, "llm:claude"))

	time.Sleep(75 * time.Millisecond)
	require.NoError(t, l.Allow(ctx, "llm:claude"), "request should be allowed again once the window has slid past it")
}
