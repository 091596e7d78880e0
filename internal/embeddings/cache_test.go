package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider counts calls per text, for cache-hit assertions.
type fakeProvider struct {
	calls map[string]int
	dim   int
}

func newFakeProvider(dim int) *fakeProvider { return &fakeProvider{calls: make(map[string]int), dim: dim} }

func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls[text]++
	if text == "fail" {
		return nil, errors.New("embedding provider error")
	}
	v := make([]float32, p.dim)
	for i := range v {
		v[i] = float32(len(text))
	}
	return v, nil
}

func (p *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *fakeProvider) Dimensions() int { return p.dim }

func TestCache_MissThenHit(t *testing.T) {
	c := NewCache(10, time.Hour)
	_, ok := c.Get("hello")
	assert.False(t, ok)

	c.Set("hello", []float32{1, 2, 3})
	v, ok := c.Get("hello")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, v)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := NewCache(10, time.Millisecond)
	c.Set("hello", []float32{1})
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("hello")
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, time.Hour)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Get("a") // touch a, making b the LRU
	c.Set("c", []float32{3})

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")
	assert.True(t, aOK)
	assert.False(t, bOK, "b should have been evicted as least-recently-used")
	assert.True(t, cOK)
}

func TestCache_StatsTracksHitsAndMisses(t *testing.T) {
	c := NewCache(10, time.Hour)
	c.Get("miss")
	c.Set("hit", []float32{1})
	c.Get("hit")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestCache_GetReturnsACopyNotTheBackingArray(t *testing.T) {
	c := NewCache(10, time.Hour)
	c.Set("hello", []float32{1, 2, 3})
	v, _ := c.Get("hello")
	v[0] = 999

	v2, _ := c.Get("hello")
	assert.Equal(t, float32(1), v2[0])
}

func TestCachedProvider_EmbedIsCachedAcrossCalls(t *testing.T) {
	fake := newFakeProvider(3)
	p := NewCachedProvider(fake, NewCache(10, time.Hour))

	_, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls["hello"])
}

func TestCachedProvider_EmbedBatchOnlyFetchesMisses(t *testing.T) {
	fake := newFakeProvider(3)
	cache := NewCache(10, time.Hour)
	p := NewCachedProvider(fake, cache)
	ctx := context.Background()

	_, err := p.Embed(ctx, "cached")
	require.NoError(t, err)

	out, err := p.EmbedBatch(ctx, []string{"cached", "new"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, fake.calls["cached"])
	assert.Equal(t, 1, fake.calls["new"])
}

func TestCachedProvider_DimensionsDelegatesToInner(t *testing.T) {
	fake := newFakeProvider(7)
	p := NewCachedProvider(fake, NewCache(10, time.Hour))
	assert.Equal(t, 7, p.Dimensions())
}
