package embeddings

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// cacheEntry is one cached embedding, tracked in the LRU list.
type cacheEntry struct {
	key       string
	value     []float32
	element   *list.Element
	createdAt time.Time
}

// Cache is an LRU+TTL cache keyed by a hash of the input text. It fronts
// a Provider to avoid redundant embed calls for repeated dedup/search
// text.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	lru     *list.List
	maxSize int
	ttl     time.Duration

	hits, misses, evictions int64
}

// NewCache creates an LRU+TTL cache. maxSize<=0 defaults to 1000; ttl<=0
// defaults to 24h.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{entries: make(map[string]*cacheEntry), lru: list.New(), maxSize: maxSize, ttl: ttl}
}

func (c *Cache) hashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the cached vector, or (nil, false) on miss/expiry.
func (c *Cache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.hashKey(text)
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Since(e.createdAt) > c.ttl {
		c.removeEntry(e)
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(e.element)
	c.hits++
	out := make([]float32, len(e.value))
	copy(out, e.value)
	return out, true
}

// Set stores a vector, evicting the least-recently-used entry if full.
func (c *Cache) Set(text string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.hashKey(text)
	if e, ok := c.entries[key]; ok {
		e.value = append([]float32(nil), vec...)
		e.createdAt = time.Now()
		c.lru.MoveToFront(e.element)
		return
	}

	e := &cacheEntry{key: key, value: append([]float32(nil), vec...), createdAt: time.Now()}
	e.element = c.lru.PushFront(e)
	c.entries[key] = e

	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeEntry(oldest.Value.(*cacheEntry))
		c.evictions++
	}
}

func (c *Cache) removeEntry(e *cacheEntry) {
	c.lru.Remove(e.element)
	delete(c.entries, e.key)
}

// Stats reports cache hit/miss/eviction counters.
type Stats struct {
	Hits, Misses, Evictions int64
	Size                    int
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Size: len(c.entries)}
}

// CachedProvider wraps a Provider with a Cache, keyed on raw input text.
type CachedProvider struct {
	inner Provider
	cache *Cache
}

func NewCachedProvider(inner Provider, cache *Cache) *CachedProvider {
	return &CachedProvider{inner: inner, cache: cache}
}

func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := p.cache.Get(text); ok {
		return v, nil
	}
	v, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(text, v)
	return v, nil
}

func (p *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var misses []string
	var missIdx []int
	for i, t := range texts {
		if v, ok := p.cache.Get(t); ok {
			out[i] = v
			continue
		}
		misses = append(misses, t)
		missIdx = append(missIdx, i)
	}
	if len(misses) == 0 {
		return out, nil
	}
	fetched, err := p.inner.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = fetched[j]
		p.cache.Set(misses[j], fetched[j])
	}
	return out, nil
}

func (p *CachedProvider) Dimensions() int { return p.inner.Dimensions() }
