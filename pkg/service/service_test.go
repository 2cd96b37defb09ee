package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"shortener/pkg/cache"
	"shortener/pkg/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays seq, one value per IntN call, then repeats the
// last value.
type scriptedSource struct {
	mu    sync.Mutex
	seq   []int
	calls int
}

func (s *scriptedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.seq) {
		i = len(s.seq) - 1
	}
	return s.seq[i] % n
}

// repeat returns v repeated n times.
func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryCache is a MappingCacheInterface that records TTLs. beforeSet,
// when set, runs ahead of every Set without the lock held.
type memoryCache struct {
	mu        sync.Mutex
	entries   map[string]cache.CachedMapping
	ttls      map[string]time.Duration
	err       error
	beforeSet func()
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]cache.CachedMapping), ttls: make(map[string]time.Duration)}
}

func (c *memoryCache) Get(_ context.Context, key string) (*cache.CachedMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (c *memoryCache) Set(_ context.Context, key string, m *cache.CachedMapping, ttl time.Duration) error {
	if c.beforeSet != nil {
		c.beforeSet()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.entries[key] = *m
	c.ttls[key] = ttl
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	for _, k := range keys {
		delete(c.entries, k)
		delete(c.ttls, k)
	}
	return nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func seedMapping(t *testing.T, store storage.MappingStore, key string, expiresAt *time.Time) *storage.Mapping {
	t.Helper()
	m := &storage.Mapping{
		OwnerID:     uuid.New(),
		Destination: "https://example.com/" + key,
		Key:         key,
		IsCustomKey: true,
		ExpiresAt:   expiresAt,
	}
	require.NoError(t, store.CreateMapping(context.Background(), m))
	return m
}
