package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shortener/pkg/metrics"
	"shortener/pkg/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(store storage.MappingStore, c *memoryCache, clock *fakeClock) *RedirectResolver {
	cfg := ResolverConfig{Now: clock.Now}
	if c == nil {
		return NewRedirectResolver(store, nil, cfg, nil, nil)
	}
	return NewRedirectResolver(store, c, cfg, nil, nil)
}

func TestResolve_RecordsClick(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	clock := newFakeClock()
	m := seedMapping(t, store, "abc", nil)
	r := newResolver(store, nil, clock)

	dest, err := r.Resolve(ctx, "abc", ClientContext{
		IP:        "203.0.113.5",
		UserAgent: "  curl/8.0  ",
		Referer:   "https://news.example.org/post/1",
	})
	require.NoError(t, err)
	assert.Equal(t, m.Destination, dest)

	got, err := store.FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ClickCount)

	events, err := store.ListClicks(ctx, m.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.True(t, clock.Now().Equal(e.ClickedAt))
	require.NotNil(t, e.SourceIP)
	assert.Equal(t, "203.0.113.5", *e.SourceIP)
	require.NotNil(t, e.UserAgent)
	assert.Equal(t, "curl/8.0", *e.UserAgent)
	require.NotNil(t, e.Referer)
	assert.Equal(t, "https://news.example.org/post/1", *e.Referer)
}

func TestResolve_DropsUnusableMetadata(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	m := seedMapping(t, store, "abc", nil)
	r := newResolver(store, nil, newFakeClock())

	_, err := r.Resolve(ctx, "abc", ClientContext{IP: "not-an-ip", UserAgent: "   ", Referer: "/relative"})
	require.NoError(t, err)

	events, err := store.ListClicks(ctx, m.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].SourceIP)
	assert.Nil(t, events[0].UserAgent)
	assert.Nil(t, events[0].Referer)
}

func TestResolve_Expired(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	clock := newFakeClock()
	past := clock.Now().Add(-time.Second)
	m := seedMapping(t, store, "old", &past)
	r := newResolver(store, nil, clock)

	_, err := r.Resolve(ctx, "old", ClientContext{})
	assert.ErrorIs(t, err, ErrExpired)
	assert.True(t, IsLinkUnavailable(err))

	got, err := store.FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ClickCount)
	events, err := store.ListClicks(ctx, m.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestResolve_ExpiresAtBoundary(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	clock := newFakeClock()
	at := clock.Now().Add(time.Minute)
	seedMapping(t, store, "soon", &at)
	r := newResolver(store, nil, clock)

	_, err := r.Resolve(ctx, "soon", ClientContext{})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = r.Resolve(ctx, "soon", ClientContext{})
	require.NoError(t, err, "a link is still live at exactly its expiry instant")

	clock.Advance(time.Nanosecond)
	_, err = r.Resolve(ctx, "soon", ClientContext{})
	assert.ErrorIs(t, err, ErrExpired)
}

func TestResolve_UnknownKey(t *testing.T) {
	r := newResolver(storage.NewMemoryMappingStore(), nil, newFakeClock())

	_, err := r.Resolve(context.Background(), "never", ClientContext{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, errors.Is(err, ErrExpired))
}

func TestResolve_ConcurrentClicksAreAllCounted(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	m := seedMapping(t, store, "hot", nil)
	r := newResolver(store, nil, newFakeClock())

	const n = 2
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(ctx, "hot", ClientContext{IP: "198.51.100.7"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.ClickCount)
	events, err := store.ListClicks(ctx, m.ID, 10)
	require.NoError(t, err)
	assert.Len(t, events, n)
}

func TestResolve_ManyConcurrentClicks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	m := seedMapping(t, store, "viral", nil)
	r := newResolver(store, newMemoryCache(), newFakeClock())

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Resolve(ctx, "viral", ClientContext{})
		}()
	}
	wg.Wait()

	got, err := store.FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.ClickCount)
}

func TestResolve_DeletedMapping(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	m := seedMapping(t, store, "gone", nil)
	r := newResolver(store, nil, newFakeClock())

	_, err := r.Resolve(ctx, "gone", ClientContext{})
	require.NoError(t, err)
	require.NoError(t, store.DeleteMapping(ctx, m.ID))

	_, err = r.Resolve(ctx, "gone", ClientContext{})
	assert.ErrorIs(t, err, ErrNotFound)
	events, err := store.ListClicks(ctx, m.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestResolve_StaleCacheEntry(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	c := newMemoryCache()
	m := seedMapping(t, store, "stale", nil)
	r := newResolver(store, c, newFakeClock())

	_, err := r.Resolve(ctx, "stale", ClientContext{})
	require.NoError(t, err)
	require.True(t, c.has("stale"))

	// Deleted behind the cache's back.
	require.NoError(t, store.DeleteMapping(ctx, m.ID))

	_, err = r.Resolve(ctx, "stale", ClientContext{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, c.has("stale"))
}

func TestResolve_CacheTTLBoundedByExpiry(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	c := newMemoryCache()
	clock := newFakeClock()
	at := clock.Now().Add(10 * time.Minute)
	seedMapping(t, store, "short", &at)
	seedMapping(t, store, "long", nil)
	r := newResolver(store, c, clock)

	_, err := r.Resolve(ctx, "short", ClientContext{})
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "long", ClientContext{})
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, c.ttls["short"])
	assert.Equal(t, 24*time.Hour, c.ttls["long"])
}

func TestResolve_ExpiredFromCache(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	c := newMemoryCache()
	clock := newFakeClock()
	at := clock.Now().Add(time.Minute)
	seedMapping(t, store, "brief", &at)
	r := newResolver(store, c, clock)

	_, err := r.Resolve(ctx, "brief", ClientContext{})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = r.Resolve(ctx, "brief", ClientContext{})
	assert.ErrorIs(t, err, ErrExpired)
}

func TestResolve_CacheFailureFallsThrough(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	c := newMemoryCache()
	c.err = errors.New("redis unavailable")
	m := seedMapping(t, store, "abc", nil)
	r := newResolver(store, c, newFakeClock())

	dest, err := r.Resolve(ctx, "abc", ClientContext{})
	require.NoError(t, err)
	assert.Equal(t, m.Destination, dest)
}

func TestResolve_NegativeCache(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	c := newMemoryCache()
	r := NewRedirectResolver(store, c, ResolverConfig{NegativeCacheTTL: time.Minute, Now: newFakeClock().Now}, nil, nil)

	_, err := r.Resolve(ctx, "nope", ClientContext{})
	assert.ErrorIs(t, err, ErrNotFound)
	require.True(t, c.has("nope"))
	assert.True(t, c.entries["nope"].Missing)
	assert.Equal(t, time.Minute, c.ttls["nope"])

	_, err = r.Resolve(ctx, "nope", ClientContext{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_Metrics(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	clock := newFakeClock()
	past := clock.Now().Add(-time.Hour)
	seedMapping(t, store, "live", nil)
	seedMapping(t, store, "dead", &past)

	reg := prometheus.NewRegistry()
	r := NewRedirectResolver(store, nil, ResolverConfig{Now: clock.Now}, nil, metrics.New(reg))

	_, _ = r.Resolve(ctx, "live", ClientContext{})
	_, _ = r.Resolve(ctx, "dead", ClientContext{})
	_, _ = r.Resolve(ctx, "missing", ClientContext{})

	families, err := reg.Gather()
	require.NoError(t, err)
	outcomes := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "shortener_resolutions_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			outcomes[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{
		metrics.OutcomeFound:    1,
		metrics.OutcomeExpired:  1,
		metrics.OutcomeNotFound: 1,
	}, outcomes)
}
