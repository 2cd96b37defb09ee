package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shortener/pkg/cache"
	"shortener/pkg/logging"
	"shortener/pkg/metrics"
	"shortener/pkg/storage"
)

// resolveAttempts bounds how often Resolve re-reads a mapping that changed
// underneath it.
const resolveAttempts = 3

type ResolverConfig struct {
	// CacheTTL bounds how long a mapping stays cached. Default: 24 hours
	CacheTTL time.Duration

	// NegativeCacheTTL caches unknown keys. Zero disables negative caching.
	NegativeCacheTTL time.Duration

	// Now is the resolution clock. Default: time.Now
	Now func() time.Time
}

// RedirectResolver turns a key into a destination and accounts for the
// click. No lock is held across its storage calls; each call is atomic on
// its own.
type RedirectResolver struct {
	store   storage.MappingStore
	cache   cache.MappingCacheInterface
	cfg     ResolverConfig
	logger  *logging.Logger
	metrics *metrics.Metrics
}

func NewRedirectResolver(store storage.MappingStore, c cache.MappingCacheInterface, cfg ResolverConfig, logger *logging.Logger, m *metrics.Metrics) *RedirectResolver {
	if c == nil {
		c = cache.NoopCache{}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RedirectResolver{store: store, cache: c, cfg: cfg, logger: logger, metrics: m}
}

// Resolve looks key up, rejects expired mappings, appends a click event,
// bumps the counter by one and returns the destination. The event and the
// increment are separate writes; a crash between them leaves the counter
// one behind, which the reconciliation job repairs.
//
// The click event is only written while the mapping still has the key and
// version that were read, so a stale cache entry never produces a redirect.
// On a mismatch the entry is dropped and the mapping is read again from
// the store.
func (r *RedirectResolver) Resolve(ctx context.Context, key string, client ClientContext) (string, error) {
	now := r.cfg.Now()

	fresh := false
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		target, cached, err := r.lookup(ctx, key, fresh)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				r.outcome(ctx, key, metrics.OutcomeNotFound)
				return "", ErrNotFound
			}
			r.outcome(ctx, key, metrics.OutcomeError)
			return "", err
		}

		if target.ExpiresAt != nil && now.After(*target.ExpiresAt) {
			if cached {
				fresh = true
				continue
			}
			r.outcome(ctx, key, metrics.OutcomeExpired)
			return "", ErrExpired
		}

		event := client.clickEvent()
		event.MappingID = target.ID
		event.ClickedAt = now.UTC()
		err = r.store.AppendClickEvent(ctx, event, target.Key, target.Version)
		if errors.Is(err, storage.ErrStaleMapping) {
			r.logger.Debug(ctx, "mapping changed during resolution", "key", key, "version", target.Version)
			r.Invalidate(ctx, key)
			fresh = true
			continue
		}
		if err != nil {
			return "", r.writeFailed(ctx, key, "failed to record click", err)
		}
		r.metrics.ClickRecorded()

		if _, err := r.store.IncrementClickCount(ctx, target.ID, 1); err != nil {
			return "", r.writeFailed(ctx, key, "failed to increment click count", err)
		}

		r.outcome(ctx, key, metrics.OutcomeFound)
		return target.Destination, nil
	}

	r.outcome(ctx, key, metrics.OutcomeNotFound)
	return "", ErrNotFound
}

// Invalidate drops cached entries for keys.
func (r *RedirectResolver) Invalidate(ctx context.Context, keys ...string) {
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.logger.Warn(ctx, "cache invalidation failed", "keys", keys, "error", err)
	}
}

// lookup reads key through the cache, or straight from the store when
// fresh is set. The boolean reports whether the entry came from the cache.
func (r *RedirectResolver) lookup(ctx context.Context, key string, fresh bool) (*cache.CachedMapping, bool, error) {
	if !fresh {
		cached, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Warn(ctx, "cache read failed", "key", key, "error", err)
		} else if cached != nil {
			if cached.Missing {
				return nil, true, ErrNotFound
			}
			return cached, true, nil
		}
	}

	m, err := r.store.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			if r.cfg.NegativeCacheTTL > 0 {
				r.fill(ctx, key, &cache.CachedMapping{Missing: true}, r.cfg.NegativeCacheTTL)
			}
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("failed to look up key: %w", err)
	}

	entry := &cache.CachedMapping{ID: m.ID, Key: m.Key, Version: m.Version, Destination: m.Destination, ExpiresAt: m.ExpiresAt}
	ttl := r.cfg.CacheTTL
	if m.ExpiresAt != nil {
		if remaining := m.ExpiresAt.Sub(r.cfg.Now()); remaining > 0 && remaining < ttl {
			ttl = remaining
		}
	}
	r.fill(ctx, key, entry, ttl)
	return entry, false, nil
}

func (r *RedirectResolver) fill(ctx context.Context, key string, entry *cache.CachedMapping, ttl time.Duration) {
	if err := r.cache.Set(ctx, key, entry, ttl); err != nil {
		r.logger.Warn(ctx, "cache write failed", "key", key, "error", err)
	}
}

// writeFailed maps a failed click write. A mapping deleted after lookup
// reads as not found; anything else is an opaque storage failure.
func (r *RedirectResolver) writeFailed(ctx context.Context, key, msg string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		r.Invalidate(ctx, key)
		r.outcome(ctx, key, metrics.OutcomeNotFound)
		return ErrNotFound
	}
	r.outcome(ctx, key, metrics.OutcomeError)
	return fmt.Errorf("%s: %w", msg, err)
}

func (r *RedirectResolver) outcome(ctx context.Context, key, outcome string) {
	r.metrics.Resolution(outcome)
	r.logger.LogResolution(ctx, key, outcome)
}
