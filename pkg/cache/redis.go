package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// MappingCacheInterface is the read-through cache in front of key lookups.
// Get returns (nil, nil) on a miss.
type MappingCacheInterface interface {
	Get(ctx context.Context, key string) (*CachedMapping, error)
	Set(ctx context.Context, key string, m *CachedMapping, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type MappingCache struct {
	client *redis.Client
	prefix string
}

// CachedMapping holds just what a redirect needs. Key and Version pin the
// entry to the mapping row it was read from. Missing marks a negative entry
// for a key with no mapping.
type CachedMapping struct {
	ID          int64      `json:"id"`
	Key         string     `json:"key"`
	Version     int64      `json:"version"`
	Destination string     `json:"destination"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Missing     bool       `json:"missing,omitempty"`
}

func NewMappingCache(client *redis.Client) *MappingCache {
	return &MappingCache{client: client, prefix: "mapping:"}
}

func (c *MappingCache) Get(ctx context.Context, key string) (*CachedMapping, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cached CachedMapping
	if err := json.Unmarshal(val, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (c *MappingCache) Set(ctx context.Context, key string, m *CachedMapping, ttl time.Duration) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

func (c *MappingCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	return c.client.Del(ctx, full...).Err()
}

// NoopCache never hits. It stands in when Redis is disabled.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*CachedMapping, error)              { return nil, nil }
func (NoopCache) Set(context.Context, string, *CachedMapping, time.Duration) error { return nil }
func (NoopCache) Delete(context.Context, ...string) error                          { return nil }
