package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"shortener/pkg/logging"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether the client identified by id may proceed.
type Limiter interface {
	Allow(ctx context.Context, id string) (bool, error)
}

// RedisLimiter is a fixed-window counter per client kept in Redis, so the
// limit holds across every replica sharing the instance.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: int64(limit), window: window, prefix: "ratelimit:create:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, id string) (bool, error) {
	key := l.prefix + id

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit update failed: %w", err)
	}
	return incr.Val() <= l.limit, nil
}

// ClientAddr keys a client by the host of the connection's remote address.
// Forwarding headers are client-controlled and are not consulted.
func ClientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects clients over their limit with 429. The client is keyed
// by keyFn; a limiter error lets the request through.
func RateLimit(l Limiter, keyFn func(*http.Request) string, window time.Duration, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := l.Allow(r.Context(), keyFn(r))
			if err != nil {
				logger.Warn(r.Context(), "rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
