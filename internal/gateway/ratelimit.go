package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces the per-connection rate window in spec.md §4.6: at
// most N inbound operations per window. Both implementations below count
// in fixed windows that start at a connection's first counted operation
// and reset once the window has elapsed; the window does not slide.
type Limiter interface {
	Allow(ctx context.Context, connID string) (bool, error)
}

// RedisLimiter is grounded on mikiasyonas-Micro-Casino's
// RedisService.CheckRateLimit: an INCR against a windowed key, with
// EXPIRE set only on the key's first increment.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter returns a Limiter allowing limit operations per window,
// counted per connID.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, connID string) (bool, error) {
	key := fmt.Sprintf("ratelimit:gateway:%s", connID)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("gateway: rate limit check: %w", err)
	}
	if count == 1 {
		l.client.Expire(ctx, key, l.window)
	}
	return count <= int64(l.limit), nil
}

// MemoryLimiter is the fallback used when Redis is unavailable, matching
// nutcas3-aviator-fun/internal/cache's "Running without Redis cache"
// degrade path — the gateway keeps enforcing limits in-process rather
// than disabling them.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*windowCount
}

type windowCount struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter returns an in-process Limiter allowing limit
// operations per window, counted per connID.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, window: window, windows: make(map[string]*windowCount)}
}

func (l *MemoryLimiter) Allow(ctx context.Context, connID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[connID]
	if !ok || now.After(w.resetAt) {
		w = &windowCount{count: 0, resetAt: now.Add(l.window)}
		l.windows[connID] = w
	}
	w.count++
	return w.count <= l.limit, nil
}
