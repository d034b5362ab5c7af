package rate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned once a key exceeds its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable wraps counter backend failures.
	ErrUnavailable = errors.New("rate counter unavailable")
)

// Counter counts attempts per key within a fixed window.
type Counter interface {
	// Hit records one attempt and returns ErrRateLimited when the count
	// exceeds max.
	Hit(ctx context.Context, key string, max int, window time.Duration) error
}

// RedisCounter keeps counters in Redis so limits hold across replicas.
type RedisCounter struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func NewRedisCounter(client redis.UniversalClient, prefix string, timeout time.Duration) *RedisCounter {
	if prefix == "" {
		prefix = "ro"
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisCounter{redis: client, prefix: prefix, timeout: timeout}
}

func (c *RedisCounter) Hit(ctx context.Context, key string, max int, window time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	count, err := c.incrementWithTTL(opCtx, c.prefix+":"+key, window)
	if err != nil {
		return err
	}
	if count > int64(max) {
		return ErrRateLimited
	}
	return nil
}

func (c *RedisCounter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := c.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return count, nil
}

type window struct {
	count   int
	expires time.Time
}

// MemoryCounter is a single-process Counter. Entries are evicted after
// maxWindow or when size is exceeded.
type MemoryCounter struct {
	mu      sync.Mutex
	windows *expirable.LRU[string, *window]
	now     func() time.Time
}

func NewMemoryCounter(size int, maxWindow time.Duration) *MemoryCounter {
	if size <= 0 {
		size = 10000
	}
	return &MemoryCounter{
		windows: expirable.NewLRU[string, *window](size, nil, maxWindow),
		now:     time.Now,
	}
}

// WithClock replaces the window clock. It must be called before first use.
func (c *MemoryCounter) WithClock(now func() time.Time) *MemoryCounter {
	if now != nil {
		c.now = now
	}
	return c
}

func (c *MemoryCounter) Hit(_ context.Context, key string, max int, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows.Get(key)
	if !ok || !now.Before(w.expires) {
		w = &window{expires: now.Add(ttl)}
		c.windows.Add(key, w)
	}
	w.count++
	if w.count > max {
		return ErrRateLimited
	}
	return nil
}
