package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTimeout bounds every Redis round trip when Options.Timeout is unset.
const DefaultTimeout = 2 * time.Second

// Options configures a Redis store.
type Options struct {
	// Prefix is prepended to every key as "<prefix>:<key>". Empty means no prefix.
	Prefix string
	// Timeout bounds each operation. Zero selects DefaultTimeout.
	Timeout time.Duration
}

// Redis is a Store backed by a go-redis client.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedis wraps client. The client is owned by the caller.
func NewRedis(client redis.UniversalClient, opts Options) *Redis {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Redis{
		client:  client,
		prefix:  opts.Prefix,
		timeout: timeout,
	}
}

// Set writes value under key with the given TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		return invalidTTL(ttl)
	}
	if r == nil || r.client == nil {
		return ErrUnavailable
	}

	opCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Set(opCtx, r.key(key), value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Get reads key. A missing key returns ErrNotFound.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if r == nil || r.client == nil {
		return nil, ErrUnavailable
	}

	opCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	raw, err := r.client.Get(opCtx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return raw, nil
}

// Take reads and deletes key with GETDEL.
func (r *Redis) Take(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if r == nil || r.client == nil {
		return nil, ErrUnavailable
	}

	opCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	raw, err := r.client.GetDel(opCtx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return raw, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if r == nil || r.client == nil {
		return ErrUnavailable
	}

	opCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Del(opCtx, r.key(key)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, r.timeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
