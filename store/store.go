package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key is absent or its TTL elapsed.
	ErrNotFound = errors.New("store: key not found")
	// ErrUnavailable wraps backend, transport and timeout failures.
	ErrUnavailable = errors.New("store: backend unavailable")
	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("store: invalid key")
	// ErrInvalidTTL is returned by Set for a non-positive TTL.
	ErrInvalidTTL = errors.New("store: ttl must be positive")
)

// Store is a TTL key-value store holding whole-value writes. Implementations
// must be safe for concurrent use; concurrent writers to one key follow
// last-write-wins.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Take reads and deletes key in one step. Of several concurrent Takes on
	// one key at most one returns the value; the rest get ErrNotFound.
	Take(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

func invalidTTL(ttl time.Duration) error {
	return fmt.Errorf("%w, got %s", ErrInvalidTTL, ttl)
}
