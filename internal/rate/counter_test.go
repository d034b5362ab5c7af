package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCounterFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewRedisCounter(rdb, "ro", time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Hit(ctx, "sid", 3, time.Minute))
	}
	assert.ErrorIs(t, c.Hit(ctx, "sid", 3, time.Minute), ErrRateLimited)
	assert.Equal(t, time.Minute, mr.TTL("ro:sid"))

	mr.FastForward(time.Minute + time.Second)
	assert.NoError(t, c.Hit(ctx, "sid", 3, time.Minute))
}

func TestRedisCounterUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	c := NewRedisCounter(rdb, "", 200*time.Millisecond)
	err := c.Hit(context.Background(), "sid", 3, time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryCounterFixedWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewMemoryCounter(16, time.Hour)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Hit(ctx, "a", 2, time.Minute))
	require.NoError(t, c.Hit(ctx, "a", 2, time.Minute))
	assert.ErrorIs(t, c.Hit(ctx, "a", 2, time.Minute), ErrRateLimited)
	require.NoError(t, c.Hit(ctx, "b", 2, time.Minute))

	now = now.Add(time.Minute)
	assert.NoError(t, c.Hit(ctx, "a", 2, time.Minute))
}
