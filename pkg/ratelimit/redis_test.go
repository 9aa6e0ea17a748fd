package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLimiter_Integration(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	limit := Limit{Capacity: 2, Rate: 10, Period: time.Second}
	limiter, err := NewRedisLimiter(client, limit, fmt.Sprintf("it:%d:", time.Now().UnixNano()))
	require.NoError(t, err)

	t.Run("BasicFlow", func(t *testing.T) {
		d, err := limiter.Allow(ctx, "client", 1)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(1), d.Remaining)

		d, err = limiter.Allow(ctx, "client", 1)
		require.NoError(t, err)
		assert.True(t, d.Allowed)

		d, err = limiter.Allow(ctx, "client", 1)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Greater(t, d.RetryAfter, time.Duration(0))
	})

	t.Run("Refill", func(t *testing.T) {
		time.Sleep(150 * time.Millisecond)
		d, err := limiter.Allow(ctx, "client", 1)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("KeyExpires", func(t *testing.T) {
		_, err := limiter.Allow(ctx, "ttl", 1)
		require.NoError(t, err)
		ttl, err := client.PTTL(ctx, limiter.prefix+"ttl").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, limit.FullRefill())
	})

	t.Run("InvalidCost", func(t *testing.T) {
		d, err := limiter.Allow(ctx, "client", 3)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
	})
}
