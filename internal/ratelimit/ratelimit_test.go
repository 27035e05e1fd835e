package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisLimiter(t *testing.T, limit int, window time.Duration) RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, limit, window)
}

func TestAllowUnderLimit(t *testing.T) {
	limiter := newMiniredisLimiter(t, 5, time.Minute)

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(context.Background(), "src-1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i)
	}
}

func TestBlockOverLimit(t *testing.T) {
	limiter := newMiniredisLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(context.Background(), "src-1")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, err := limiter.Allow(context.Background(), "src-1")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestLimitsArePerKey(t *testing.T) {
	limiter := newMiniredisLimiter(t, 1, time.Minute)

	allowed, err := limiter.Allow(context.Background(), "src-1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = limiter.Allow(context.Background(), "src-1")
	require.NoError(t, err)
	assert.False(t, allowed)

	// A different source has its own budget.
	allowed, err = limiter.Allow(context.Background(), "src-2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestNewRedisRateLimiterRejectsBadURL(t *testing.T) {
	_, err := NewRedisRateLimiter("not-a-url", 10, time.Minute)
	assert.Error(t, err)
}

func TestNoOpRateLimiter(t *testing.T) {
	limiter := &NoOpRateLimiter{}
	allowed, err := limiter.Allow(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.NoError(t, limiter.Close())
}
