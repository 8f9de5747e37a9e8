package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return New(client, limit, window, nil), s
}

func TestLimiter_AllowsUnderLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.False(t, limiter.IsRateLimited(ctx, "1.2.3.4"))
	}
}

func TestLimiter_BlocksOverLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	require.False(t, limiter.IsRateLimited(ctx, "1.2.3.4"))
	require.False(t, limiter.IsRateLimited(ctx, "1.2.3.4"))
	require.True(t, limiter.IsRateLimited(ctx, "1.2.3.4"))
}

func TestLimiter_TracksClientsIndependently(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	require.False(t, limiter.IsRateLimited(ctx, "1.1.1.1"))
	require.False(t, limiter.IsRateLimited(ctx, "2.2.2.2"))
	require.True(t, limiter.IsRateLimited(ctx, "1.1.1.1"))
}

func TestLimiter_WindowExpiry(t *testing.T) {
	limiter, s := newTestLimiter(t, 1, 2*time.Second)
	ctx := context.Background()

	require.False(t, limiter.IsRateLimited(ctx, "9.9.9.9"))
	require.True(t, limiter.IsRateLimited(ctx, "9.9.9.9"))

	s.FastForward(3 * time.Second)
	require.False(t, limiter.IsRateLimited(ctx, "9.9.9.9"))
}

func TestLimiter_FailsOpenWhenStoreUnavailable(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	limiter := New(client, 1, time.Minute, nil)
	s.Close()

	require.False(t, limiter.IsRateLimited(context.Background(), "1.2.3.4"))
}

func TestClientIP_StripsPort(t *testing.T) {
	require.Equal(t, "10.0.0.1", ClientIP("10.0.0.1:5555"))
	require.Equal(t, "not-an-addr", ClientIP("not-an-addr"))
}
