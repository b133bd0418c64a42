package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func TestSlidingAllowWindow(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	limiter := Sliding{Client: client, Prefix: "test:"}

	ctx := context.Background()
	window := 2 * time.Second
	max := 2

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "key", window, max)
		require.NoError(t, err)
		require.True(t, allowed, "request %d", i)
		require.Equal(t, max-(i+1), remaining)
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "key", window, max)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)

	mr.FastForward(window)

	allowed, _, _, err = limiter.Allow(ctx, "key", window, max)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestFixedAllowCountsPerKey(t *testing.T) {
	limiter := Fixed{Store: memory.NewStore()}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, reset, err := limiter.Allow(ctx, "search:a", time.Minute, 3)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, 2-i, remaining)
		require.True(t, reset.After(time.Now()))
	}
	allowed, _, _, err := limiter.Allow(ctx, "search:a", time.Minute, 3)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, _, _, err = limiter.Allow(ctx, "search:b", time.Minute, 3)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestUnconfiguredBackendsAllow(t *testing.T) {
	for _, b := range []Backend{Sliding{}, Fixed{}} {
		allowed, _, _, err := b.Allow(context.Background(), "k", time.Second, 1)
		require.NoError(t, err)
		require.True(t, allowed)
	}
}

func TestParseBackend(t *testing.T) {
	got, err := ParseBackend("")
	require.NoError(t, err)
	require.Equal(t, BackendSliding, got)
	got, err = ParseBackend(" Fixed ")
	require.NoError(t, err)
	require.Equal(t, BackendFixed, got)
	_, err = ParseBackend("token-bucket")
	require.Error(t, err)
}
