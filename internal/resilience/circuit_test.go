package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-desk/internal/resilience"
)

func TestBreakerTransitions(t *testing.T) {
	breaker := resilience.NewBreaker(2, 0.5, 50*time.Millisecond)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "breaker should open after threshold exceeded")

	time.Sleep(60 * time.Millisecond)
	require.True(t, breaker.Allow(ctx), "breaker should move to half-open after cool off")
	breaker.Report(ctx, true)
	require.True(t, breaker.Allow(ctx), "breaker should close after successful probe")
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	d1 := resilience.Backoff(base, 1, 0)
	require.Equal(t, base, d1)

	d2 := resilience.Backoff(base, 3, 0)
	require.Equal(t, base*4, d2)

	// With jitter the delay should stay within expected range.
	d3 := resilience.Backoff(base, 2, 0.2)
	min := base*2 - (base * 2 / 5)
	max := base*2 + (base * 2 / 5)
	require.GreaterOrEqual(t, d3, min)
	require.LessOrEqual(t, d3, max)
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	breaker := resilience.NewBreaker(1, 0.5, 20*time.Millisecond)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.Greater(t, breaker.RetryIn(), time.Duration(0))
	require.Contains(t, breaker.Describe(), "open (retry in")

	time.Sleep(30 * time.Millisecond)
	require.True(t, breaker.Allow(ctx), "first caller probes")
	require.False(t, breaker.Allow(ctx), "second caller waits for the probe")

	breaker.Release()
	require.True(t, breaker.Allow(ctx), "released permit can be taken again")
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
	require.Equal(t, "closed", breaker.Describe())
}

func TestNilBreakerNeverRefuses(t *testing.T) {
	var breaker *resilience.Breaker
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, breaker.Allow(ctx))
		breaker.Report(ctx, false)
	}
	breaker.Release()
	require.Equal(t, resilience.Closed, breaker.State())
	require.Zero(t, breaker.RetryIn())
	require.Equal(t, "closed", breaker.Describe())
}
