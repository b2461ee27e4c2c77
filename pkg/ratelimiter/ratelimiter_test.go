package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/openfedgo/trustchain/pkg/ratelimiter"
	"github.com/stretchr/testify/require"
)

func TestNewBucket_RejectsInvalidConfig(t *testing.T) {
	store := ratelimiter.NewMemoryStore()

	_, err := ratelimiter.NewBucket(store, ratelimiter.Config{})
	require.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)

	_, err = ratelimiter.NewBucket(nil, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Second})
	require.ErrorIs(t, err, ratelimiter.ErrStoreUnavailable)
}

func TestBucket_AllowAndExhaust(t *testing.T) {
	store := ratelimiter.NewMemoryStore()
	tb, err := ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       2,
		RefillRate:     2,
		RefillInterval: time.Minute,
	})
	require.NoError(t, err)

	ctx := context.Background()

	r1, err := tb.Allow(ctx, "issuer-a")
	require.NoError(t, err)
	require.True(t, r1.Allowed())
	require.Equal(t, 1, r1.Remaining)

	r2, err := tb.Allow(ctx, "issuer-a")
	require.NoError(t, err)
	require.True(t, r2.Allowed())
	require.Equal(t, 0, r2.Remaining)

	r3, err := tb.Allow(ctx, "issuer-a")
	require.NoError(t, err)
	require.False(t, r3.Allowed())
	require.Greater(t, r3.RetryAfter(), time.Duration(0))
}

func TestBucket_AllowNRejectsNonPositive(t *testing.T) {
	store := ratelimiter.NewMemoryStore()
	tb, err := ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       5,
		RefillRate:     5,
		RefillInterval: time.Second,
	})
	require.NoError(t, err)

	_, err = tb.AllowN(context.Background(), "k", 0)
	require.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
}

func TestBucket_StatusDoesNotConsume(t *testing.T) {
	store := ratelimiter.NewMemoryStore()
	tb, err := ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       3,
		RefillRate:     3,
		RefillInterval: time.Minute,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = tb.Status(ctx, "issuer-b")
	require.NoError(t, err)

	r, err := tb.Allow(ctx, "issuer-b")
	require.NoError(t, err)
	require.Equal(t, 2, r.Remaining, "status check must not consume tokens")
}

func TestBucket_Reset(t *testing.T) {
	store := ratelimiter.NewMemoryStore()
	tb, err := ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       1,
		RefillRate:     1,
		RefillInterval: time.Minute,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = tb.Allow(ctx, "issuer-c")
	require.NoError(t, err)

	require.NoError(t, tb.Reset(ctx, "issuer-c"))

	r, err := tb.Allow(ctx, "issuer-c")
	require.NoError(t, err)
	require.True(t, r.Allowed())
}
