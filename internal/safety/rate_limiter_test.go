package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterRefill(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter("bybit", 2, 4, func() time.Time { return clock })

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow(), "bucket empty")

	clock = clock.Add(250 * time.Millisecond)
	assert.True(t, rl.Allow(), "a quarter second refills one token at 4/s")
	assert.False(t, rl.Allow())

	clock = clock.Add(10 * time.Second)
	stats := rl.GetStats()
	assert.Equal(t, 2, stats.Tokens, "refill is capped at capacity")
	assert.Equal(t, "bybit", stats.Name)
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter("test", 1, 50)
	require.NoError(t, rl.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	rl := NewRateLimiter("test", 1, 1)
	require.True(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.DeadlineExceeded)
}
