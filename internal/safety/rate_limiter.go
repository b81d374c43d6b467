package safety

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements token bucket rate limiting
type RateLimiter struct {
	capacity   float64   // Maximum number of tokens
	tokens     float64   // Current number of tokens
	refillRate float64   // Tokens added per second
	lastRefill time.Time // Last time tokens were added
	mutex      sync.Mutex
	name       string
	now        func() time.Time
}

// NewRateLimiter creates a limiter that starts full
func NewRateLimiter(name string, capacity, refillRate int) *RateLimiter {
	return newRateLimiter(name, capacity, refillRate, time.Now)
}

func newRateLimiter(name string, capacity, refillRate int, now func() time.Time) *RateLimiter {
	if capacity < 1 {
		capacity = 1
	}
	if refillRate < 1 {
		refillRate = 1
	}
	return &RateLimiter{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastRefill: now(),
		name:       name,
		now:        now,
	}
}

// Allow checks if an operation is allowed under the rate limit
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN takes n tokens if they are available
func (rl *RateLimiter) AllowN(n int) bool {
	_, ok := rl.reserve(n)
	return ok
}

// Wait blocks until an operation is allowed or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN blocks until n tokens are taken or ctx is done
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	for {
		wait, ok := rl.reserve(n)
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes n tokens, or reports how long until they are available
func (rl *RateLimiter) reserve(n int) (time.Duration, bool) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()

	need := float64(n)
	if rl.tokens >= need {
		rl.tokens -= need
		return 0, true
	}
	missing := need - rl.tokens
	return time.Duration(missing / rl.refillRate * float64(time.Second)), false
}

// refillTokens must be called with mutex held
func (rl *RateLimiter) refillTokens() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill)
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed.Seconds() * rl.refillRate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.lastRefill = now
}

// RateLimiterStats holds statistics about a rate limiter
type RateLimiterStats struct {
	Name       string
	Capacity   int
	Tokens     int
	RefillRate int
}

// GetStats returns current statistics about the rate limiter
func (rl *RateLimiter) GetStats() RateLimiterStats {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()

	return RateLimiterStats{
		Name:       rl.name,
		Capacity:   int(rl.capacity),
		Tokens:     int(rl.tokens),
		RefillRate: int(rl.refillRate),
	}
}
