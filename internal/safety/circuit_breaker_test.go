package safety

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerStartsNormal(t *testing.T) {
	cb := NewCircuitBreaker("trading")

	assert.False(t, cb.IsBroken())
	assert.Equal(t, StateNormal, cb.GetState())
	assert.Nil(t, cb.Reason())
	assert.Nil(t, cb.TrippedAt())
	assert.Equal(t, "NORMAL", cb.Status().StateName)
}

func TestCircuitBreakerTripAndRecover(t *testing.T) {
	cb := NewCircuitBreaker("trading")
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return fixed }

	cb.Trip("RECONCILIATION_DISCREPANCY", "BTCUSDT quantity mismatch")

	require.True(t, cb.IsBroken())
	require.NotNil(t, cb.Reason())
	assert.Equal(t, "BTCUSDT quantity mismatch", *cb.Reason())
	assert.Equal(t, fixed, *cb.TrippedAt())

	status := cb.Status()
	assert.Equal(t, "BROKEN", status.StateName)
	assert.Equal(t, "RECONCILIATION_DISCREPANCY", status.Code)
	assert.Equal(t, uint64(1), status.Trips)

	assert.True(t, cb.Recover("alice"))
	assert.False(t, cb.IsBroken())
	assert.Nil(t, cb.Reason())
	assert.Equal(t, "alice", cb.Status().RecoveredBy)

	assert.False(t, cb.Recover("alice"), "recovering a normal breaker is a no-op")
}

func TestCircuitBreakerRepeatedTripOverwritesReason(t *testing.T) {
	cb := NewCircuitBreaker("trading")
	cb.Trip("A", "first")
	cb.Trip("B", "second")

	status := cb.Status()
	assert.Equal(t, "B", status.Code)
	assert.Equal(t, "second", status.Reason)
	assert.Equal(t, uint64(2), status.Trips)
}

func TestCircuitBreakerListenersSeeEveryTransition(t *testing.T) {
	cb := NewCircuitBreaker("trading")
	var events []BreakerEvent
	cb.OnStateChange(func(e BreakerEvent) { events = append(events, e) })

	cb.Trip("MANUAL", "operator halt")
	cb.Recover("bob")

	require.Len(t, events, 2)
	assert.Equal(t, StateNormal, events[0].From)
	assert.Equal(t, StateBroken, events[0].To)
	assert.Equal(t, "MANUAL", events[0].Code)
	assert.Equal(t, StateNormal, events[1].To)
	assert.Equal(t, "bob", events[1].Operator)
}

func TestCircuitBreakerRetripEvents(t *testing.T) {
	cb := NewCircuitBreaker("trading")
	var events []BreakerEvent
	cb.OnStateChange(func(e BreakerEvent) { events = append(events, e) })

	cb.Trip("RECONCILIATION_DISCREPANCY", "pass 1")
	cb.Trip("RECONCILIATION_DISCREPANCY", "pass 2")
	cb.Trip("MANUAL", "operator halt")

	require.Len(t, events, 3)
	assert.False(t, events[0].Retrip())
	assert.Empty(t, events[0].PreviousCode)
	assert.True(t, events[1].Retrip())
	assert.False(t, events[2].Retrip())
	assert.Equal(t, "RECONCILIATION_DISCREPANCY", events[2].PreviousCode)
}

func TestCircuitBreakerTripVisibleToAllGoroutines(t *testing.T) {
	cb := NewCircuitBreaker("trading")
	cb.Trip("MANUAL", "halt")

	var wg sync.WaitGroup
	results := make([]bool, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cb.IsBroken()
		}(i)
	}
	wg.Wait()

	for _, broken := range results {
		assert.True(t, broken)
	}
}
