package safety

import (
	"sync"
	"time"
)

// BreakerState represents the state of the trading halt breaker
type BreakerState int

const (
	StateNormal BreakerState = iota
	StateBroken
)

// String returns the string representation of the breaker state
func (s BreakerState) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateBroken:
		return "BROKEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerStatus is a consistent copy of the breaker state
type BreakerStatus struct {
	State       BreakerState `json:"-"`
	StateName   string       `json:"state"`
	Code        string       `json:"code,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	TrippedAt   *time.Time   `json:"tripped_at,omitempty"`
	Trips       uint64       `json:"trips"`
	RecoveredBy string       `json:"recovered_by,omitempty"`
	RecoveredAt *time.Time   `json:"recovered_at,omitempty"`
}

// BreakerEvent is delivered to listeners on every trip and recovery
type BreakerEvent struct {
	From     BreakerState
	To       BreakerState
	Code     string
	Reason   string
	Operator string
	At       time.Time

	// PreviousCode is the code of the trip being overwritten, if any
	PreviousCode string
}

// Retrip reports whether the event re-trips an already broken breaker with
// the same code.
func (e BreakerEvent) Retrip() bool {
	return e.From == StateBroken && e.To == StateBroken && e.Code == e.PreviousCode
}

// CircuitBreaker is the process-wide trading halt switch. It only leaves
// StateBroken through an explicit Recover call; there is no timeout.
type CircuitBreaker struct {
	mutex       sync.RWMutex
	name        string
	state       BreakerState
	code        string
	reason      string
	trippedAt   time.Time
	trips       uint64
	recoveredBy string
	recoveredAt time.Time
	listeners   []func(BreakerEvent)
	now         func() time.Time
}

// NewCircuitBreaker creates a breaker in StateNormal
func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:  name,
		state: StateNormal,
		now:   time.Now,
	}
}

// Name returns the breaker name used in logs and metrics
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// OnStateChange registers a listener. Listeners run synchronously after the
// state change is committed and the lock is released, so a trip is observable
// before Trip returns.
func (cb *CircuitBreaker) OnStateChange(listener func(BreakerEvent)) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.listeners = append(cb.listeners, listener)
}

// Trip moves the breaker to StateBroken. Repeated trips overwrite the code,
// reason and timestamp.
func (cb *CircuitBreaker) Trip(code, reason string) {
	cb.mutex.Lock()
	from := cb.state
	previous := ""
	if from == StateBroken {
		previous = cb.code
	}
	at := cb.now()
	cb.state = StateBroken
	cb.code = code
	cb.reason = reason
	cb.trippedAt = at
	cb.trips++
	listeners := cb.listeners
	cb.mutex.Unlock()

	cb.notify(listeners, BreakerEvent{From: from, To: StateBroken, Code: code, Reason: reason, At: at, PreviousCode: previous})
}

// Recover moves the breaker back to StateNormal. It reports false when the
// breaker was not broken.
func (cb *CircuitBreaker) Recover(operator string) bool {
	cb.mutex.Lock()
	if cb.state != StateBroken {
		cb.mutex.Unlock()
		return false
	}
	at := cb.now()
	event := BreakerEvent{
		From:     StateBroken,
		To:       StateNormal,
		Code:     cb.code,
		Reason:   cb.reason,
		Operator: operator,
		At:       at,
	}
	cb.state = StateNormal
	cb.code = ""
	cb.reason = ""
	cb.trippedAt = time.Time{}
	cb.recoveredBy = operator
	cb.recoveredAt = at
	listeners := cb.listeners
	cb.mutex.Unlock()

	cb.notify(listeners, event)
	return true
}

func (cb *CircuitBreaker) notify(listeners []func(BreakerEvent), event BreakerEvent) {
	for _, listener := range listeners {
		listener(event)
	}
}

// IsBroken reports whether trading is halted
func (cb *CircuitBreaker) IsBroken() bool {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state == StateBroken
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() BreakerState {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// Reason returns the trip reason, or nil when not broken
func (cb *CircuitBreaker) Reason() *string {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	if cb.state != StateBroken {
		return nil
	}
	reason := cb.reason
	return &reason
}

// TrippedAt returns the trip time, or nil when not broken
func (cb *CircuitBreaker) TrippedAt() *time.Time {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	if cb.state != StateBroken {
		return nil
	}
	at := cb.trippedAt
	return &at
}

// Status returns a consistent snapshot of the breaker
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	status := BreakerStatus{
		State:       cb.state,
		StateName:   cb.state.String(),
		Trips:       cb.trips,
		RecoveredBy: cb.recoveredBy,
	}
	if cb.state == StateBroken {
		at := cb.trippedAt
		status.Code = cb.code
		status.Reason = cb.reason
		status.TrippedAt = &at
	}
	if !cb.recoveredAt.IsZero() {
		at := cb.recoveredAt
		status.RecoveredAt = &at
	}
	return status
}
