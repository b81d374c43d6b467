package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const maxHealthErrors = 20

// BreakerReader is the read side of the trading halt breaker
type BreakerReader interface {
	IsBroken() bool
	Reason() *string
}

type HealthChecker struct {
	mu                 sync.RWMutex
	breaker            BreakerReader
	startTime          time.Time
	staleAfter         time.Duration
	lastReconciliation time.Time
	lastBalanceUpdate  time.Time
	isConnected        bool
	errors             []string
}

type HealthStatus struct {
	Status             string    `json:"status"`
	Timestamp          time.Time `json:"timestamp"`
	HaltReason         string    `json:"halt_reason,omitempty"`
	LastReconciliation time.Time `json:"last_reconciliation"`
	LastBalanceUpdate  time.Time `json:"last_balance_update"`
	IsConnected        bool      `json:"is_connected"`
	Uptime             string    `json:"uptime"`
	Errors             []string  `json:"errors,omitempty"`
}

// NewHealthChecker reports "halted" while breaker is broken and "degraded"
// when the exchange is unreachable or no reconciliation ran within staleAfter.
func NewHealthChecker(breaker BreakerReader, staleAfter time.Duration) *HealthChecker {
	return &HealthChecker{
		breaker:    breaker,
		startTime:  time.Now(),
		staleAfter: staleAfter,
		errors:     make([]string, 0),
	}
}

func (h *HealthChecker) SetConnected(connected bool) {
	h.mu.Lock()
	h.isConnected = connected
	h.mu.Unlock()
}

func (h *HealthChecker) RecordReconciliation(at time.Time) {
	h.mu.Lock()
	h.lastReconciliation = at
	h.mu.Unlock()
}

func (h *HealthChecker) RecordBalanceUpdate(at time.Time) {
	h.mu.Lock()
	h.lastBalanceUpdate = at
	h.mu.Unlock()
}

// RecordError keeps the most recent errors for the health report
func (h *HealthChecker) RecordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > maxHealthErrors {
		h.errors = h.errors[len(h.errors)-maxHealthErrors:]
	}
}

func (h *HealthChecker) ClearErrors() {
	h.mu.Lock()
	h.errors = h.errors[:0]
	h.mu.Unlock()
}

// Status computes the current health report and its HTTP status code
func (h *HealthChecker) Status() (HealthStatus, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	health := HealthStatus{
		Status:             "healthy",
		Timestamp:          now,
		LastReconciliation: h.lastReconciliation,
		LastBalanceUpdate:  h.lastBalanceUpdate,
		IsConnected:        h.isConnected,
		Uptime:             now.Sub(h.startTime).String(),
		Errors:             append([]string(nil), h.errors...),
	}
	code := http.StatusOK

	stale := h.staleAfter > 0 && now.Sub(h.lastReconciliation) > h.staleAfter
	if !h.isConnected || stale || len(h.errors) > 0 {
		health.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	if h.breaker != nil && h.breaker.IsBroken() {
		health.Status = "halted"
		code = http.StatusServiceUnavailable
		if reason := h.breaker.Reason(); reason != nil {
			health.HaltReason = *reason
		}
	}
	return health, code
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	health, code := h.Status()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
