package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Breaker metrics
	breakerBroken = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "capital_guard_breaker_broken",
			Help: "1 while trading is halted by the circuit breaker",
		},
	)

	breakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capital_guard_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"code"},
	)

	// Pre-trade metrics
	orderChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capital_guard_order_checks_total",
			Help: "Order checks by outcome",
		},
		[]string{"outcome"},
	)

	positionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capital_guard_position_checks_total",
			Help: "Position audits by outcome",
		},
		[]string{"outcome"},
	)

	ruleViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capital_guard_rule_violations_total",
			Help: "Rule violations by rule name",
		},
		[]string{"rule"},
	)

	pendingQuantity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capital_guard_pending_quantity",
			Help: "Uncommitted quantity reserved in the virtual position ledger",
		},
		[]string{"symbol", "side"},
	)

	// Funds metrics
	freezeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capital_guard_freeze_total",
			Help: "Fund freeze attempts by outcome",
		},
		[]string{"exchange", "currency", "outcome"},
	)

	frozenFunds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capital_guard_frozen_funds",
			Help: "Funds currently frozen against in-flight orders",
		},
		[]string{"exchange", "currency"},
	)

	availableFunds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capital_guard_available_funds",
			Help: "Last reported available balance",
		},
		[]string{"exchange", "currency"},
	)

	belowWatermark = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capital_guard_below_watermark",
			Help: "1 while available balance is below the watermark",
		},
		[]string{"exchange", "currency"},
	)

	// Reconciliation metrics
	reconciliationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capital_guard_reconciliation_runs_total",
			Help: "Reconciliation passes by result",
		},
		[]string{"result"},
	)

	reconciliationDiscrepancies = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "capital_guard_reconciliation_discrepancies",
			Help: "Discrepant symbols found by the last reconciliation pass",
		},
	)

	providerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capital_guard_provider_failures_total",
			Help: "Position provider failures by source",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(breakerBroken)
	prometheus.MustRegister(breakerTrips)
	prometheus.MustRegister(orderChecks)
	prometheus.MustRegister(positionChecks)
	prometheus.MustRegister(ruleViolations)
	prometheus.MustRegister(pendingQuantity)
	prometheus.MustRegister(freezeAttempts)
	prometheus.MustRegister(frozenFunds)
	prometheus.MustRegister(availableFunds)
	prometheus.MustRegister(belowWatermark)
	prometheus.MustRegister(reconciliationRuns)
	prometheus.MustRegister(reconciliationDiscrepancies)
	prometheus.MustRegister(providerFailures)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// RecordBreakerTrip records a breaker trip
func RecordBreakerTrip(code string) {
	breakerTrips.WithLabelValues(code).Inc()
	breakerBroken.Set(1)
}

// RecordBreakerRecovered records a breaker recovery
func RecordBreakerRecovered() {
	breakerBroken.Set(0)
}

// RecordOrderCheck records the outcome of an order check: pass, violation, breaker_open or fault
func RecordOrderCheck(outcome string) {
	orderChecks.WithLabelValues(outcome).Inc()
}

// RecordPositionCheck records the outcome of a position audit: pass, violation, breaker_open or fault
func RecordPositionCheck(outcome string) {
	positionChecks.WithLabelValues(outcome).Inc()
}

// RecordViolation records a rule violation
func RecordViolation(rule string) {
	ruleViolations.WithLabelValues(rule).Inc()
}

// UpdatePending updates the pending quantity gauge for a symbol side
func UpdatePending(symbol, side string, quantity float64) {
	pendingQuantity.WithLabelValues(symbol, side).Set(quantity)
}

// RecordFreeze records a freeze attempt: frozen, insufficient or rejected
func RecordFreeze(exchange, currency, outcome string) {
	freezeAttempts.WithLabelValues(exchange, currency, outcome).Inc()
}

// UpdateFrozen updates the frozen funds gauge
func UpdateFrozen(exchange, currency string, amount float64) {
	frozenFunds.WithLabelValues(exchange, currency).Set(amount)
}

// UpdateBalance updates the available balance and watermark gauges
func UpdateBalance(exchange, currency string, available float64, lowWatermark bool) {
	availableFunds.WithLabelValues(exchange, currency).Set(available)
	belowWatermark.WithLabelValues(exchange, currency).Set(boolGauge(lowWatermark))
}

// RecordReconciliation records a reconciliation pass
func RecordReconciliation(discrepancies int) {
	result := "clean"
	if discrepancies > 0 {
		result = "discrepant"
	}
	reconciliationRuns.WithLabelValues(result).Inc()
	reconciliationDiscrepancies.Set(float64(discrepancies))
}

// RecordProviderFailure records a failed position provider call
func RecordProviderFailure(source string) {
	providerFailures.WithLabelValues(source).Inc()
}
