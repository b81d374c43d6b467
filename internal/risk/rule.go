package risk

import (
	guarderrors "github.com/ducminhle1904/capital-guard/internal/errors"
)

// Rule is one risk predicate. CheckOrder and CheckPosition return nil to pass,
// a *Violation to reject, and any other error for a fault inside the rule.
type Rule interface {
	Name() string
	// Validate reports a configuration error when a threshold the rule
	// depends on is missing.
	Validate(cfg RiskConfig) error
	CheckOrder(order Order, cfg RiskConfig) error
	CheckPosition(position Position, cfg RiskConfig) error
}

// ReservationObserver is implemented by rules that keep a rolling counter of
// accepted orders. It is called after a successful reserve, never during a check.
type ReservationObserver interface {
	OnReserve(order Order)
}

func missingThreshold(rule, field string) error {
	return guarderrors.NewConfigurationError("risk", "Validate", rule+" requires "+field).
		WithContext("rule", rule).
		WithContext("field", field)
}

func ruleFault(rule, message string) error {
	return guarderrors.NewFatalError("risk", rule, message)
}
