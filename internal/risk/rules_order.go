package risk

import (
	"math"

	"github.com/ducminhle1904/capital-guard/internal/safety"
)

// SanityRule rejects orders with unusable numbers or identifiers
type SanityRule struct {
	validator *safety.Validator
}

// NewSanityRule creates a sanity rule backed by safety.Validator
func NewSanityRule() *SanityRule {
	return &SanityRule{validator: safety.NewValidator()}
}

func (r *SanityRule) Name() string { return "sanity" }

func (r *SanityRule) Validate(RiskConfig) error { return nil }

func (r *SanityRule) CheckOrder(order Order, _ RiskConfig) error {
	checks := []safety.ValidationResult{
		r.validator.ValidateOrderID(order.ID),
		r.validator.ValidateSymbol(order.Symbol),
		r.validator.ValidateQuantity(order.Quantity, order.Symbol),
		r.validator.ValidatePrice(order.Price, order.Symbol),
	}
	for _, check := range checks {
		if !check.Valid {
			return violate(r.Name(), "%s (%s)", check.Message, check.Code)
		}
	}
	if order.Side != SideBuy && order.Side != SideSell {
		return violate(r.Name(), "unknown order side %q", order.Side)
	}
	return nil
}

func (r *SanityRule) CheckPosition(position Position, _ RiskConfig) error {
	if check := r.validator.ValidateSymbol(position.Symbol); !check.Valid {
		return violate(r.Name(), "%s (%s)", check.Message, check.Code)
	}
	if check := r.validator.ValidateFinite(position.Quantity, position.Symbol+" quantity"); !check.Valid {
		return violate(r.Name(), "%s (%s)", check.Message, check.Code)
	}
	return nil
}

// AmountLimitRule caps the notional and the quantity of a single order
type AmountLimitRule struct{}

func NewAmountLimitRule() *AmountLimitRule { return &AmountLimitRule{} }

func (r *AmountLimitRule) Name() string { return "amount_limit" }

func (r *AmountLimitRule) Validate(cfg RiskConfig) error {
	if cfg.MaxOrderAmount <= 0 && cfg.MaxOrderQuantity <= 0 {
		return missingThreshold(r.Name(), "MaxOrderAmount or MaxOrderQuantity")
	}
	return nil
}

func (r *AmountLimitRule) CheckOrder(order Order, cfg RiskConfig) error {
	if cfg.MaxOrderAmount > 0 && order.Notional() > cfg.MaxOrderAmount {
		return violate(r.Name(), "order amount %.2f exceeds maximum %.2f", order.Notional(), cfg.MaxOrderAmount)
	}
	if cfg.MaxOrderQuantity > 0 && order.Quantity > cfg.MaxOrderQuantity {
		return violate(r.Name(), "order quantity %.8f exceeds maximum %.8f", order.Quantity, cfg.MaxOrderQuantity)
	}
	return nil
}

func (r *AmountLimitRule) CheckPosition(Position, RiskConfig) error { return nil }

// PriceDeviationRule rejects orders priced too far from the last market price.
// Orders on symbols without a known reference price pass.
type PriceDeviationRule struct {
	prices PriceSource
}

func NewPriceDeviationRule(prices PriceSource) *PriceDeviationRule {
	return &PriceDeviationRule{prices: prices}
}

func (r *PriceDeviationRule) Name() string { return "price_deviation" }

func (r *PriceDeviationRule) Validate(cfg RiskConfig) error {
	if cfg.PriceDeviationPct <= 0 {
		return missingThreshold(r.Name(), "PriceDeviationPct")
	}
	if r.prices == nil {
		return missingThreshold(r.Name(), "a price source")
	}
	return nil
}

func (r *PriceDeviationRule) CheckOrder(order Order, cfg RiskConfig) error {
	if r.prices == nil {
		return ruleFault(r.Name(), "price source not configured")
	}
	reference, ok := r.prices.LastPrice(order.Symbol)
	if !ok || reference <= 0 {
		return nil
	}
	deviation := math.Abs(order.Price-reference) / reference
	if deviation > cfg.PriceDeviationPct {
		return violate(r.Name(), "price %.8f deviates %.2f%% from market %.8f (max %.2f%%)",
			order.Price, deviation*100, reference, cfg.PriceDeviationPct*100)
	}
	return nil
}

func (r *PriceDeviationRule) CheckPosition(Position, RiskConfig) error { return nil }
