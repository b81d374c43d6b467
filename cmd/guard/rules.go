package main

import (
	"github.com/ducminhle1904/capital-guard/internal/config"
	"github.com/ducminhle1904/capital-guard/internal/risk"
)

// buildRules enables each rule whose thresholds are configured. The sanity
// rule always runs first.
func buildRules(cfg *config.Config, prices risk.PriceSource, exposure risk.ExposureSource, volatility *risk.VolatilityRule) ([]risk.Rule, error) {
	t := cfg.RiskThresholds()
	rules := []risk.Rule{risk.NewSanityRule()}

	if t.MaxOrderAmount > 0 || t.MaxOrderQuantity > 0 {
		rules = append(rules, risk.NewAmountLimitRule())
	}
	if t.PriceDeviationPct > 0 {
		rules = append(rules, risk.NewPriceDeviationRule(prices))
	}
	if t.MaxPositionValue > 0 {
		rules = append(rules, risk.NewAggregatePositionRule(exposure))
		if t.MaxConcentrationPct > 0 {
			rules = append(rules, risk.NewConcentrationRule(exposure))
		}
	}
	if t.MaxDrawdownPct > 0 || t.TakeProfitPct > 0 {
		rules = append(rules, risk.NewStopLossTakeProfitRule())
	}

	sessions, err := cfg.Sessions()
	if err != nil {
		return nil, err
	}
	if len(sessions) > 0 {
		rules = append(rules, risk.NewTradingHoursRule(cfg.Location(), sessions...))
	}
	if t.MaxVolatilityPct > 0 {
		rules = append(rules, volatility)
	}
	if t.MaxDailyTrades > 0 || t.MaxDailyLoss > 0 {
		rules = append(rules, risk.NewDailyLimitRule())
	}
	return rules, nil
}
