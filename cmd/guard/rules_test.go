package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/capital-guard/internal/config"
	"github.com/ducminhle1904/capital-guard/internal/risk"
)

func ruleNames(rules []risk.Rule) []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name()
	}
	return names
}

func TestBuildRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{
			name:   "sanity only",
			mutate: func(*config.Config) {},
			want:   []string{"sanity"},
		},
		{
			name: "order and exposure limits",
			mutate: func(c *config.Config) {
				c.Risk.MaxOrderAmount = 1000
				c.Risk.PriceDeviationPct = 0.05
				c.Risk.MaxPositionValue = 50000
				c.Risk.MaxConcentrationPct = 0.4
			},
			want: []string{"sanity", "amount_limit", "price_deviation", "aggregate_position", "concentration"},
		},
		{
			name: "concentration needs a position ceiling",
			mutate: func(c *config.Config) {
				c.Risk.MaxConcentrationPct = 0.4
			},
			want: []string{"sanity"},
		},
		{
			name: "window rules",
			mutate: func(c *config.Config) {
				c.Risk.TradingHours = []string{"00:00-23:59"}
				c.Risk.MaxVolatilityPct = 0.1
				c.Risk.MaxDailyTrades = 10
				c.Risk.MaxDrawdownPct = 0.2
			},
			want: []string{"sanity", "stop_loss_take_profit", "trading_hours", "volatility", "daily_limit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Load()
			tt.mutate(cfg)

			rules, err := buildRules(cfg, risk.NewPriceBook(), risk.NewExposureBook(), risk.NewVolatilityRule(cfg.Risk.VolatilityWindow))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ruleNames(rules))

			_, err = risk.NewPipeline(cfg.RiskThresholds(), nil, nil, rules...)
			assert.NoError(t, err, "every enabled rule validates")
		})
	}
}
