package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	guarderrors "github.com/ducminhle1904/capital-guard/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 0.2, cfg.Balance.WatermarkThreshold)
	assert.Equal(t, time.Minute, cfg.Reconciliation.Interval)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.Exchange.Symbols)
	assert.True(t, cfg.Exchange.Testnet)
	assert.Equal(t, 10, cfg.Exchange.RateLimit)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("RISK_MAX_ORDER_AMOUNT", "5000")
	t.Setenv("RISK_MAX_DAILY_TRADES", "25")
	t.Setenv("RISK_TRADING_HOURS", "09:00-17:00, 22:00-02:00,")
	t.Setenv("RECON_INTERVAL", "30s")
	t.Setenv("BYBIT_SYMBOLS", "BTCUSDT,ETHUSDT")
	t.Setenv("BYBIT_TESTNET", "false")
	t.Setenv("BYBIT_RATE_LIMIT", "4")
	t.Setenv("RISK_MAX_DRAWDOWN_PCT", "not-a-number")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	thresholds := cfg.RiskThresholds()
	assert.Equal(t, 5000.0, thresholds.MaxOrderAmount)
	assert.Equal(t, 25, thresholds.MaxDailyTrades)
	assert.Zero(t, thresholds.MaxDrawdownPct, "unparseable values fall back to the default")
	assert.Equal(t, 30*time.Second, cfg.Reconciliation.Interval)
	assert.Equal(t, 4, cfg.Exchange.RateLimit)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Exchange.Symbols)
	assert.False(t, cfg.Exchange.Testnet)

	sessions, err := cfg.Sessions()
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative order amount", func(c *Config) { c.Risk.MaxOrderAmount = -1 }},
		{"negative quantity threshold", func(c *Config) { c.Reconciliation.QuantityThreshold = -0.1 }},
		{"watermark above one", func(c *Config) { c.Balance.WatermarkThreshold = 1.5 }},
		{"watermark below zero", func(c *Config) { c.Balance.WatermarkThreshold = -0.1 }},
		{"zero reconciliation interval", func(c *Config) { c.Reconciliation.Interval = 0 }},
		{"bad trading hours", func(c *Config) { c.Risk.TradingHours = []string{"9am-5pm"} }},
		{"unknown timezone", func(c *Config) { c.Risk.Timezone = "Mars/Olympus" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, guarderrors.IsCategory(err, guarderrors.ErrorCategoryConfiguration))
		})
	}
}

func TestReconcileConfig(t *testing.T) {
	t.Setenv("RECON_QUANTITY_THRESHOLD", "0.5")
	t.Setenv("RECON_AMOUNT_THRESHOLD", "10")

	rc := Load().ReconcileConfig()
	assert.Equal(t, 0.5, rc.QuantityThreshold)
	assert.Equal(t, 10.0, rc.AmountThreshold)
}
