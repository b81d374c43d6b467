package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	guarderrors "github.com/ducminhle1904/capital-guard/internal/errors"
	"github.com/ducminhle1904/capital-guard/internal/reconcile"
	"github.com/ducminhle1904/capital-guard/internal/risk"
)

type Config struct {
	Environment string

	Logging struct {
		Level       string
		Dir         string
		Development bool
	}

	Risk struct {
		MaxOrderAmount         float64
		MaxOrderQuantity       float64
		PriceDeviationPct      float64
		MaxPositionValue       float64
		MaxSinglePositionValue float64
		MaxPendingSellValue    float64
		MaxConcentrationPct    float64
		MaxDrawdownPct         float64
		TakeProfitPct          float64
		MaxDailyLoss           float64
		MaxDailyTrades         int
		MaxVolatilityPct       float64
		VolatilityWindow       int
		TradingHours           []string
		Timezone               string
	}

	Reconciliation struct {
		QuantityThreshold float64
		AmountThreshold   float64
		Interval          time.Duration
		QueryTimeout      time.Duration
	}

	Balance struct {
		WatermarkThreshold float64
		PollInterval       time.Duration
	}

	Exchange struct {
		APIKey            string
		Secret            string
		Testnet           bool
		Demo              bool
		Category          string
		SettleCoin        string
		AccountType       string
		Symbols           []string
		Coins             []string
		PricePollInterval time.Duration
		RateLimit         int
	}

	Monitoring struct {
		ListenAddr    string
		OperatorToken string
		StaleAfter    time.Duration
	}

	Gateway struct {
		Token    string
		Exchange string
		Currency string
	}

	Notifications struct {
		TelegramToken  string
		TelegramChatID string
	}

	Reports struct {
		Dir string
	}
}

// Load reads the configuration from the environment. Callers load any .env
// file beforehand.
func Load() *Config {
	cfg := &Config{Environment: getEnv("ENV", "development")}

	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")
	cfg.Logging.Dir = getEnv("LOG_DIR", "")
	cfg.Logging.Development = cfg.Environment == "development"

	cfg.Risk.MaxOrderAmount = getEnvFloat("RISK_MAX_ORDER_AMOUNT", 0)
	cfg.Risk.MaxOrderQuantity = getEnvFloat("RISK_MAX_ORDER_QUANTITY", 0)
	cfg.Risk.PriceDeviationPct = getEnvFloat("RISK_PRICE_DEVIATION_PCT", 0)
	cfg.Risk.MaxPositionValue = getEnvFloat("RISK_MAX_POSITION_VALUE", 0)
	cfg.Risk.MaxSinglePositionValue = getEnvFloat("RISK_MAX_SINGLE_POSITION_VALUE", 0)
	cfg.Risk.MaxPendingSellValue = getEnvFloat("RISK_MAX_PENDING_SELL_VALUE", 0)
	cfg.Risk.MaxConcentrationPct = getEnvFloat("RISK_MAX_CONCENTRATION_PCT", 0)
	cfg.Risk.MaxDrawdownPct = getEnvFloat("RISK_MAX_DRAWDOWN_PCT", 0)
	cfg.Risk.TakeProfitPct = getEnvFloat("RISK_TAKE_PROFIT_PCT", 0)
	cfg.Risk.MaxDailyLoss = getEnvFloat("RISK_MAX_DAILY_LOSS", 0)
	cfg.Risk.MaxDailyTrades = getEnvInt("RISK_MAX_DAILY_TRADES", 0)
	cfg.Risk.MaxVolatilityPct = getEnvFloat("RISK_MAX_VOLATILITY_PCT", 0)
	cfg.Risk.VolatilityWindow = getEnvInt("RISK_VOLATILITY_WINDOW", 20)
	cfg.Risk.TradingHours = getEnvList("RISK_TRADING_HOURS", nil)
	cfg.Risk.Timezone = getEnv("RISK_TIMEZONE", "UTC")

	cfg.Reconciliation.QuantityThreshold = getEnvFloat("RECON_QUANTITY_THRESHOLD", 0.0001)
	cfg.Reconciliation.AmountThreshold = getEnvFloat("RECON_AMOUNT_THRESHOLD", 1.0)
	cfg.Reconciliation.Interval = getEnvDuration("RECON_INTERVAL", time.Minute)
	cfg.Reconciliation.QueryTimeout = getEnvDuration("RECON_QUERY_TIMEOUT", 10*time.Second)

	cfg.Balance.WatermarkThreshold = getEnvFloat("BALANCE_WATERMARK", 0.2)
	cfg.Balance.PollInterval = getEnvDuration("BALANCE_POLL_INTERVAL", 30*time.Second)

	cfg.Exchange.APIKey = getEnv("BYBIT_API_KEY", "")
	cfg.Exchange.Secret = getEnv("BYBIT_API_SECRET", "")
	cfg.Exchange.Testnet = getEnvBool("BYBIT_TESTNET", true)
	cfg.Exchange.Demo = getEnvBool("BYBIT_DEMO", false)
	cfg.Exchange.Category = getEnv("BYBIT_CATEGORY", "linear")
	cfg.Exchange.SettleCoin = getEnv("BYBIT_SETTLE_COIN", "USDT")
	cfg.Exchange.AccountType = getEnv("BYBIT_ACCOUNT_TYPE", "UNIFIED")
	cfg.Exchange.Symbols = getEnvList("BYBIT_SYMBOLS", []string{"BTCUSDT"})
	cfg.Exchange.Coins = getEnvList("BYBIT_COINS", []string{"USDT"})
	cfg.Exchange.PricePollInterval = getEnvDuration("BYBIT_PRICE_POLL_INTERVAL", 5*time.Second)
	cfg.Exchange.RateLimit = getEnvInt("BYBIT_RATE_LIMIT", 10)

	cfg.Monitoring.ListenAddr = getEnv("MONITORING_ADDR", ":8080")
	cfg.Monitoring.OperatorToken = getEnv("OPERATOR_TOKEN", "")
	cfg.Monitoring.StaleAfter = getEnvDuration("HEALTH_STALE_AFTER", 5*time.Minute)

	cfg.Gateway.Token = getEnv("GATEWAY_TOKEN", "")
	cfg.Gateway.Exchange = getEnv("GATEWAY_EXCHANGE", "bybit")
	cfg.Gateway.Currency = getEnv("GATEWAY_CURRENCY", "USDT")

	cfg.Notifications.TelegramToken = getEnv("TELEGRAM_TOKEN", "")
	cfg.Notifications.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")

	cfg.Reports.Dir = getEnv("REPORTS_DIR", "reports")

	return cfg
}

// Validate rejects negative thresholds, a watermark outside [0,1] and
// unparseable trading hours.
func (c *Config) Validate() error {
	thresholds := map[string]float64{
		"RISK_MAX_ORDER_AMOUNT":          c.Risk.MaxOrderAmount,
		"RISK_MAX_ORDER_QUANTITY":        c.Risk.MaxOrderQuantity,
		"RISK_PRICE_DEVIATION_PCT":       c.Risk.PriceDeviationPct,
		"RISK_MAX_POSITION_VALUE":        c.Risk.MaxPositionValue,
		"RISK_MAX_SINGLE_POSITION_VALUE": c.Risk.MaxSinglePositionValue,
		"RISK_MAX_PENDING_SELL_VALUE":    c.Risk.MaxPendingSellValue,
		"RISK_MAX_CONCENTRATION_PCT":     c.Risk.MaxConcentrationPct,
		"RISK_MAX_DRAWDOWN_PCT":          c.Risk.MaxDrawdownPct,
		"RISK_TAKE_PROFIT_PCT":           c.Risk.TakeProfitPct,
		"RISK_MAX_DAILY_LOSS":            c.Risk.MaxDailyLoss,
		"RISK_MAX_DAILY_TRADES":          float64(c.Risk.MaxDailyTrades),
		"RISK_MAX_VOLATILITY_PCT":        c.Risk.MaxVolatilityPct,
		"RECON_QUANTITY_THRESHOLD":       c.Reconciliation.QuantityThreshold,
		"RECON_AMOUNT_THRESHOLD":         c.Reconciliation.AmountThreshold,
	}
	for key, value := range thresholds {
		if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
			return guarderrors.NewConfigurationError("config", key, fmt.Sprintf("%s must be a non-negative number, got %v", key, value))
		}
	}

	if c.Balance.WatermarkThreshold < 0 || c.Balance.WatermarkThreshold > 1 {
		return guarderrors.NewConfigurationError("config", "BALANCE_WATERMARK",
			fmt.Sprintf("watermark threshold must be within [0,1], got %v", c.Balance.WatermarkThreshold))
	}

	durations := map[string]time.Duration{
		"RECON_INTERVAL":            c.Reconciliation.Interval,
		"BALANCE_POLL_INTERVAL":     c.Balance.PollInterval,
		"BYBIT_PRICE_POLL_INTERVAL": c.Exchange.PricePollInterval,
	}
	for key, d := range durations {
		if d <= 0 {
			return guarderrors.NewConfigurationError("config", key, fmt.Sprintf("%s must be positive", key))
		}
	}

	if _, err := c.Sessions(); err != nil {
		return guarderrors.WrapError(err, guarderrors.ErrorCategoryConfiguration, "config", "RISK_TRADING_HOURS")
	}
	if _, err := time.LoadLocation(c.Risk.Timezone); err != nil {
		return guarderrors.WrapError(err, guarderrors.ErrorCategoryConfiguration, "config", "RISK_TIMEZONE")
	}

	return nil
}

// RiskThresholds returns the shared threshold configuration read by every rule
func (c *Config) RiskThresholds() risk.RiskConfig {
	return risk.RiskConfig{
		MaxOrderAmount:         c.Risk.MaxOrderAmount,
		MaxOrderQuantity:       c.Risk.MaxOrderQuantity,
		PriceDeviationPct:      c.Risk.PriceDeviationPct,
		MaxPositionValue:       c.Risk.MaxPositionValue,
		MaxSinglePositionValue: c.Risk.MaxSinglePositionValue,
		MaxPendingSellValue:    c.Risk.MaxPendingSellValue,
		MaxConcentrationPct:    c.Risk.MaxConcentrationPct,
		MaxDrawdownPct:         c.Risk.MaxDrawdownPct,
		TakeProfitPct:          c.Risk.TakeProfitPct,
		MaxDailyLoss:           c.Risk.MaxDailyLoss,
		MaxDailyTrades:         c.Risk.MaxDailyTrades,
		MaxVolatilityPct:       c.Risk.MaxVolatilityPct,
	}
}

func (c *Config) ReconcileConfig() reconcile.Config {
	return reconcile.Config{
		QuantityThreshold: c.Reconciliation.QuantityThreshold,
		AmountThreshold:   c.Reconciliation.AmountThreshold,
	}
}

// Sessions parses the configured trading hours
func (c *Config) Sessions() ([]risk.Session, error) {
	sessions := make([]risk.Session, 0, len(c.Risk.TradingHours))
	for _, raw := range c.Risk.TradingHours {
		s, err := risk.ParseSession(raw)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Risk.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma separated value, dropping empty items
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var items []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
