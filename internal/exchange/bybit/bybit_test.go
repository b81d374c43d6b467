package bybit

import (
	"context"
	"errors"
	"testing"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	guarderrors "github.com/ducminhle1904/capital-guard/internal/errors"
	"github.com/ducminhle1904/capital-guard/internal/risk"
)

func ok(result map[string]interface{}) *bybit_api.ServerResponse {
	return &bybit_api.ServerResponse{RetCode: 0, RetMsg: "OK", Result: result}
}

func TestParsePositions(t *testing.T) {
	resp := ok(map[string]interface{}{
		"category":       "linear",
		"nextPageCursor": "page2",
		"list": []interface{}{
			map[string]interface{}{"symbol": "BTCUSDT", "side": "Buy", "size": "0.5", "avgPrice": "60000", "markPrice": "62000", "positionValue": "30000"},
			map[string]interface{}{"symbol": "ETHUSDT", "side": "Sell", "size": "2", "avgPrice": "", "entryPrice": "3000", "markPrice": "2900"},
			map[string]interface{}{"symbol": "SOLUSDT", "side": "", "size": "0", "avgPrice": "0", "markPrice": "150"},
		},
	})

	positions, cursor, err := parsePositions(resp)
	require.NoError(t, err)
	assert.Equal(t, "page2", cursor)
	require.Len(t, positions, 2, "flat positions are skipped")

	assert.Equal(t, risk.Position{
		Symbol: "BTCUSDT", Quantity: 0.5, AveragePrice: 60000, CurrentPrice: 62000, MarketValue: 31000, Side: risk.PositionLong,
	}, positions[0])
	assert.Equal(t, risk.PositionShort, positions[1].Side)
	assert.Equal(t, 3000.0, positions[1].AveragePrice)
	assert.Equal(t, 5800.0, positions[1].MarketValue)
}

func TestNetPositionFoldsHedgeLegs(t *testing.T) {
	legs := []risk.Position{
		{Symbol: "BTCUSDT", Quantity: 0.5, CurrentPrice: 60000, MarketValue: 30000, Side: risk.PositionLong},
		{Symbol: "ETHUSDT", Quantity: 2, CurrentPrice: 3000, MarketValue: 6000, Side: risk.PositionLong},
		{Symbol: "BTCUSDT", Quantity: 0.2, CurrentPrice: 60000, MarketValue: 12000, Side: risk.PositionShort},
	}

	net := netPosition("BTCUSDT", legs)
	assert.Equal(t, risk.PositionLong, net.Side)
	assert.InDelta(t, 0.3, net.Quantity, 1e-9)
	assert.InDelta(t, 18000, net.MarketValue, 1e-6)

	flat := netPosition("SOLUSDT", legs)
	assert.Equal(t, risk.Position{Symbol: "SOLUSDT"}, flat)
}

func TestParsePositionsRejectsMalformedNumbers(t *testing.T) {
	resp := ok(map[string]interface{}{
		"list": []interface{}{
			map[string]interface{}{"symbol": "BTCUSDT", "side": "Buy", "size": "abc", "markPrice": "1"},
		},
	})
	_, _, err := parsePositions(resp)
	assert.Error(t, err)
}

func TestParseWalletBalances(t *testing.T) {
	resp := ok(map[string]interface{}{
		"list": []interface{}{
			map[string]interface{}{
				"accountType": "UNIFIED",
				"coin": []interface{}{
					map[string]interface{}{"coin": "USDT", "walletBalance": "1000.50", "availableToWithdraw": "800.25", "totalOrderIM": "100", "totalPositionIM": "100.25"},
					map[string]interface{}{"coin": "BTC", "walletBalance": "0.1", "availableToWithdraw": "", "totalOrderIM": "0.02", "totalPositionIM": ""},
				},
			},
		},
	})

	balances, err := parseWalletBalances(resp)
	require.NoError(t, err)
	require.Len(t, balances, 2)

	assert.True(t, balances[0].WalletBalance.Equal(decimal.RequireFromString("1000.50")))
	assert.True(t, balances[0].Available().Equal(decimal.RequireFromString("800.25")))
	assert.True(t, balances[1].Available().Equal(decimal.RequireFromString("0.08")), "derived from wallet minus locked margin")
}

func TestDecodeResultErrors(t *testing.T) {
	_, err := parseWalletBalances(&bybit_api.ServerResponse{RetCode: ErrCodeRateLimitExceeded, RetMsg: "Too many visits"})
	require.Error(t, err)
	assert.True(t, IsRateLimitError(err))

	_, err = parseWalletBalances("not a response")
	assert.Error(t, err)

	_, err = parseWalletBalances(ok(map[string]interface{}{"list": []interface{}{}}))
	assert.Error(t, err)
}

func TestParseTickers(t *testing.T) {
	resp := ok(map[string]interface{}{
		"category": "linear",
		"list": []interface{}{
			map[string]interface{}{"symbol": "BTCUSDT", "lastPrice": "62000.5"},
			map[string]interface{}{"symbol": "ETHUSDT", "lastPrice": "3000"},
			map[string]interface{}{"symbol": "XRPUSDT", "lastPrice": "bad"},
		},
	})

	prices, err := parseTickers(resp, []string{"BTCUSDT", "XRPUSDT"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BTCUSDT": 62000.5}, prices)

	all, err := parseTickers(resp, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		category  guarderrors.ErrorCategory
	}{
		{"rate limit", NewBybitError(ErrCodeRateLimitExceeded, "Too many visits"), true, guarderrors.ErrorCategoryRateLimit},
		{"bad gateway", NewBybitError(502, "Bad Gateway"), true, guarderrors.ErrorCategoryExchange},
		{"invalid key", NewBybitError(ErrCodeInvalidAPIKey, "API key is invalid"), false, guarderrors.ErrorCategoryConfiguration},
		{"unknown symbol", NewBybitError(ErrCodeSymbolNotFound, "symbol invalid"), false, guarderrors.ErrorCategoryExchange},
		{"network", errors.New("dial tcp: connection refused"), true, guarderrors.ErrorCategoryNetwork},
		{"timeout", context.DeadlineExceeded, true, guarderrors.ErrorCategoryTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryableError(tt.err))
			wrapped := WrapAPIError("get positions", tt.err)
			assert.True(t, guarderrors.IsCategory(wrapped, tt.category), "got %v", wrapped)
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}

	assert.Nil(t, WrapAPIError("noop", nil))
	assert.Nil(t, ParseAPIError(0, "OK"))
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	c := NewClient(Config{Testnet: true}, nil)
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	err := c.RetryWithConfig(context.Background(), func() error {
		calls++
		return NewBybitError(ErrCodeInvalidAPIKey, "API key is invalid")
	}, cfg)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = c.RetryWithConfig(context.Background(), func() error {
		calls++
		if calls < 3 {
			return NewBybitError(503, "Service Unavailable")
		}
		return nil
	}, cfg)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCalculateDelayIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}
	assert.Equal(t, time.Second, calculateDelay(0, cfg))
	assert.Equal(t, 4*time.Second, calculateDelay(2, cfg))
	assert.Equal(t, 5*time.Second, calculateDelay(10, cfg))
}

func TestClientEnvironment(t *testing.T) {
	assert.Equal(t, "demo", NewClient(Config{Demo: true, Testnet: true}, nil).GetEnvironment())
	assert.Equal(t, "testnet", NewClient(Config{Testnet: true}, nil).GetEnvironment())
	assert.Equal(t, "mainnet", NewClient(Config{}, nil).GetEnvironment())
	assert.Equal(t, "linear", NewClient(Config{}, nil).config.Category)
	assert.Equal(t, 10, NewClient(Config{}, nil).limiter.GetStats().Capacity)
	assert.Equal(t, 3, NewClient(Config{RequestsPerSecond: 3}, nil).limiter.GetStats().RefillRate)
}
