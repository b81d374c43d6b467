package bybit

import (
	"context"
	"strings"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"go.uber.org/zap"

	"github.com/ducminhle1904/capital-guard/internal/safety"
)

// ExchangeName is the exchange key used for balances and orders
const ExchangeName = "bybit"

// DemoBaseURL is the Bybit demo trading environment
const DemoBaseURL = "https://api-demo.bybit.com"

// Client wraps the Bybit API client with the read-only calls the guard needs
type Client struct {
	httpClient *bybit_api.Client
	config     Config
	retry      RetryConfig
	limiter    *safety.RateLimiter
	logger     *zap.Logger
}

// Config holds the configuration for the Bybit client
type Config struct {
	APIKey      string
	APISecret   string
	Testnet     bool
	Demo        bool // Demo trading environment
	Category    string
	SettleCoin  string
	AccountType AccountType
	// Coins limits the wallet balances reported; empty reports every coin
	Coins []string
	// RequestsPerSecond throttles API calls, default 10
	RequestsPerSecond int
}

func (c *Config) setDefaults() {
	if c.Category == "" {
		c.Category = "linear"
	}
	if c.SettleCoin == "" {
		c.SettleCoin = "USDT"
	}
	if c.AccountType == "" {
		c.AccountType = AccountTypeUnified
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
}

// NewClient creates a new Bybit client
func NewClient(config Config, logger *zap.Logger) *Client {
	config.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	var baseURL string
	if config.Demo {
		baseURL = DemoBaseURL
	} else if config.Testnet {
		baseURL = bybit_api.TESTNET
	} else {
		baseURL = bybit_api.MAINNET
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	return &Client{
		httpClient: httpClient,
		config:     config,
		retry:      DefaultRetryConfig(),
		limiter:    safety.NewRateLimiter(ExchangeName, config.RequestsPerSecond, config.RequestsPerSecond),
		logger:     logger.Named("bybit"),
	}
}

// SetRetryConfig replaces the retry policy of API calls
func (c *Client) SetRetryConfig(retry RetryConfig) {
	c.retry = retry
}

// GetEnvironment returns a string describing the current environment
func (c *Client) GetEnvironment() string {
	if c.config.Demo {
		return "demo"
	} else if c.config.Testnet {
		return "testnet"
	}
	return "mainnet"
}

// call runs one API request with retries and turns a non-zero retCode into
// a *BybitError.
func (c *Client) call(ctx context.Context, operation string, fn func() (interface{}, error)) (*bybit_api.ServerResponse, error) {
	var resp *bybit_api.ServerResponse
	err := c.RetryWithConfig(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		result, err := fn()
		if err != nil {
			return err
		}
		serverResp, ok := result.(*bybit_api.ServerResponse)
		if !ok {
			return NewBybitError(0, "invalid response type")
		}
		if apiErr := ParseAPIError(serverResp.RetCode, serverResp.RetMsg); apiErr != nil {
			return apiErr
		}
		resp = serverResp
		return nil
	}, c.retry)
	if err != nil {
		c.logger.Warn("bybit request failed", zap.String("operation", operation), zap.Error(err))
		return nil, WrapAPIError(operation, err)
	}
	return resp, nil
}

func joinCoins(coins []string) string {
	return strings.Join(coins, ",")
}
