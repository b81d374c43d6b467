package bybit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type tickerResult struct {
	Category string `json:"category"`
	List     []struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"list"`
}

// GetLatestPrice gets the latest price for a symbol
func (c *Client) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.GetLatestPrices(ctx, symbol)
	if err != nil {
		return 0, err
	}
	price, ok := prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no ticker data found for %s", symbol)
	}
	return price, nil
}

// GetLatestPrices returns last prices keyed by symbol. With one symbol a
// single ticker is requested; otherwise the whole category is listed and
// filtered.
func (c *Client) GetLatestPrices(ctx context.Context, symbols ...string) (map[string]float64, error) {
	params := map[string]interface{}{
		"category": c.config.Category,
	}
	if len(symbols) == 1 {
		params["symbol"] = symbols[0]
	}

	resp, err := c.call(ctx, "get tickers", func() (interface{}, error) {
		return c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	})
	if err != nil {
		return nil, err
	}
	return parseTickers(resp, symbols)
}

func parseTickers(response interface{}, symbols []string) (map[string]float64, error) {
	var result tickerResult
	if err := decodeResult(response, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tickers: %w", err)
	}

	wanted := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		wanted[symbol] = true
	}
	prices := make(map[string]float64, len(result.List))
	for _, ticker := range result.List {
		if len(wanted) > 0 && !wanted[ticker.Symbol] {
			continue
		}
		price, err := parseFloat64(ticker.LastPrice)
		if err != nil || price <= 0 {
			continue
		}
		prices[ticker.Symbol] = price
	}
	return prices, nil
}

// PriceSink receives polled prices
type PriceSink func(symbol string, price float64)

// PricePoller feeds last prices of a fixed symbol list into sinks
type PricePoller struct {
	client  *Client
	symbols []string
	sinks   []PriceSink
	logger  *zap.Logger
}

func NewPricePoller(client *Client, symbols []string, sinks ...PriceSink) *PricePoller {
	return &PricePoller{
		client:  client,
		symbols: symbols,
		sinks:   sinks,
		logger:  client.logger.Named("prices"),
	}
}

// Poll fetches prices once and hands every price to every sink
func (p *PricePoller) Poll(ctx context.Context) error {
	prices, err := p.client.GetLatestPrices(ctx, p.symbols...)
	if err != nil {
		return err
	}
	for _, symbol := range p.symbols {
		price, ok := prices[symbol]
		if !ok {
			p.logger.Debug("no price for symbol", zap.String("symbol", symbol))
			continue
		}
		for _, sink := range p.sinks {
			sink(symbol, price)
		}
	}
	return nil
}

// Run polls every interval until ctx is done
func (p *PricePoller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil {
			p.logger.Warn("price poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
