package bybit

import (
	"context"
	"fmt"

	"github.com/ducminhle1904/capital-guard/internal/reconcile"
	"github.com/ducminhle1904/capital-guard/internal/risk"
)

const positionPageLimit = 200

type positionResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Size          string `json:"size"`
		PositionValue string `json:"positionValue"`
		AvgPrice      string `json:"avgPrice"`
		EntryPrice    string `json:"entryPrice"`
		MarkPrice     string `json:"markPrice"`
	} `json:"list"`
	NextPageCursor string `json:"nextPageCursor"`
	Category       string `json:"category"`
}

// PositionSource adapts the client to the reconciliation provider interface
// as the exchange-reported source.
type PositionSource struct {
	client *Client
}

var _ reconcile.PositionProvider = (*PositionSource)(nil)

// PositionSource returns the exchange-reported positions as a provider
func (c *Client) PositionSource() *PositionSource {
	return &PositionSource{client: c}
}

func (p *PositionSource) SourceName() string { return reconcile.SourceExchange }

func (p *PositionSource) Positions(ctx context.Context) ([]risk.Position, error) {
	return p.client.GetPositions(ctx, "")
}

func (p *PositionSource) Position(ctx context.Context, symbol string) (risk.Position, error) {
	positions, err := p.client.GetPositions(ctx, symbol)
	if err != nil {
		return risk.Position{}, err
	}
	return netPosition(symbol, positions), nil
}

// netPosition folds the hedge-mode legs of symbol into one net position
func netPosition(symbol string, positions []risk.Position) risk.Position {
	net := risk.Position{Symbol: symbol}
	found := false
	for _, position := range positions {
		if position.Symbol != symbol {
			continue
		}
		if !found {
			net, found = position, true
			continue
		}
		net = net.Net(position)
	}
	return net
}

// GetPositions retrieves open positions for the configured category. An empty
// symbol lists every position settled in the configured coin.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]risk.Position, error) {
	var positions []risk.Position
	cursor := ""
	for {
		params := map[string]interface{}{
			"category": c.config.Category,
			"limit":    positionPageLimit,
		}
		if symbol != "" {
			params["symbol"] = symbol
		} else {
			params["settleCoin"] = c.config.SettleCoin
		}
		if cursor != "" {
			params["cursor"] = cursor
		}

		resp, err := c.call(ctx, "get positions", func() (interface{}, error) {
			return c.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
		})
		if err != nil {
			return nil, err
		}
		page, next, err := parsePositions(resp)
		if err != nil {
			return nil, err
		}
		positions = append(positions, page...)
		if next == "" || next == cursor {
			return positions, nil
		}
		cursor = next
	}
}

// parsePositions converts one page of the position list. Flat entries
// (size 0) are skipped. Market value is size times mark price.
func parsePositions(response interface{}) ([]risk.Position, string, error) {
	var result positionResult
	if err := decodeResult(response, &result); err != nil {
		return nil, "", fmt.Errorf("failed to parse positions: %w", err)
	}

	positions := make([]risk.Position, 0, len(result.List))
	for _, item := range result.List {
		size, err := parseFloat64(item.Size)
		if err != nil {
			return nil, "", fmt.Errorf("%s size %q: %w", item.Symbol, item.Size, err)
		}
		if size == 0 {
			continue
		}
		avgRaw := item.AvgPrice
		if avgRaw == "" {
			avgRaw = item.EntryPrice
		}
		avg, err := parseFloat64(avgRaw)
		if err != nil {
			return nil, "", fmt.Errorf("%s avgPrice %q: %w", item.Symbol, avgRaw, err)
		}
		mark, err := parseFloat64(item.MarkPrice)
		if err != nil {
			return nil, "", fmt.Errorf("%s markPrice %q: %w", item.Symbol, item.MarkPrice, err)
		}

		side := risk.PositionLong
		if item.Side == "Sell" {
			side = risk.PositionShort
		}
		positions = append(positions, risk.Position{
			Symbol:       item.Symbol,
			Quantity:     size,
			AveragePrice: avg,
			CurrentPrice: mark,
			MarketValue:  size * mark,
			Side:         side,
		})
	}
	return positions, result.NextPageCursor, nil
}
