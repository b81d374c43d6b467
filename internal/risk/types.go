// Package risk implements the pre-trade risk pipeline: rule evaluation, the
// virtual position ledger for uncommitted orders and the trading halt breaker.
package risk

import (
	"fmt"
	"math"
)

// Side is the order side
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionSide is the direction of a held position
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Order is an order proposed by a strategy. The guard never mutates it.
type Order struct {
	ID       string
	Exchange string
	Symbol   string
	Side     Side
	Quantity float64
	Price    float64
}

// Notional returns price times quantity
func (o Order) Notional() float64 {
	return o.Price * o.Quantity
}

func (o Order) String() string {
	return fmt.Sprintf("%s %s %.8f %s @ %.8f", o.ID, o.Side, o.Quantity, o.Symbol, o.Price)
}

// Position is one entry of a position snapshot
type Position struct {
	Symbol       string       `json:"symbol"`
	Quantity     float64      `json:"quantity"`
	AveragePrice float64      `json:"average_price"`
	CurrentPrice float64      `json:"current_price"`
	MarketValue  float64      `json:"market_value"`
	Side         PositionSide `json:"side"`
}

// Amount returns the market value, falling back to quantity times current
// price when no market value was reported.
func (p Position) Amount() float64 {
	if p.MarketValue != 0 {
		return p.MarketValue
	}
	return p.Quantity * p.CurrentPrice
}

// SignedQuantity returns the quantity with SHORT positions negative
func (p Position) SignedQuantity() float64 {
	if p.Side == PositionShort {
		return -p.Quantity
	}
	return p.Quantity
}

// SignedAmount returns the amount with SHORT positions negative
func (p Position) SignedAmount() float64 {
	if p.Side == PositionShort {
		return -p.Amount()
	}
	return p.Amount()
}

// Net combines two entries for the same symbol into one net position. A
// hedged LONG and SHORT of equal size nets to flat.
func (p Position) Net(other Position) Position {
	qty := p.SignedQuantity() + other.SignedQuantity()
	amount := p.SignedAmount() + other.SignedAmount()

	net := p
	net.Side = PositionLong
	if qty < 0 || (qty == 0 && amount < 0) {
		net.Side = PositionShort
	}
	net.Quantity = math.Abs(qty)
	net.MarketValue = math.Abs(amount)
	if net.CurrentPrice == 0 {
		net.CurrentPrice = other.CurrentPrice
	}
	return net
}

// RiskConfig holds the thresholds read by every rule. A zero value means the
// threshold is not configured. Percentages are fractions (0.05 is 5%).
type RiskConfig struct {
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
}
