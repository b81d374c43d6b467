// Package reconcile cross-checks the locally estimated, exchange-reported and
// trade-tape positions and halts trading when they disagree.
package reconcile

import (
	"fmt"
	"math"
	"sort"

	"github.com/ducminhle1904/capital-guard/internal/risk"
)

// Source names used in discrepancy pairs and reports
const (
	SourceLocal    = "local"
	SourceExchange = "exchange"
	SourceTrade    = "trade"
)

// Config holds the tolerances of a reconciliation pass
type Config struct {
	QuantityThreshold float64
	AmountThreshold   float64
}

// Validate rejects negative or non-finite thresholds
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"quantity threshold": c.QuantityThreshold,
		"amount threshold":   c.AmountThreshold,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("reconciliation %s must be a finite non-negative number, got %v", name, v)
		}
	}
	return nil
}

// Discrepancy is the per-symbol comparison of the three sources. It is built
// fresh on every pass. Quantities and amounts are signed, SHORT negative, so
// sources that disagree on direction diverge.
type Discrepancy struct {
	Symbol string `json:"symbol"`

	LocalQuantity    float64 `json:"local_quantity"`
	ExchangeQuantity float64 `json:"exchange_quantity"`
	TradeQuantity    float64 `json:"trade_quantity"`

	LocalAmount    float64 `json:"local_amount"`
	ExchangeAmount float64 `json:"exchange_amount"`
	TradeAmount    float64 `json:"trade_amount"`

	HasQuantityDiscrepancy bool `json:"has_quantity_discrepancy"`
	HasAmountDiscrepancy   bool `json:"has_amount_discrepancy"`

	// Malformed lists sources whose value for this symbol was not a finite
	// number and was compared as zero.
	Malformed []string `json:"malformed,omitempty"`
}

// Pair is one pairwise comparison
type Pair struct {
	A, B     string
	Quantity float64
	Amount   float64
}

// Pairs returns the three absolute pairwise differences
func (d Discrepancy) Pairs() []Pair {
	return []Pair{
		{A: SourceLocal, B: SourceExchange, Quantity: math.Abs(d.LocalQuantity - d.ExchangeQuantity), Amount: math.Abs(d.LocalAmount - d.ExchangeAmount)},
		{A: SourceLocal, B: SourceTrade, Quantity: math.Abs(d.LocalQuantity - d.TradeQuantity), Amount: math.Abs(d.LocalAmount - d.TradeAmount)},
		{A: SourceExchange, B: SourceTrade, Quantity: math.Abs(d.ExchangeQuantity - d.TradeQuantity), Amount: math.Abs(d.ExchangeAmount - d.TradeAmount)},
	}
}

// DivergentPairs returns the pairs that exceed cfg
func (d Discrepancy) DivergentPairs(cfg Config) []Pair {
	var out []Pair
	for _, pair := range d.Pairs() {
		if pair.Quantity > cfg.QuantityThreshold || pair.Amount > cfg.AmountThreshold {
			out = append(out, pair)
		}
	}
	return out
}

// Reconcile compares the three snapshots over the union of their symbols.
// A symbol missing from a snapshot counts as zero. Only symbols where some
// pairwise quantity or amount difference exceeds its threshold are returned.
func Reconcile(local, exchange, trade map[string]risk.Position, cfg Config) map[string]Discrepancy {
	out := make(map[string]Discrepancy)
	for _, symbol := range unionSymbols(local, exchange, trade) {
		d := Discrepancy{Symbol: symbol}
		d.LocalQuantity, d.LocalAmount = d.read(SourceLocal, local, symbol)
		d.ExchangeQuantity, d.ExchangeAmount = d.read(SourceExchange, exchange, symbol)
		d.TradeQuantity, d.TradeAmount = d.read(SourceTrade, trade, symbol)

		for _, pair := range d.Pairs() {
			if pair.Quantity > cfg.QuantityThreshold {
				d.HasQuantityDiscrepancy = true
			}
			if pair.Amount > cfg.AmountThreshold {
				d.HasAmountDiscrepancy = true
			}
		}
		if d.HasQuantityDiscrepancy || d.HasAmountDiscrepancy || len(d.Malformed) > 0 {
			out[symbol] = d
		}
	}
	return out
}

func (d *Discrepancy) read(source string, positions map[string]risk.Position, symbol string) (float64, float64) {
	p, ok := positions[symbol]
	if !ok {
		return 0, 0
	}
	qty, amount := p.SignedQuantity(), p.SignedAmount()
	if !finite(qty) || !finite(amount) {
		d.Malformed = append(d.Malformed, source)
		return 0, 0
	}
	return qty, amount
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func unionSymbols(maps ...map[string]risk.Position) []string {
	seen := make(map[string]struct{})
	for _, m := range maps {
		for symbol := range m {
			seen[symbol] = struct{}{}
		}
	}
	symbols := make([]string, 0, len(seen))
	for symbol := range seen {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// SortedSymbols returns the keys of a discrepancy map in order
func SortedSymbols(discrepancies map[string]Discrepancy) []string {
	symbols := make([]string, 0, len(discrepancies))
	for symbol := range discrepancies {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
