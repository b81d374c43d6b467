package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ducminhle1904/capital-guard/internal/risk"
)

// Fill is one execution reported by the exchange
type Fill struct {
	ID       string
	OrderID  string
	Symbol   string
	Side     risk.Side
	Quantity float64
	Price    float64
	At       time.Time
}

type tapeEntry struct {
	quantity decimal.Decimal
	cost     decimal.Decimal
	last     float64
}

// TradeTape aggregates fills into net positions. Fills are not
// deduplicated: a fill recorded twice shows up as a quantity the other
// sources do not have.
type TradeTape struct {
	mu       sync.RWMutex
	entries  map[string]*tapeEntry
	fills    int
	realized []func(Fill, float64)
}

func NewTradeTape() *TradeTape {
	return &TradeTape{entries: make(map[string]*tapeEntry)}
}

func (t *TradeTape) SourceName() string { return SourceTrade }

// Record adds a fill to the tape
func (t *TradeTape) Record(fill Fill) error {
	if fill.Symbol == "" || fill.Quantity <= 0 || fill.Price <= 0 {
		return fmt.Errorf("invalid fill %q: symbol, quantity and price are required", fill.ID)
	}
	qty := decimal.NewFromFloat(fill.Quantity)
	if fill.Side == risk.SideSell {
		qty = qty.Neg()
	} else if fill.Side != risk.SideBuy {
		return fmt.Errorf("invalid fill %q: unknown side %q", fill.ID, fill.Side)
	}

	t.mu.Lock()
	entry, ok := t.entries[fill.Symbol]
	if !ok {
		entry = &tapeEntry{}
		t.entries[fill.Symbol] = entry
	}
	pnl, closed := entry.apply(qty, decimal.NewFromFloat(fill.Price))
	entry.last = fill.Price
	t.fills++
	listeners := t.realized
	t.mu.Unlock()

	if closed {
		for _, listener := range listeners {
			listener(fill, pnl.InexactFloat64())
		}
	}
	return nil
}

// OnRealized registers a listener for the profit or loss of every fill that
// reduces or closes a position.
func (t *TradeTape) OnRealized(listener func(fill Fill, pnl float64)) {
	t.mu.Lock()
	t.realized = append(t.realized, listener)
	t.mu.Unlock()
}

// apply adds a signed fill quantity at price. A fill against the held
// direction realizes profit at the average entry price, which it leaves
// unchanged; any excess opens a new position at price.
func (e *tapeEntry) apply(qty, price decimal.Decimal) (decimal.Decimal, bool) {
	if e.quantity.IsZero() || e.quantity.Sign() == qty.Sign() {
		e.quantity = e.quantity.Add(qty)
		e.cost = e.cost.Add(qty.Mul(price))
		return decimal.Zero, false
	}

	avg := e.cost.Div(e.quantity)
	closing := decimal.Min(qty.Abs(), e.quantity.Abs())
	pnl := closing.Mul(price.Sub(avg))
	if e.quantity.IsNegative() {
		pnl = pnl.Neg()
	}

	remaining := e.quantity.Add(qty)
	switch {
	case remaining.IsZero():
		e.cost = decimal.Zero
	case remaining.Sign() == e.quantity.Sign():
		e.cost = remaining.Mul(avg)
	default:
		e.cost = remaining.Mul(price)
	}
	e.quantity = remaining
	return pnl, true
}

// Fills returns how many fills were recorded
func (t *TradeTape) Fills() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fills
}

// position reports the net quantity as a positive size with the direction in
// Side, matching how exchanges report positions.
func (t *TradeTape) position(symbol string, entry *tapeEntry) risk.Position {
	position := risk.Position{
		Symbol:       symbol,
		Quantity:     entry.quantity.Abs().InexactFloat64(),
		CurrentPrice: entry.last,
		Side:         risk.PositionLong,
	}
	if entry.quantity.IsNegative() {
		position.Side = risk.PositionShort
	}
	if !entry.quantity.IsZero() {
		position.AveragePrice = entry.cost.Div(entry.quantity).InexactFloat64()
	}
	position.MarketValue = position.Quantity * entry.last
	return position
}

func (t *TradeTape) Positions(context.Context) ([]risk.Position, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]risk.Position, 0, len(t.entries))
	for symbol, entry := range t.entries {
		out = append(out, t.position(symbol, entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (t *TradeTape) Position(_ context.Context, symbol string) (risk.Position, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.entries[symbol]
	if !ok {
		return risk.Position{}, fmt.Errorf("trade tape: no fills for %s", symbol)
	}
	return t.position(symbol, entry), nil
}
