package risk

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Reservation is the pending quantity held for one submitted order
type Reservation struct {
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	ReservedAt time.Time `json:"reserved_at"`

	quantity decimal.Decimal
}

// PendingQuantity is the uncommitted quantity for one symbol
type PendingQuantity struct {
	Symbol string  `json:"symbol"`
	Buy    float64 `json:"buy"`
	Sell   float64 `json:"sell"`
}

// Ledger tracks virtual positions: per-symbol quantities committed by orders
// the exchange has not yet confirmed. Quantities are kept as decimals so a
// reserve followed by its release restores the previous value exactly.
type Ledger struct {
	mu           sync.Mutex
	pendingBuy   map[string]decimal.Decimal
	pendingSell  map[string]decimal.Decimal
	reservations map[string]Reservation
	now          func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		pendingBuy:   make(map[string]decimal.Decimal),
		pendingSell:  make(map[string]decimal.Decimal),
		reservations: make(map[string]Reservation),
		now:          time.Now,
	}
}

func (l *Ledger) book(side Side) map[string]decimal.Decimal {
	if side == SideSell {
		return l.pendingSell
	}
	return l.pendingBuy
}

// Reserve adds the order quantity to the pending side of its symbol. Each
// order id can hold one reservation at a time.
func (l *Ledger) Reserve(order Order) (Reservation, error) {
	return l.ReserveIf(order, nil)
}

// ReserveIf reserves order only if check accepts the pending quantity on the
// order's side. check runs under the ledger lock and must not call back into
// the ledger. A nil check always accepts.
func (l *Ledger) ReserveIf(order Order, check func(pending decimal.Decimal) error) (Reservation, error) {
	if order.ID == "" {
		return Reservation{}, fmt.Errorf("reserve %s: order id is required", order.Symbol)
	}
	if order.Side != SideBuy && order.Side != SideSell {
		return Reservation{}, fmt.Errorf("reserve %s: unknown side %q", order.ID, order.Side)
	}
	qty := decimal.NewFromFloat(order.Quantity)
	if !qty.IsPositive() {
		return Reservation{}, fmt.Errorf("reserve %s: quantity must be positive", order.ID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.reservations[order.ID]; exists {
		return Reservation{}, fmt.Errorf("reserve %s: %w", order.ID, ErrDuplicateReservation)
	}
	book := l.book(order.Side)
	if check != nil {
		if err := check(book[order.Symbol]); err != nil {
			return Reservation{}, err
		}
	}
	book[order.Symbol] = book[order.Symbol].Add(qty)

	res := Reservation{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		ReservedAt: l.now(),
		quantity:   qty,
	}
	l.reservations[order.ID] = res
	return res, nil
}

// Release removes the reservation held by orderID. It reports false when the
// order has no reservation, which makes repeated releases harmless.
func (l *Ledger) Release(orderID string) (Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.reservations[orderID]
	if !ok {
		return Reservation{}, false
	}
	delete(l.reservations, orderID)

	book := l.book(res.Side)
	remaining := book[res.Symbol].Sub(res.quantity)
	if remaining.IsPositive() {
		book[res.Symbol] = remaining
	} else {
		delete(book, res.Symbol)
	}
	return res, true
}

// Pending returns the uncommitted quantities for symbol
func (l *Ledger) Pending(symbol string) PendingQuantity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingLocked(symbol)
}

func (l *Ledger) pendingLocked(symbol string) PendingQuantity {
	return PendingQuantity{
		Symbol: symbol,
		Buy:    l.pendingBuy[symbol].InexactFloat64(),
		Sell:   l.pendingSell[symbol].InexactFloat64(),
	}
}

// pendingDecimal returns the pending quantity on one side as a decimal
func (l *Ledger) pendingDecimal(symbol string, side Side) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.book(side)[symbol]
}

// Snapshot returns the pending quantities of every symbol with a reservation
func (l *Ledger) Snapshot() []PendingQuantity {
	l.mu.Lock()
	defer l.mu.Unlock()

	symbols := make(map[string]struct{}, len(l.pendingBuy)+len(l.pendingSell))
	for symbol := range l.pendingBuy {
		symbols[symbol] = struct{}{}
	}
	for symbol := range l.pendingSell {
		symbols[symbol] = struct{}{}
	}
	out := make([]PendingQuantity, 0, len(symbols))
	for symbol := range symbols {
		out = append(out, l.pendingLocked(symbol))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Reservations returns the open reservations ordered by reservation time
func (l *Ledger) Reservations() []Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Reservation, 0, len(l.reservations))
	for _, res := range l.reservations {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReservedAt.Equal(out[j].ReservedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].ReservedAt.Before(out[j].ReservedAt)
	})
	return out
}
