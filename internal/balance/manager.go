// Package balance keeps per-exchange, per-currency balances and the funds
// frozen against in-flight orders.
package balance

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	guarderrors "github.com/ducminhle1904/capital-guard/internal/errors"
	"github.com/ducminhle1904/capital-guard/internal/monitoring"
	"github.com/ducminhle1904/capital-guard/internal/risk"
)

// ErrDuplicateFreeze is returned when an order id already holds frozen funds
var ErrDuplicateFreeze = errors.New("order already has frozen funds")

// Balance is the latest snapshot reported by the exchange
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// FrozenFunds is capital reserved against one order
type FrozenFunds struct {
	OrderID  string          `json:"order_id"`
	Exchange string          `json:"exchange"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
	FrozenAt time.Time       `json:"frozen_at"`
}

// Summary is a consistent copy of one exchange and currency
type Summary struct {
	Available   decimal.Decimal `json:"available"`
	Total       decimal.Decimal `json:"total"`
	Frozen      decimal.Decimal `json:"frozen"`
	FrozenCount int             `json:"frozen_count"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Free returns available minus frozen
func (s Summary) Free() decimal.Decimal {
	return s.Available.Sub(s.Frozen)
}

type accountKey struct {
	exchange string
	currency string
}

// account holds one pair; its mutex makes freeze a single check-and-reserve
type account struct {
	mu          sync.Mutex
	balance     Balance
	frozen      map[string]FrozenFunds
	frozenTotal decimal.Decimal
}

// Manager is the global balance manager. Available balances are never
// changed by freeze or release, only by UpdateBalance.
type Manager struct {
	watermark decimal.Decimal
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	accounts map[accountKey]*account
	orders   map[string]accountKey
}

// NewManager creates a manager that flags a pair when available falls below
// total times watermarkThreshold.
func NewManager(watermarkThreshold float64, logger *zap.Logger) (*Manager, error) {
	if watermarkThreshold < 0 || watermarkThreshold > 1 {
		return nil, guarderrors.NewConfigurationError("balance", "NewManager",
			fmt.Sprintf("watermark threshold %v outside [0, 1]", watermarkThreshold))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		watermark: decimal.NewFromFloat(watermarkThreshold),
		logger:    logger.Named("balance"),
		now:       time.Now,
		accounts:  make(map[accountKey]*account),
		orders:    make(map[string]accountKey),
	}, nil
}

func (m *Manager) account(exchange, currency string, create bool) *account {
	key := accountKey{exchange: exchange, currency: currency}

	m.mu.RLock()
	acc, ok := m.accounts[key]
	m.mu.RUnlock()
	if ok || !create {
		return acc
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok = m.accounts[key]; ok {
		return acc
	}
	acc = &account{frozen: make(map[string]FrozenFunds)}
	m.accounts[key] = acc
	return acc
}

// UpdateBalance stores the latest exchange snapshot for a pair
func (m *Manager) UpdateBalance(exchange, currency string, available, total decimal.Decimal) error {
	if exchange == "" || currency == "" {
		return guarderrors.NewValidationError("balance", "UpdateBalance", "exchange and currency are required")
	}
	if available.IsNegative() || total.IsNegative() {
		return guarderrors.NewValidationError("balance", "UpdateBalance",
			fmt.Sprintf("%s %s: negative balance available=%s total=%s", exchange, currency, available, total))
	}

	acc := m.account(exchange, currency, true)
	acc.mu.Lock()
	acc.balance = Balance{Available: available, Total: total, UpdatedAt: m.now()}
	low := m.belowWatermark(acc.balance)
	acc.mu.Unlock()

	monitoring.UpdateBalance(exchange, currency, available.InexactFloat64(), low)
	return nil
}

// Freeze reserves amount of currency on the order's exchange. It returns
// false without changing state when available minus already frozen funds is
// less than amount.
func (m *Manager) Freeze(order risk.Order, amount decimal.Decimal, currency string) (bool, error) {
	if order.ID == "" || order.Exchange == "" || currency == "" {
		monitoring.RecordFreeze(order.Exchange, currency, "rejected")
		return false, guarderrors.NewValidationError("balance", "Freeze", "order id, exchange and currency are required")
	}
	if !amount.IsPositive() {
		monitoring.RecordFreeze(order.Exchange, currency, "rejected")
		return false, guarderrors.NewValidationError("balance", "Freeze",
			fmt.Sprintf("order %s: freeze amount must be positive, got %s", order.ID, amount))
	}

	acc := m.account(order.Exchange, currency, true)
	acc.mu.Lock()

	// The order index is updated inside the account lock so Release never
	// sees an index entry without its frozen funds.
	m.mu.Lock()
	if _, exists := m.orders[order.ID]; exists {
		m.mu.Unlock()
		acc.mu.Unlock()
		monitoring.RecordFreeze(order.Exchange, currency, "rejected")
		return false, fmt.Errorf("freeze %s: %w", order.ID, ErrDuplicateFreeze)
	}
	free := acc.balance.Available.Sub(acc.frozenTotal)
	if free.LessThan(amount) {
		m.mu.Unlock()
		acc.mu.Unlock()
		monitoring.RecordFreeze(order.Exchange, currency, "insufficient")
		m.logger.Info("insufficient funds to freeze",
			zap.String("order_id", order.ID),
			zap.String("exchange", order.Exchange),
			zap.String("currency", currency),
			zap.String("amount", amount.String()),
			zap.String("free", free.String()))
		return false, nil
	}
	m.orders[order.ID] = accountKey{exchange: order.Exchange, currency: currency}
	m.mu.Unlock()

	acc.frozen[order.ID] = FrozenFunds{
		OrderID:  order.ID,
		Exchange: order.Exchange,
		Currency: currency,
		Amount:   amount,
		FrozenAt: m.now(),
	}
	acc.frozenTotal = acc.frozenTotal.Add(amount)
	frozenTotal := acc.frozenTotal
	acc.mu.Unlock()

	monitoring.RecordFreeze(order.Exchange, currency, "frozen")
	monitoring.UpdateFrozen(order.Exchange, currency, frozenTotal.InexactFloat64())
	return true, nil
}

// Release unfreezes the funds held by orderID. Unknown or already released
// ids are ignored.
func (m *Manager) Release(orderID string) bool {
	m.mu.RLock()
	key, ok := m.orders[orderID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	acc := m.account(key.exchange, key.currency, false)
	if acc == nil {
		return false
	}

	acc.mu.Lock()
	funds, ok := acc.frozen[orderID]
	if ok {
		delete(acc.frozen, orderID)
		acc.frozenTotal = acc.frozenTotal.Sub(funds.Amount)
		m.mu.Lock()
		delete(m.orders, orderID)
		m.mu.Unlock()
	}
	frozenTotal := acc.frozenTotal
	acc.mu.Unlock()

	if ok {
		monitoring.UpdateFrozen(key.exchange, key.currency, frozenTotal.InexactFloat64())
	}
	return ok
}

// Frozen returns the funds held by orderID
func (m *Manager) Frozen(orderID string) (FrozenFunds, bool) {
	m.mu.RLock()
	key, ok := m.orders[orderID]
	m.mu.RUnlock()
	if !ok {
		return FrozenFunds{}, false
	}
	acc := m.account(key.exchange, key.currency, false)
	if acc == nil {
		return FrozenFunds{}, false
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	funds, ok := acc.frozen[orderID]
	return funds, ok
}

// belowWatermark must be called with the account lock held
func (m *Manager) belowWatermark(b Balance) bool {
	return b.Available.LessThan(b.Total.Mul(m.watermark))
}

// IsBelowWatermark reports available < total * threshold. Unknown pairs
// report false.
func (m *Manager) IsBelowWatermark(exchange, currency string) bool {
	acc := m.account(exchange, currency, false)
	if acc == nil {
		return false
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return m.belowWatermark(acc.balance)
}

// Balance returns the stored snapshot for a pair
func (m *Manager) Balance(exchange, currency string) (Balance, bool) {
	acc := m.account(exchange, currency, false)
	if acc == nil {
		return Balance{}, false
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance, true
}

// Summary returns exchange -> currency -> summary. Each pair is copied under
// its own lock only.
func (m *Manager) Summary() map[string]map[string]Summary {
	m.mu.RLock()
	keys := make([]accountKey, 0, len(m.accounts))
	accounts := make([]*account, 0, len(m.accounts))
	for key, acc := range m.accounts {
		keys = append(keys, key)
		accounts = append(accounts, acc)
	}
	m.mu.RUnlock()

	out := make(map[string]map[string]Summary)
	for i, acc := range accounts {
		acc.mu.Lock()
		s := Summary{
			Available:   acc.balance.Available,
			Total:       acc.balance.Total,
			Frozen:      acc.frozenTotal,
			FrozenCount: len(acc.frozen),
			UpdatedAt:   acc.balance.UpdatedAt,
		}
		acc.mu.Unlock()

		key := keys[i]
		if out[key.exchange] == nil {
			out[key.exchange] = make(map[string]Summary)
		}
		out[key.exchange][key.currency] = s
	}
	return out
}

// FrozenFunds returns every open reservation ordered by freeze time
func (m *Manager) FrozenFunds() []FrozenFunds {
	m.mu.RLock()
	accounts := make([]*account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		accounts = append(accounts, acc)
	}
	m.mu.RUnlock()

	var out []FrozenFunds
	for _, acc := range accounts {
		acc.mu.Lock()
		for _, funds := range acc.frozen {
			out = append(out, funds)
		}
		acc.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FrozenAt.Equal(out[j].FrozenAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].FrozenAt.Before(out[j].FrozenAt)
	})
	return out
}
