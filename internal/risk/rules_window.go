package risk

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// Session is a daily trading window in minutes after midnight. A session whose
// close is before its open wraps past midnight.
type Session struct {
	Open  int
	Close int
}

// ParseSession parses "HH:MM-HH:MM"
func ParseSession(s string) (Session, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return Session{}, fmt.Errorf("invalid session %q: expected HH:MM-HH:MM", s)
	}
	open, err := parseClock(parts[0])
	if err != nil {
		return Session{}, fmt.Errorf("invalid session %q: %w", s, err)
	}
	closing, err := parseClock(parts[1])
	if err != nil {
		return Session{}, fmt.Errorf("invalid session %q: %w", s, err)
	}
	return Session{Open: open, Close: closing}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (s Session) contains(minute int) bool {
	if s.Open <= s.Close {
		return minute >= s.Open && minute < s.Close
	}
	return minute >= s.Open || minute < s.Close
}

// TradingHoursRule rejects orders outside the configured sessions
type TradingHoursRule struct {
	sessions []Session
	location *time.Location
	now      func() time.Time
}

func NewTradingHoursRule(location *time.Location, sessions ...Session) *TradingHoursRule {
	if location == nil {
		location = time.UTC
	}
	return &TradingHoursRule{sessions: sessions, location: location, now: time.Now}
}

func (r *TradingHoursRule) Name() string { return "trading_hours" }

func (r *TradingHoursRule) Validate(RiskConfig) error {
	if len(r.sessions) == 0 {
		return missingThreshold(r.Name(), "at least one session")
	}
	return nil
}

func (r *TradingHoursRule) CheckOrder(order Order, _ RiskConfig) error {
	now := r.now().In(r.location)
	minute := now.Hour()*60 + now.Minute()
	for _, session := range r.sessions {
		if session.contains(minute) {
			return nil
		}
	}
	return violate(r.Name(), "%s outside trading hours at %s", order.Symbol, now.Format("15:04 MST"))
}

func (r *TradingHoursRule) CheckPosition(Position, RiskConfig) error { return nil }

// VolatilityRule keeps a rolling window of observed prices per symbol and
// rejects orders while the standard deviation of returns is above
// MaxVolatilityPct.
type VolatilityRule struct {
	mu     sync.RWMutex
	window int
	prices map[string][]float64
}

func NewVolatilityRule(window int) *VolatilityRule {
	return &VolatilityRule{window: window, prices: make(map[string][]float64)}
}

func (r *VolatilityRule) Name() string { return "volatility" }

func (r *VolatilityRule) Validate(cfg RiskConfig) error {
	if cfg.MaxVolatilityPct <= 0 {
		return missingThreshold(r.Name(), "MaxVolatilityPct")
	}
	if r.window < 3 {
		return missingThreshold(r.Name(), "a window of at least 3 prices")
	}
	return nil
}

// Observe appends a market price to the symbol's window
func (r *VolatilityRule) Observe(symbol string, price float64) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	window := append(r.prices[symbol], price)
	if len(window) > r.window {
		window = window[len(window)-r.window:]
	}
	r.prices[symbol] = window
}

// Volatility returns the standard deviation of simple returns in the window and
// whether the window is full.
func (r *VolatilityRule) Volatility(symbol string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	window := r.prices[symbol]
	if len(window) < r.window {
		return 0, false
	}
	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		returns = append(returns, (window[i]-window[i-1])/window[i-1])
	}
	var mean float64
	for _, ret := range returns {
		mean += ret
	}
	mean /= float64(len(returns))
	var variance float64
	for _, ret := range returns {
		variance += (ret - mean) * (ret - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance), true
}

func (r *VolatilityRule) CheckOrder(order Order, cfg RiskConfig) error {
	vol, ok := r.Volatility(order.Symbol)
	if !ok {
		return nil
	}
	if vol > cfg.MaxVolatilityPct {
		return violate(r.Name(), "%s volatility %.2f%% above %.2f%%", order.Symbol, vol*100, cfg.MaxVolatilityPct*100)
	}
	return nil
}

func (r *VolatilityRule) CheckPosition(Position, RiskConfig) error { return nil }

// DailyLimitRule counts accepted orders and realized losses per UTC day
type DailyLimitRule struct {
	mu     sync.Mutex
	day    string
	trades int
	loss   float64
	now    func() time.Time
}

func NewDailyLimitRule() *DailyLimitRule {
	return &DailyLimitRule{now: time.Now}
}

func (r *DailyLimitRule) Name() string { return "daily_limit" }

func (r *DailyLimitRule) Validate(cfg RiskConfig) error {
	if cfg.MaxDailyTrades <= 0 && cfg.MaxDailyLoss <= 0 {
		return missingThreshold(r.Name(), "MaxDailyTrades or MaxDailyLoss")
	}
	return nil
}

// resetIfNeeded must be called with mu held
func (r *DailyLimitRule) resetIfNeeded() {
	today := r.now().UTC().Format("2006-01-02")
	if today != r.day {
		r.day = today
		r.trades = 0
		r.loss = 0
	}
}

// OnReserve counts an accepted order
func (r *DailyLimitRule) OnReserve(Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetIfNeeded()
	r.trades++
}

// RecordPnL adds realized profit or loss for today
func (r *DailyLimitRule) RecordPnL(pnl float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetIfNeeded()
	r.loss -= pnl
}

// Counters returns today's accepted order count and net realized loss
func (r *DailyLimitRule) Counters() (int, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetIfNeeded()
	return r.trades, r.loss
}

func (r *DailyLimitRule) CheckOrder(order Order, cfg RiskConfig) error {
	trades, loss := r.Counters()
	if cfg.MaxDailyTrades > 0 && trades >= cfg.MaxDailyTrades {
		return violate(r.Name(), "daily trade count %d reached maximum %d", trades, cfg.MaxDailyTrades)
	}
	if cfg.MaxDailyLoss > 0 && loss >= cfg.MaxDailyLoss {
		return violate(r.Name(), "daily loss %.2f reached maximum %.2f", loss, cfg.MaxDailyLoss)
	}
	return nil
}

func (r *DailyLimitRule) CheckPosition(Position, RiskConfig) error { return nil }
