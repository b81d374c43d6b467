package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	guarderrors "github.com/ducminhle1904/capital-guard/internal/errors"
	"github.com/ducminhle1904/capital-guard/internal/monitoring"
	"github.com/ducminhle1904/capital-guard/internal/safety"
)

// VirtualPositionRule is the rule name reported by the pending position check
const VirtualPositionRule = "virtual_position"

// Pipeline gates orders and positions: breaker check, registered rules in
// order, then the virtual position check. Checks never mutate the ledger;
// callers Reserve after a passing check and Release on a terminal order state.
type Pipeline struct {
	cfg     RiskConfig
	breaker *safety.CircuitBreaker
	ledger  *Ledger
	logger  *zap.Logger

	rules   atomic.Pointer[[]Rule]
	rulesMu sync.Mutex
}

// NewPipeline validates every rule against cfg and returns a CONFIG error for
// a missing threshold or a duplicate rule name. A nil breaker gets a fresh one.
func NewPipeline(cfg RiskConfig, breaker *safety.CircuitBreaker, logger *zap.Logger, rules ...Rule) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if breaker == nil {
		breaker = safety.NewCircuitBreaker("trading")
	}

	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if rule == nil {
			return nil, guarderrors.NewConfigurationError("risk", "NewPipeline", "nil rule")
		}
		if _, dup := seen[rule.Name()]; dup {
			return nil, guarderrors.NewConfigurationError("risk", "NewPipeline", "duplicate rule "+rule.Name())
		}
		seen[rule.Name()] = struct{}{}
		if err := rule.Validate(cfg); err != nil {
			return nil, err
		}
	}

	p := &Pipeline{
		cfg:     cfg,
		breaker: breaker,
		ledger:  NewLedger(),
		logger:  logger.Named("risk"),
	}
	snapshot := append([]Rule(nil), rules...)
	p.rules.Store(&snapshot)

	if cfg.MaxPendingSellValue <= 0 {
		p.logger.Warn("no pending sell limit configured, sell side virtual positions are unlimited")
	}
	if cfg.MaxSinglePositionValue <= 0 {
		p.logger.Warn("no single position limit configured, buy side virtual positions are unlimited")
	}

	breaker.OnStateChange(p.onBreakerEvent)
	return p, nil
}

func (p *Pipeline) onBreakerEvent(event safety.BreakerEvent) {
	switch event.To {
	case safety.StateBroken:
		monitoring.RecordBreakerTrip(event.Code)
		p.logger.Error("circuit breaker tripped, trading halted",
			zap.String("breaker", p.breaker.Name()),
			zap.String("code", event.Code),
			zap.String("reason", event.Reason),
			zap.Time("tripped_at", event.At))
	case safety.StateNormal:
		monitoring.RecordBreakerRecovered()
		p.logger.Warn("circuit breaker recovered, trading resumed",
			zap.String("breaker", p.breaker.Name()),
			zap.String("operator", event.Operator),
			zap.Time("recovered_at", event.At))
	}
}

func (p *Pipeline) breakerOpen() error {
	status := p.breaker.Status()
	if status.State != safety.StateBroken {
		return nil
	}
	err := &BreakerOpenError{Code: status.Code, Reason: status.Reason}
	if status.TrippedAt != nil {
		err.TrippedAt = *status.TrippedAt
	}
	return err
}

// check labels which kind of evaluation produced an outcome
type check int

const (
	orderCheck check = iota
	positionCheck
)

func (c check) record(outcome string) {
	if c == positionCheck {
		monitoring.RecordPositionCheck(outcome)
		return
	}
	monitoring.RecordOrderCheck(outcome)
}

// CheckOrder returns nil if order may proceed, a *BreakerOpenError while
// halted, a *Violation on rejection, or the fault a rule raised.
func (p *Pipeline) CheckOrder(order Order) error {
	if err := p.checkRules(order); err != nil {
		return err
	}
	if err := p.checkVirtualPosition(order, p.ledger.pendingDecimal(order.Symbol, order.Side)); err != nil {
		return p.ruleFailure(orderCheck, VirtualPositionRule, order.Symbol, err)
	}
	monitoring.RecordOrderCheck("pass")
	return nil
}

// CheckAndReserve checks order and, if it passes, reserves it. The virtual
// position check and the ledger update happen under one ledger lock, so
// concurrent reservations cannot together exceed the pending limits.
func (p *Pipeline) CheckAndReserve(order Order) error {
	if err := p.checkRules(order); err != nil {
		return err
	}

	var checkErr error
	res, err := p.ledger.ReserveIf(order, func(pending decimal.Decimal) error {
		checkErr = p.checkVirtualPosition(order, pending)
		return checkErr
	})
	if checkErr != nil {
		return p.ruleFailure(orderCheck, VirtualPositionRule, order.Symbol, checkErr)
	}
	if err != nil {
		return err
	}
	monitoring.RecordOrderCheck("pass")
	p.reserved(order, res)
	return nil
}

// checkRules runs the breaker and every registered rule against order
func (p *Pipeline) checkRules(order Order) error {
	if err := p.breakerOpen(); err != nil {
		monitoring.RecordOrderCheck("breaker_open")
		return err
	}
	for _, rule := range *p.rules.Load() {
		if err := rule.CheckOrder(order, p.cfg); err != nil {
			return p.ruleFailure(orderCheck, rule.Name(), order.Symbol, err)
		}
	}
	return nil
}

// CheckPosition audits a held position against every rule
func (p *Pipeline) CheckPosition(position Position) error {
	if err := p.breakerOpen(); err != nil {
		monitoring.RecordPositionCheck("breaker_open")
		return err
	}
	return p.evaluatePosition(position)
}

func (p *Pipeline) evaluatePosition(position Position) error {
	for _, rule := range *p.rules.Load() {
		if err := rule.CheckPosition(position, p.cfg); err != nil {
			return p.ruleFailure(positionCheck, rule.Name(), position.Symbol, err)
		}
	}
	monitoring.RecordPositionCheck("pass")
	return nil
}

// AuditFinding is one held position that failed a rule
type AuditFinding struct {
	Symbol string
	Rule   string
	Reason string
	Err    error
}

// AuditPositions evaluates every rule against a position snapshot and
// returns each violation or fault. Unlike CheckPosition it also runs while
// trading is halted: held positions keep their risk during a halt.
func (p *Pipeline) AuditPositions(positions []Position) []AuditFinding {
	var findings []AuditFinding
	for _, position := range positions {
		err := p.evaluatePosition(position)
		if err == nil {
			continue
		}
		finding := AuditFinding{Symbol: position.Symbol, Err: err, Reason: err.Error()}
		if v, ok := AsViolation(err); ok {
			finding.Rule = v.Rule
			finding.Reason = v.Reason
		}
		findings = append(findings, finding)
	}
	return findings
}

func (p *Pipeline) ruleFailure(kind check, rule, symbol string, err error) error {
	if v, ok := AsViolation(err); ok {
		if v.Rule == "" {
			v.Rule = rule
		}
		kind.record("violation")
		monitoring.RecordViolation(v.Rule)
		p.logger.Debug("risk check rejected",
			zap.String("rule", v.Rule),
			zap.String("symbol", symbol),
			zap.String("reason", v.Reason))
		return err
	}
	kind.record("fault")
	p.logger.Error("risk rule fault",
		zap.String("rule", rule),
		zap.String("symbol", symbol),
		zap.Error(err))
	return err
}

func (p *Pipeline) checkVirtualPosition(order Order, pending decimal.Decimal) error {
	var limit float64
	switch order.Side {
	case SideBuy:
		limit = p.cfg.MaxSinglePositionValue
	case SideSell:
		limit = p.cfg.MaxPendingSellValue
	default:
		return fmt.Errorf("virtual position check: unknown side %q", order.Side)
	}
	if limit <= 0 {
		return nil
	}

	projected := (pending.InexactFloat64() + order.Quantity) * order.Price
	if projected > limit {
		return violate(VirtualPositionRule, "%s pending %s value %.2f would exceed maximum %.2f",
			order.Symbol, order.Side, projected, limit)
	}
	return nil
}

// Reserve records the order's quantity as pending and informs rules that
// count accepted orders. It does not re-check limits; use CheckAndReserve
// when the check and the reservation must not interleave with other orders.
func (p *Pipeline) Reserve(order Order) error {
	res, err := p.ledger.Reserve(order)
	if err != nil {
		return err
	}
	p.reserved(order, res)
	return nil
}

func (p *Pipeline) reserved(order Order, res Reservation) {
	for _, rule := range *p.rules.Load() {
		if observer, ok := rule.(ReservationObserver); ok {
			observer.OnReserve(order)
		}
	}
	p.publishPending(res.Symbol)
}

// Release drops the reservation held by orderID; false if there was none
func (p *Pipeline) Release(orderID string) bool {
	res, ok := p.ledger.Release(orderID)
	if ok {
		p.publishPending(res.Symbol)
	}
	return ok
}

// ReleaseOrder releases the reservation of order
func (p *Pipeline) ReleaseOrder(order Order) bool {
	return p.Release(order.ID)
}

func (p *Pipeline) publishPending(symbol string) {
	pending := p.ledger.Pending(symbol)
	monitoring.UpdatePending(symbol, string(SideBuy), pending.Buy)
	monitoring.UpdatePending(symbol, string(SideSell), pending.Sell)
}

// Pending returns the uncommitted quantities for symbol
func (p *Pipeline) Pending(symbol string) PendingQuantity {
	return p.ledger.Pending(symbol)
}

// Ledger exposes the virtual position ledger for reporting
func (p *Pipeline) Ledger() *Ledger {
	return p.ledger
}

// TripBreaker halts trading. Repeated trips overwrite code and reason.
func (p *Pipeline) TripBreaker(code, reason string) {
	p.breaker.Trip(code, reason)
}

// Recover resumes trading. It reports false if the breaker was not broken.
func (p *Pipeline) Recover(operator string) bool {
	return p.breaker.Recover(operator)
}

func (p *Pipeline) IsBroken() bool {
	return p.breaker.IsBroken()
}

// Reason returns the trip reason, nil while trading normally
func (p *Pipeline) Reason() *string {
	return p.breaker.Reason()
}

// TrippedAt returns the trip time, nil while trading normally
func (p *Pipeline) TrippedAt() *time.Time {
	return p.breaker.TrippedAt()
}

func (p *Pipeline) BreakerStatus() safety.BreakerStatus {
	return p.breaker.Status()
}

// AddRule validates rule and appends it to the evaluation order
func (p *Pipeline) AddRule(rule Rule) error {
	if err := rule.Validate(p.cfg); err != nil {
		return err
	}

	p.rulesMu.Lock()
	defer p.rulesMu.Unlock()

	current := *p.rules.Load()
	for _, existing := range current {
		if existing.Name() == rule.Name() {
			return guarderrors.NewConfigurationError("risk", "AddRule", "duplicate rule "+rule.Name())
		}
	}
	next := make([]Rule, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, rule)
	p.rules.Store(&next)
	p.logger.Info("risk rule added", zap.String("rule", rule.Name()), zap.Int("rules", len(next)))
	return nil
}

// RemoveRule removes the named rule; false if it was not registered
func (p *Pipeline) RemoveRule(name string) bool {
	p.rulesMu.Lock()
	defer p.rulesMu.Unlock()

	current := *p.rules.Load()
	next := make([]Rule, 0, len(current))
	for _, rule := range current {
		if rule.Name() != name {
			next = append(next, rule)
		}
	}
	if len(next) == len(current) {
		return false
	}
	p.rules.Store(&next)
	p.logger.Info("risk rule removed", zap.String("rule", name), zap.Int("rules", len(next)))
	return true
}

// Rules returns the registered rule names in evaluation order
func (p *Pipeline) Rules() []string {
	rules := *p.rules.Load()
	names := make([]string, len(rules))
	for i, rule := range rules {
		names[i] = rule.Name()
	}
	return names
}
