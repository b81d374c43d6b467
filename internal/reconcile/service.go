package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	guarderrors "github.com/ducminhle1904/capital-guard/internal/errors"
	"github.com/ducminhle1904/capital-guard/internal/monitoring"
	"github.com/ducminhle1904/capital-guard/internal/risk"
)

// DiscrepancyCode is the breaker code used when a pass finds discrepancies
const DiscrepancyCode = "RECONCILIATION_DISCREPANCY"

// BreakerTripper halts trading
type BreakerTripper interface {
	TripBreaker(code, reason string)
}

// ProviderFailure records a source that could not be read during a pass
type ProviderFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Result is the audit record of one reconciliation pass
type Result struct {
	PassID           string                 `json:"pass_id"`
	StartedAt        time.Time              `json:"started_at"`
	Duration         time.Duration          `json:"duration"`
	LocalCount       int                    `json:"local_count"`
	ExchangeCount    int                    `json:"exchange_count"`
	TradeCount       int                    `json:"trade_count"`
	Discrepancies    map[string]Discrepancy `json:"discrepancies"`
	HasDiscrepancies bool                   `json:"has_discrepancies"`
	ProviderFailures []ProviderFailure      `json:"provider_failures,omitempty"`

	// ExchangePositions is the exchange snapshot used by the pass
	ExchangePositions []risk.Position `json:"-"`
}

// DiscrepancyCount returns the number of discrepant symbols
func (r Result) DiscrepancyCount() int {
	return len(r.Discrepancies)
}

// Service runs reconciliation passes over three position providers and trips
// the breaker when they disagree.
type Service struct {
	cfg      Config
	local    PositionProvider
	exchange PositionProvider
	trade    PositionProvider
	breaker  BreakerTripper
	logger   *zap.Logger

	queryTimeout time.Duration
	now          func() time.Time

	passMu    sync.Mutex
	mu        sync.RWMutex
	listeners []func(Result)
	last      *Result
}

func NewService(cfg Config, breaker BreakerTripper, logger *zap.Logger, local, exchange, trade PositionProvider) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, guarderrors.WrapError(err, guarderrors.ErrorCategoryConfiguration, "reconcile", "NewService")
	}
	if local == nil || exchange == nil || trade == nil {
		return nil, guarderrors.NewConfigurationError("reconcile", "NewService", "local, exchange and trade providers are required")
	}
	if breaker == nil {
		return nil, guarderrors.NewConfigurationError("reconcile", "NewService", "breaker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		local:    local,
		exchange: exchange,
		trade:    trade,
		breaker:  breaker,
		logger:   logger.Named("reconcile"),
		now:      time.Now,
	}, nil
}

// SetQueryTimeout bounds each provider call of a pass
func (s *Service) SetQueryTimeout(timeout time.Duration) {
	s.queryTimeout = timeout
}

// OnResult registers a listener called after every pass
func (s *Service) OnResult(listener func(Result)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

// LastResult returns the most recent pass, if any
func (s *Service) LastResult() (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// Reconcile runs one pass. It never fails: a provider that errors or panics
// is reported in ProviderFailures and compared as an empty snapshot.
func (s *Service) Reconcile(ctx context.Context) Result {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	result := Result{
		PassID:    uuid.NewString(),
		StartedAt: s.now(),
	}
	logger := s.logger.With(zap.String("pass_id", result.PassID))

	local := s.collect(ctx, logger, s.local, &result)
	exchange := s.collect(ctx, logger, s.exchange, &result)
	trade := s.collect(ctx, logger, s.trade, &result)
	result.LocalCount = len(local)
	result.ExchangeCount = len(exchange)
	result.TradeCount = len(trade)
	result.ExchangePositions = exchange

	result.Discrepancies = Reconcile(
		s.toMap(logger, s.local.SourceName(), local),
		s.toMap(logger, s.exchange.SourceName(), exchange),
		s.toMap(logger, s.trade.SourceName(), trade),
		s.cfg,
	)
	result.HasDiscrepancies = len(result.Discrepancies) > 0
	result.Duration = s.now().Sub(result.StartedAt)
	monitoring.RecordReconciliation(len(result.Discrepancies))

	if result.HasDiscrepancies {
		for _, symbol := range SortedSymbols(result.Discrepancies) {
			d := result.Discrepancies[symbol]
			logger.Warn("position discrepancy",
				zap.String("symbol", symbol),
				zap.Float64("local_qty", d.LocalQuantity),
				zap.Float64("exchange_qty", d.ExchangeQuantity),
				zap.Float64("trade_qty", d.TradeQuantity),
				zap.Float64("local_amount", d.LocalAmount),
				zap.Float64("exchange_amount", d.ExchangeAmount),
				zap.Float64("trade_amount", d.TradeAmount),
				zap.Bool("quantity", d.HasQuantityDiscrepancy),
				zap.Bool("amount", d.HasAmountDiscrepancy),
				zap.Strings("malformed", d.Malformed))
		}
		s.breaker.TripBreaker(DiscrepancyCode, tripReason(result))
	} else {
		logger.Info("reconciliation clean",
			zap.Int("local", result.LocalCount),
			zap.Int("exchange", result.ExchangeCount),
			zap.Int("trade", result.TradeCount),
			zap.Int("provider_failures", len(result.ProviderFailures)))
	}

	s.mu.Lock()
	s.last = &result
	listeners := append([]func(Result){}, s.listeners...)
	s.mu.Unlock()
	for _, listener := range listeners {
		listener(result)
	}
	return result
}

// collect queries one provider and contains its failure
func (s *Service) collect(ctx context.Context, logger *zap.Logger, provider PositionProvider, result *Result) (positions []risk.Position) {
	source := provider.SourceName()
	defer func() {
		if r := recover(); r != nil {
			s.fail(logger, source, fmt.Errorf("provider panic: %v", r), result)
			positions = nil
		}
	}()

	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}
	positions, err := provider.Positions(ctx)
	if err != nil {
		s.fail(logger, source, err, result)
		return nil
	}
	return positions
}

func (s *Service) fail(logger *zap.Logger, source string, err error, result *Result) {
	wrapped := guarderrors.NewReconciliationError("reconcile", "collect", err).WithContext("source", source)
	monitoring.RecordProviderFailure(source)
	logger.Error("position provider failed, treating snapshot as empty",
		zap.String("source", source),
		zap.Error(wrapped))
	result.ProviderFailures = append(result.ProviderFailures, ProviderFailure{Source: source, Error: err.Error()})
}

// toMap indexes a snapshot by symbol. Entries for the same symbol are netted
// by direction.
func (s *Service) toMap(logger *zap.Logger, source string, positions []risk.Position) map[string]risk.Position {
	out := make(map[string]risk.Position, len(positions))
	for _, p := range positions {
		if p.Symbol == "" {
			logger.Warn("dropping position without symbol", zap.String("source", source))
			continue
		}
		existing, ok := out[p.Symbol]
		if !ok {
			out[p.Symbol] = p
			continue
		}
		logger.Debug("netting duplicate position", zap.String("source", source), zap.String("symbol", p.Symbol))
		out[p.Symbol] = existing.Net(p)
	}
	return out
}

func tripReason(result Result) string {
	symbols := SortedSymbols(result.Discrepancies)
	const maxListed = 5
	listed := symbols
	if len(listed) > maxListed {
		listed = listed[:maxListed]
	}
	reason := fmt.Sprintf("%d symbol(s) discrepant in pass %s: %s", len(symbols), result.PassID, strings.Join(listed, ", "))
	if len(symbols) > maxListed {
		reason += fmt.Sprintf(" and %d more", len(symbols)-maxListed)
	}
	return reason
}

// Run reconciles every interval until ctx is done
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("reconciliation scheduler started", zap.Duration("interval", interval))
	s.Reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciliation scheduler stopped")
			return
		case <-ticker.C:
			s.Reconcile(ctx)
		}
	}
}
