package balance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	guarderrors "github.com/ducminhle1904/capital-guard/internal/errors"
)

// Update is one balance reading from an exchange account
type Update struct {
	Exchange  string
	Currency  string
	Available decimal.Decimal
	Total     decimal.Decimal
}

// Source reads current balances from one exchange
type Source interface {
	Name() string
	Balances(ctx context.Context) ([]Update, error)
}

// Alerter delivers operator alerts
type Alerter interface {
	SendAlert(level, message string) error
}

// Feed polls balance sources into a Manager and alerts once when a pair
// falls below its watermark and once when it recovers.
type Feed struct {
	manager *Manager
	sources []Source
	alerter Alerter
	logger  *zap.Logger

	mu  sync.Mutex
	low map[accountKey]bool

	// OnPoll is called after each poll with the time and the number of
	// failed sources
	OnPoll func(at time.Time, failures int)
}

func NewFeed(manager *Manager, alerter Alerter, logger *zap.Logger, sources ...Source) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		manager: manager,
		sources: sources,
		alerter: alerter,
		logger:  logger.Named("balance-feed"),
		low:     make(map[accountKey]bool),
	}
}

// Poll reads every source once. A failing source is logged and skipped; the
// first failure is returned after all sources were read.
func (f *Feed) Poll(ctx context.Context) error {
	var firstErr error
	failures := 0
	for _, source := range f.sources {
		updates, err := source.Balances(ctx)
		if err != nil {
			failures++
			wrapped := guarderrors.CategorizeError(err, "balance", "Poll").WithContext("source", source.Name())
			f.logger.Warn("balance source failed", zap.String("source", source.Name()), zap.Error(wrapped))
			if firstErr == nil {
				firstErr = wrapped
			}
			continue
		}
		for _, u := range updates {
			f.Apply(u)
		}
	}
	if f.OnPoll != nil {
		f.OnPoll(time.Now(), failures)
	}
	return firstErr
}

// Apply pushes one update into the manager and raises watermark alerts
func (f *Feed) Apply(u Update) {
	if err := f.manager.UpdateBalance(u.Exchange, u.Currency, u.Available, u.Total); err != nil {
		f.logger.Warn("rejected balance update",
			zap.String("exchange", u.Exchange),
			zap.String("currency", u.Currency),
			zap.Error(err))
		return
	}

	below := f.manager.IsBelowWatermark(u.Exchange, u.Currency)
	key := accountKey{exchange: u.Exchange, currency: u.Currency}

	f.mu.Lock()
	was := f.low[key]
	f.low[key] = below
	f.mu.Unlock()

	if below == was {
		return
	}
	level, message := "success", fmt.Sprintf("%s %s balance recovered above watermark: available %s of %s",
		u.Exchange, u.Currency, u.Available.StringFixed(2), u.Total.StringFixed(2))
	if below {
		level, message = "warning", fmt.Sprintf("%s %s balance below watermark: available %s of %s",
			u.Exchange, u.Currency, u.Available.StringFixed(2), u.Total.StringFixed(2))
	}
	if below {
		f.logger.Warn(message)
	} else {
		f.logger.Info(message)
	}
	if f.alerter != nil {
		if err := f.alerter.SendAlert(level, message); err != nil {
			f.logger.Error("failed to send watermark alert", zap.Error(err))
		}
	}
}

// Run polls every interval until ctx is done
func (f *Feed) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	f.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Poll(ctx)
		}
	}
}
