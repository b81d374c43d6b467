package balance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	guarderrors "github.com/ducminhle1904/capital-guard/internal/errors"
	"github.com/ducminhle1904/capital-guard/internal/risk"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func order(id string) risk.Order {
	return risk.Order{ID: id, Exchange: "bybit", Symbol: "BTCUSDT", Side: risk.SideBuy, Quantity: 1, Price: 100}
}

func newManager(t *testing.T, watermark float64) *Manager {
	t.Helper()
	m, err := NewManager(watermark, nil)
	require.NoError(t, err)
	return m
}

func TestFreezeRespectsAvailableMinusFrozen(t *testing.T) {
	m := newManager(t, 0.2)
	require.NoError(t, m.UpdateBalance("bybit", "USDT", d("1000"), d("1000")))

	ok, err := m.Freeze(order("o1"), d("700"), "USDT")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Freeze(order("o2"), d("500"), "USDT")
	require.NoError(t, err)
	assert.False(t, ok, "insufficient funds is a normal negative result")

	ok, err = m.Freeze(order("o3"), d("300"), "USDT")
	require.NoError(t, err)
	assert.True(t, ok)

	s := m.Summary()["bybit"]["USDT"]
	assert.True(t, s.Frozen.Equal(d("1000")))
	assert.True(t, s.Available.Equal(d("1000")), "freeze never changes available")
	assert.True(t, s.Free().IsZero())
	assert.Equal(t, 2, s.FrozenCount)

	_, held := m.Frozen("o2")
	assert.False(t, held)
}

func TestConcurrentFreezesNeverOverReserve(t *testing.T) {
	for round := 0; round < 50; round++ {
		m := newManager(t, 0)
		require.NoError(t, m.UpdateBalance("bybit", "USDT", d("1000"), d("1000")))

		var wg sync.WaitGroup
		var accepted [2]bool
		amounts := []decimal.Decimal{d("700"), d("500")}
		start := make(chan struct{})
		for i := range amounts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				ok, err := m.Freeze(order(fmt.Sprintf("r%d-o%d", round, i)), amounts[i], "USDT")
				assert.NoError(t, err)
				accepted[i] = ok
			}(i)
		}
		close(start)
		wg.Wait()

		assert.False(t, accepted[0] && accepted[1], "round %d: both freezes succeeded", round)
		assert.True(t, accepted[0] || accepted[1], "round %d: one freeze must succeed", round)
		assert.True(t, m.Summary()["bybit"]["USDT"].Frozen.LessThanOrEqual(d("1000")))
	}
}

func TestConcurrentFreezeReleaseKeepsTotals(t *testing.T) {
	m := newManager(t, 0)
	require.NoError(t, m.UpdateBalance("bybit", "USDT", d("100"), d("100")))

	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				ok, err := m.Freeze(order(id), d("7.5"), "USDT")
				if err != nil {
					t.Errorf("freeze %s: %v", id, err)
					return
				}
				if ok {
					succeeded.Add(1)
					if frozen := m.Summary()["bybit"]["USDT"].Frozen; frozen.GreaterThan(d("100")) {
						t.Errorf("over-reserved: %s", frozen)
					}
					m.Release(id)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Positive(t, succeeded.Load())
	s := m.Summary()["bybit"]["USDT"]
	assert.True(t, s.Frozen.IsZero())
	assert.Zero(t, s.FrozenCount)
	assert.Empty(t, m.FrozenFunds())
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := newManager(t, 0.2)
	require.NoError(t, m.UpdateBalance("bybit", "USDT", d("1000"), d("1000")))
	ok, err := m.Freeze(order("o1"), d("400"), "USDT")
	require.NoError(t, err)
	require.True(t, ok)

	before := m.Summary()
	assert.False(t, m.Release("unknown"))
	assert.Equal(t, before, m.Summary())

	assert.True(t, m.Release("o1"))
	assert.False(t, m.Release("o1"))
	assert.True(t, m.Summary()["bybit"]["USDT"].Frozen.IsZero())

	ok, err = m.Freeze(order("o1"), d("1000"), "USDT")
	require.NoError(t, err)
	assert.True(t, ok, "a released id can freeze again")
}

func TestFreezeRejectsInvalidRequests(t *testing.T) {
	m := newManager(t, 0.2)
	require.NoError(t, m.UpdateBalance("bybit", "USDT", d("1000"), d("1000")))

	_, err := m.Freeze(order("o1"), d("0"), "USDT")
	assert.True(t, guarderrors.IsCategory(err, guarderrors.ErrorCategoryValidation))
	_, err = m.Freeze(order(""), d("1"), "USDT")
	assert.True(t, guarderrors.IsCategory(err, guarderrors.ErrorCategoryValidation))
	_, err = m.Freeze(order("o1"), d("1"), "")
	assert.Error(t, err)

	ok, err := m.Freeze(order("o1"), d("1"), "USDT")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = m.Freeze(order("o1"), d("1"), "USDT")
	assert.ErrorIs(t, err, ErrDuplicateFreeze)

	ok, err = m.Freeze(order("o2"), d("1"), "BTC")
	require.NoError(t, err)
	assert.False(t, ok, "no balance reported for the pair yet")
}

func TestFreezeIsScopedToExchangeAndCurrency(t *testing.T) {
	m := newManager(t, 0.2)
	require.NoError(t, m.UpdateBalance("bybit", "USDT", d("100"), d("100")))
	require.NoError(t, m.UpdateBalance("binance", "USDT", d("100"), d("100")))

	ok, _ := m.Freeze(order("o1"), d("100"), "USDT")
	require.True(t, ok)

	other := order("o2")
	other.Exchange = "binance"
	ok, _ = m.Freeze(other, d("100"), "USDT")
	assert.True(t, ok)

	summary := m.Summary()
	assert.Len(t, summary, 2)
	assert.True(t, summary["binance"]["USDT"].Frozen.Equal(d("100")))
}

func TestIsBelowWatermark(t *testing.T) {
	m := newManager(t, 0.2)

	tests := []struct {
		available string
		below     bool
	}{
		{"150", true},
		{"250", false},
		{"200", false},
		{"0", true},
	}

	for _, tt := range tests {
		t.Run(tt.available, func(t *testing.T) {
			require.NoError(t, m.UpdateBalance("bybit", "USDT", d(tt.available), d("1000")))
			assert.Equal(t, tt.below, m.IsBelowWatermark("bybit", "USDT"))
		})
	}

	assert.False(t, m.IsBelowWatermark("bybit", "EUR"))
}

func TestWatermarkIgnoresFrozenFunds(t *testing.T) {
	m := newManager(t, 0.2)
	require.NoError(t, m.UpdateBalance("bybit", "USDT", d("250"), d("1000")))
	ok, _ := m.Freeze(order("o1"), d("200"), "USDT")
	require.True(t, ok)
	assert.False(t, m.IsBelowWatermark("bybit", "USDT"))
}

func TestUpdateBalanceValidation(t *testing.T) {
	m := newManager(t, 0.2)
	assert.Error(t, m.UpdateBalance("bybit", "USDT", d("-1"), d("10")))
	assert.Error(t, m.UpdateBalance("", "USDT", d("1"), d("10")))
	_, ok := m.Balance("bybit", "USDT")
	assert.False(t, ok)

	_, err := NewManager(1.5, nil)
	assert.True(t, guarderrors.IsCategory(err, guarderrors.ErrorCategoryConfiguration))
}

type stubSource struct {
	name    string
	updates []Update
	err     error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Balances(context.Context) ([]Update, error) { return s.updates, s.err }

type recordingAlerter struct {
	alerts []string
}

func (a *recordingAlerter) SendAlert(level, message string) error {
	a.alerts = append(a.alerts, level+": "+message)
	return nil
}

func TestFeedAlertsOnWatermarkCrossing(t *testing.T) {
	m := newManager(t, 0.2)
	alerter := &recordingAlerter{}
	source := &stubSource{name: "bybit"}
	broken := &stubSource{name: "down", err: errors.New("dial tcp: connection refused")}
	feed := NewFeed(m, alerter, nil, source, broken)

	var failures []int
	feed.OnPoll = func(_ time.Time, n int) { failures = append(failures, n) }

	steps := []struct {
		available string
		alerts    int
	}{
		{"500", 0},
		{"150", 1},
		{"100", 1},
		{"300", 2},
		{"400", 2},
	}
	for _, step := range steps {
		source.updates = []Update{{Exchange: "bybit", Currency: "USDT", Available: d(step.available), Total: d("1000")}}
		err := feed.Poll(context.Background())
		require.Error(t, err)
		assert.True(t, guarderrors.IsCategory(err, guarderrors.ErrorCategoryNetwork))
		assert.Len(t, alerter.alerts, step.alerts, "available %s", step.available)
	}
	assert.Contains(t, alerter.alerts[0], "warning: bybit USDT balance below watermark")
	assert.Contains(t, alerter.alerts[1], "success:")
	assert.Equal(t, []int{1, 1, 1, 1, 1}, failures)

	b, ok := m.Balance("bybit", "USDT")
	require.True(t, ok)
	assert.True(t, b.Available.Equal(d("400")))
}
