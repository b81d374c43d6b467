package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/capital-guard/internal/balance"
	"github.com/ducminhle1904/capital-guard/internal/reconcile"
	"github.com/ducminhle1904/capital-guard/internal/risk"
	"github.com/ducminhle1904/capital-guard/internal/safety"
)

const token = "s3cret"

type fixture struct {
	handler  http.Handler
	pipeline *risk.Pipeline
	balances *balance.Manager
	tape     *reconcile.TradeTape
	local    *reconcile.SnapshotProvider
	breaker  *safety.CircuitBreaker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	breaker := safety.NewCircuitBreaker("trading")
	pipeline, err := risk.NewPipeline(risk.RiskConfig{MaxOrderAmount: 10000}, breaker, nil, risk.NewSanityRule(), risk.NewAmountLimitRule())
	require.NoError(t, err)

	balances, err := balance.NewManager(0.2, nil)
	require.NoError(t, err)
	require.NoError(t, balances.UpdateBalance("bybit", "USDT", decimal.NewFromInt(1000), decimal.NewFromInt(1000)))

	f := &fixture{
		pipeline: pipeline,
		balances: balances,
		tape:     reconcile.NewTradeTape(),
		local:    reconcile.NewSnapshotProvider(reconcile.SourceLocal),
		breaker:  breaker,
	}
	f.handler = NewHandler(pipeline, balances, f.tape, f.local, Config{Token: token}, nil).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeDecision(t *testing.T, rec *httptest.ResponseRecorder) Decision {
	t.Helper()
	var d Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	return d
}

func TestCheckOrder(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		allowed  bool
		reserved bool
		rule     string
	}{
		{
			name:    "check only",
			body:    `{"id":"o1","symbol":"BTCUSDT","side":"buy","quantity":0.01,"price":50000}`,
			status:  http.StatusOK,
			allowed: true,
		},
		{
			name:     "check and reserve",
			body:     `{"id":"o2","symbol":"BTCUSDT","side":"BUY","quantity":0.01,"price":50000,"reserve":true}`,
			status:   http.StatusOK,
			allowed:  true,
			reserved: true,
		},
		{
			name:   "amount violation",
			body:   `{"id":"o3","symbol":"BTCUSDT","side":"BUY","quantity":1,"price":50000}`,
			status: http.StatusUnprocessableEntity,
			rule:   "amount_limit",
		},
		{
			name:   "insufficient funds",
			body:   `{"id":"o4","symbol":"BTCUSDT","side":"BUY","quantity":0.1,"price":50000,"reserve":true}`,
			status: http.StatusUnprocessableEntity,
			rule:   "funds",
		},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/orders/check", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			d := decodeDecision(t, rec)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reserved, d.Reserved)
			assert.Equal(t, tt.rule, d.Rule)
		})
	}

	assert.Equal(t, 0.01, f.pipeline.Pending("BTCUSDT").Buy, "only o2 is reserved")
	_, frozen := f.balances.Frozen("o4")
	assert.False(t, frozen)
}

func TestCheckOrderWhileHalted(t *testing.T) {
	f := newFixture(t)
	f.breaker.Trip("MANUAL_HALT", "maintenance")

	rec := f.do(t, http.MethodPost, "/orders/check", `{"id":"o1","symbol":"BTCUSDT","side":"BUY","quantity":0.01,"price":50000}`)
	require.Equal(t, http.StatusLocked, rec.Code)
	d := decodeDecision(t, rec)
	assert.True(t, d.Halted)
	assert.Equal(t, "maintenance", d.Reason)
}

func TestReserveIsAtomicAcrossRequests(t *testing.T) {
	pipeline, err := risk.NewPipeline(risk.RiskConfig{MaxSinglePositionValue: 800}, nil, nil, risk.NewSanityRule())
	require.NoError(t, err)
	handler := NewHandler(pipeline, nil, reconcile.NewTradeTape(), reconcile.NewSnapshotProvider(reconcile.SourceLocal), Config{Token: token}, nil).Handler()

	statuses := make(chan int, 32)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"id":"o%d","symbol":"ETHUSDT","side":"BUY","quantity":2,"price":100,"reserve":true}`, i)
			req := httptest.NewRequest(http.MethodPost, "/orders/check", strings.NewReader(body))
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			statuses <- rec.Code
		}(i)
	}
	wg.Wait()
	close(statuses)

	counts := make(map[int]int)
	for status := range statuses {
		counts[status]++
	}
	assert.Equal(t, 4, counts[http.StatusOK])
	assert.Equal(t, 28, counts[http.StatusUnprocessableEntity])
	assert.Equal(t, 8.0, pipeline.Pending("ETHUSDT").Buy)
}

func TestDuplicateReserveConflicts(t *testing.T) {
	f := newFixture(t)
	body := `{"id":"o1","symbol":"BTCUSDT","side":"SELL","quantity":0.01,"price":50000,"reserve":true}`

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/orders/check", body).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/orders/check", body).Code)
	assert.Equal(t, 0.01, f.pipeline.Pending("BTCUSDT").Sell)
}

func TestFillReleasesReservation(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/orders/check", `{"id":"o1","symbol":"BTCUSDT","side":"BUY","quantity":0.01,"price":50000,"reserve":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/fills", `{"id":"f1","order_id":"o1","symbol":"BTCUSDT","side":"BUY","quantity":0.01,"price":50000,"final":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"released":true`)

	assert.Zero(t, f.pipeline.Pending("BTCUSDT").Buy)
	pos, err := f.tape.Position(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.01, pos.Quantity)

	rec = f.do(t, http.MethodPost, "/orders/o1/release", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"released":false`)
}

func TestInvalidFill(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/fills", `{"id":"f1","symbol":"BTCUSDT","side":"HOLD","quantity":1,"price":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplaceLocalPositions(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/positions/local", `[{"symbol":"ETHUSDT","quantity":2,"market_value":6000,"side":"LONG"}]`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	positions, err := f.local.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "ETHUSDT", positions[0].Symbol)
}

func TestGatewayAuth(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/orders/check", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	open := NewHandler(f.pipeline, nil, f.tape, f.local, Config{}, nil).Handler()
	req = httptest.NewRequest(http.MethodPost, "/orders/check", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
