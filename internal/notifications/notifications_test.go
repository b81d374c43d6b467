package notifications

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/capital-guard/internal/safety"
)

func TestTelegramNotifierPostsMessage(t *testing.T) {
	var path, chat, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		path = r.URL.Path
		chat = r.PostForm.Get("chat_id")
		text = r.PostForm.Get("text")
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token123", "42")
	n.apiBase = srv.URL

	require.NoError(t, n.SendAlert(LevelError, "halted"))
	assert.Equal(t, "/bottoken123/sendMessage", path)
	assert.Equal(t, "42", chat)
	assert.Contains(t, text, "Capital Guard")
	assert.Contains(t, text, "halted")
}

func TestTelegramNotifierReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "1")
	n.apiBase = srv.URL
	assert.EqualError(t, n.SendAlert(LevelInfo, "x"), "telegram API returned status 403")
}

type recorder struct {
	ch  chan string
	err error
}

func (r *recorder) SendAlert(level, message string) error {
	r.ch <- level + "|" + message
	return r.err
}

func TestMultiReturnsFirstError(t *testing.T) {
	a := &recorder{ch: make(chan string, 1), err: errors.New("a failed")}
	b := &recorder{ch: make(chan string, 1)}

	err := Multi{a, b}.SendAlert(LevelInfo, "hello")
	assert.EqualError(t, err, "a failed")
	assert.Equal(t, "info|hello", <-b.ch, "later notifiers still run")
}

func TestBreakerAlerts(t *testing.T) {
	rec := &recorder{ch: make(chan string, 2)}
	cb := safety.NewCircuitBreaker("trading")
	cb.OnStateChange(BreakerAlerts(rec, nil))

	cb.Trip("RECONCILIATION_DISCREPANCY", "BTCUSDT mismatch")
	select {
	case alert := <-rec.ch:
		assert.Contains(t, alert, "error|TRADING HALTED")
		assert.Contains(t, alert, "BTCUSDT mismatch")
	case <-time.After(time.Second):
		t.Fatal("no trip alert")
	}

	cb.Recover("alice")
	select {
	case alert := <-rec.ch:
		assert.Contains(t, alert, "success|Trading resumed by alice")
	case <-time.After(time.Second):
		t.Fatal("no recovery alert")
	}
}

func TestBreakerAlertsSkipSameCodeRetrip(t *testing.T) {
	rec := &recorder{ch: make(chan string, 4)}
	cb := safety.NewCircuitBreaker("trading")
	cb.OnStateChange(BreakerAlerts(rec, nil))

	cb.Trip("RECONCILIATION_DISCREPANCY", "pass 1")
	select {
	case alert := <-rec.ch:
		assert.Contains(t, alert, "pass 1")
	case <-time.After(time.Second):
		t.Fatal("no trip alert")
	}

	cb.Trip("RECONCILIATION_DISCREPANCY", "pass 2")
	cb.Trip("MANUAL_HALT", "operator")
	select {
	case alert := <-rec.ch:
		assert.Contains(t, alert, "MANUAL_HALT")
	case <-time.After(time.Second):
		t.Fatal("no alert for a new trip code")
	}

	select {
	case alert := <-rec.ch:
		t.Fatalf("unexpected alert %q", alert)
	case <-time.After(50 * time.Millisecond):
	}
}
