// Package gateway is the HTTP surface a strategy process uses to ask the
// guard for permission before submitting an order and to report fills and
// its own position estimate back.
package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ducminhle1904/capital-guard/internal/reconcile"
	"github.com/ducminhle1904/capital-guard/internal/risk"
)

// OrderGate is the pipeline surface used by the gateway
type OrderGate interface {
	CheckOrder(order risk.Order) error
	CheckAndReserve(order risk.Order) error
	Release(orderID string) bool
}

// FundsLocker freezes quote funds for accepted buy orders
type FundsLocker interface {
	Freeze(order risk.Order, amount decimal.Decimal, currency string) (bool, error)
	Release(orderID string) bool
}

// FillRecorder receives execution reports
type FillRecorder interface {
	Record(fill reconcile.Fill) error
}

// PositionReplacer holds the strategy's locally estimated positions
type PositionReplacer interface {
	Replace(positions []risk.Position)
}

// OrderRequest is the body of POST /orders/check
type OrderRequest struct {
	ID       string  `json:"id"`
	Exchange string  `json:"exchange"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	// Currency is the quote currency frozen for buys
	Currency string `json:"currency"`
	// Reserve records the order in the virtual ledger and freezes funds
	// when the check passes.
	Reserve bool `json:"reserve"`
}

// Decision is the answer to an order check
type Decision struct {
	OrderID  string `json:"order_id"`
	Allowed  bool   `json:"allowed"`
	Reserved bool   `json:"reserved"`
	Rule     string `json:"rule,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Halted   bool   `json:"halted,omitempty"`
}

// FillRequest is the body of POST /fills
type FillRequest struct {
	ID       string    `json:"id"`
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	At       time.Time `json:"at"`
	// Final marks the last fill of an order and releases its reservation
	Final bool `json:"final"`
}

// Config holds gateway defaults
type Config struct {
	Token           string
	DefaultExchange string
	DefaultCurrency string
}

// Handler serves the strategy-facing endpoints
type Handler struct {
	gate   OrderGate
	funds  FundsLocker
	fills  FillRecorder
	local  PositionReplacer
	config Config
	logger *zap.Logger
}

func NewHandler(gate OrderGate, funds FundsLocker, fills FillRecorder, local PositionReplacer, config Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultExchange == "" {
		config.DefaultExchange = "bybit"
	}
	if config.DefaultCurrency == "" {
		config.DefaultCurrency = "USDT"
	}
	return &Handler{
		gate:   gate,
		funds:  funds,
		fills:  fills,
		local:  local,
		config: config,
		logger: logger.Named("gateway"),
	}
}

// RegisterRoutes registers the gateway routes on mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders/check", h.authorized(h.handleCheck))
	mux.HandleFunc("POST /orders/{id}/release", h.authorized(h.handleRelease))
	mux.HandleFunc("POST /fills", h.authorized(h.handleFill))
	mux.HandleFunc("PUT /positions/local", h.authorized(h.handleLocalPositions))
}

// Handler returns a mux serving the gateway routes
func (h *Handler) Handler() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Exchange == "" {
		req.Exchange = h.config.DefaultExchange
	}
	if req.Currency == "" {
		req.Currency = h.config.DefaultCurrency
	}

	order := risk.Order{
		ID:       req.ID,
		Exchange: req.Exchange,
		Symbol:   req.Symbol,
		Side:     risk.Side(strings.ToUpper(req.Side)),
		Quantity: req.Quantity,
		Price:    req.Price,
	}
	decision := Decision{OrderID: order.ID}

	if !req.Reserve {
		if err := h.gate.CheckOrder(order); err != nil {
			h.reject(w, decision, err)
			return
		}
		decision.Allowed = true
		writeJSON(w, http.StatusOK, decision)
		return
	}

	if err := h.gate.CheckAndReserve(order); err != nil {
		if errors.Is(err, risk.ErrDuplicateReservation) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.reject(w, decision, err)
		return
	}
	decision.Allowed = true

	if order.Side == risk.SideBuy && h.funds != nil {
		amount := decimal.NewFromFloat(order.Quantity).Mul(decimal.NewFromFloat(order.Price))
		ok, err := h.funds.Freeze(order, amount, req.Currency)
		if err != nil || !ok {
			h.gate.Release(order.ID)
			if err != nil {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			decision.Allowed = false
			decision.Rule = "funds"
			decision.Reason = "insufficient " + req.Currency + " on " + req.Exchange
			writeJSON(w, http.StatusUnprocessableEntity, decision)
			return
		}
	}

	decision.Reserved = true
	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) reject(w http.ResponseWriter, decision Decision, err error) {
	var violation *risk.Violation
	var halted *risk.BreakerOpenError
	switch {
	case errors.As(err, &violation):
		decision.Rule = violation.Rule
		decision.Reason = violation.Reason
		writeJSON(w, http.StatusUnprocessableEntity, decision)
	case errors.As(err, &halted):
		decision.Halted = true
		decision.Rule = halted.Code
		decision.Reason = halted.Reason
		writeJSON(w, http.StatusLocked, decision)
	default:
		h.logger.Error("order check failed", zap.String("order_id", decision.OrderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	released := h.release(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{"order_id": id, "released": released})
}

func (h *Handler) release(orderID string) bool {
	released := h.gate.Release(orderID)
	if h.funds != nil && h.funds.Release(orderID) {
		released = true
	}
	return released
}

func (h *Handler) handleFill(w http.ResponseWriter, r *http.Request) {
	var req FillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.At.IsZero() {
		req.At = time.Now().UTC()
	}

	fill := reconcile.Fill{
		ID:       req.ID,
		OrderID:  req.OrderID,
		Symbol:   req.Symbol,
		Side:     risk.Side(strings.ToUpper(req.Side)),
		Quantity: req.Quantity,
		Price:    req.Price,
		At:       req.At,
	}
	if err := h.fills.Record(fill); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	released := false
	if req.Final && req.OrderID != "" {
		released = h.release(req.OrderID)
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"fill_id": req.ID, "released": released})
}

func (h *Handler) handleLocalPositions(w http.ResponseWriter, r *http.Request) {
	var positions []risk.Position
	if err := json.NewDecoder(r.Body).Decode(&positions); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.local.Replace(positions)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.config.Token == "" {
			writeError(w, http.StatusForbidden, "gateway token not configured")
			return
		}
		supplied := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(h.config.Token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
