package monitoring

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ducminhle1904/capital-guard/internal/safety"
)

// OperatorHeader names the operator performing a breaker action
const OperatorHeader = "X-Operator"

// ManualHaltCode is the breaker code used when an operator halts trading
const ManualHaltCode = "MANUAL_HALT"

// BreakerController is the breaker surface the operator API drives
type BreakerController interface {
	BreakerStatus() safety.BreakerStatus
	TripBreaker(code, reason string)
	Recover(operator string) bool
}

// TripRequest is the body of POST /breaker/trip
type TripRequest struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// BreakerHandler serves the operator control API. Mutating endpoints require
// the bearer token; they are disabled when no token is configured.
type BreakerHandler struct {
	breaker  BreakerController
	balances func() interface{}
	health   http.Handler
	token    string
	logger   *zap.Logger
}

func NewBreakerHandler(breaker BreakerController, balances func() interface{}, health http.Handler, token string, logger *zap.Logger) *BreakerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreakerHandler{
		breaker:  breaker,
		balances: balances,
		health:   health,
		token:    token,
		logger:   logger.Named("control"),
	}
}

// RegisterRoutes registers the control routes on mux
func (h *BreakerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /breaker", h.handleStatus)
	mux.HandleFunc("POST /breaker/recover", h.handleRecover)
	mux.HandleFunc("POST /breaker/trip", h.handleTrip)
	mux.HandleFunc("GET /balances", h.handleBalances)
	if h.health != nil {
		mux.Handle("GET /healthz", h.health)
	}
}

// Handler returns a mux serving the control routes
func (h *BreakerHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func (h *BreakerHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.breaker.BreakerStatus())
}

func (h *BreakerHandler) handleRecover(w http.ResponseWriter, r *http.Request) {
	operator, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if !h.breaker.Recover(operator) {
		writeJSON(w, http.StatusConflict, h.breaker.BreakerStatus())
		return
	}
	h.logger.Warn("breaker recovered by operator",
		zap.String("operator", operator),
		zap.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, h.breaker.BreakerStatus())
}

func (h *BreakerHandler) handleTrip(w http.ResponseWriter, r *http.Request) {
	operator, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req TripRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.Code == "" {
		req.Code = ManualHaltCode
	}
	if req.Reason == "" {
		req.Reason = "halted by " + operator
	}

	h.breaker.TripBreaker(req.Code, req.Reason)
	h.logger.Warn("breaker tripped by operator",
		zap.String("operator", operator),
		zap.String("code", req.Code),
		zap.String("reason", req.Reason))
	writeJSON(w, http.StatusOK, h.breaker.BreakerStatus())
}

func (h *BreakerHandler) handleBalances(w http.ResponseWriter, r *http.Request) {
	if h.balances == nil {
		writeError(w, http.StatusNotFound, "balance manager not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.balances())
}

// authorize checks the bearer token and returns the operator name
func (h *BreakerHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.token == "" {
		writeError(w, http.StatusForbidden, "operator token not configured")
		return "", false
	}
	supplied := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(h.token)) != 1 {
		h.logger.Warn("rejected breaker request", zap.String("remote", r.RemoteAddr), zap.String("path", r.URL.Path))
		writeError(w, http.StatusUnauthorized, "invalid operator token")
		return "", false
	}
	operator := strings.TrimSpace(r.Header.Get(OperatorHeader))
	if operator == "" {
		writeError(w, http.StatusBadRequest, OperatorHeader+" header is required")
		return "", false
	}
	return operator, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
