package bybit

import (
	"errors"
	"fmt"
	"net/http"

	guarderrors "github.com/ducminhle1904/capital-guard/internal/errors"
)

// BybitError represents a Bybit API error with additional context
type BybitError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *BybitError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("Bybit API error %d: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("Bybit API error %d: %s", e.Code, e.Message)
}

// Common Bybit error codes
const (
	ErrCodeInvalidAPIKey     = 10003
	ErrCodeInvalidSignature  = 10004
	ErrCodeInvalidTimestamp  = 10005
	ErrCodeRateLimitExceeded = 10006
	ErrCodeSymbolNotFound    = 110009
)

func asBybitError(err error) (*BybitError, bool) {
	var bybitErr *BybitError
	if errors.As(err, &bybitErr) {
		return bybitErr, true
	}
	return nil, false
}

// IsRetryableError determines if an error should be retried
func IsRetryableError(err error) bool {
	if bybitErr, ok := asBybitError(err); ok {
		switch bybitErr.Code {
		case ErrCodeRateLimitExceeded,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// transport errors from the HTTP client
	return guarderrors.CategorizeError(err, "bybit", "call").IsRetryable()
}

// IsAuthenticationError checks if the error is related to authentication
func IsAuthenticationError(err error) bool {
	if bybitErr, ok := asBybitError(err); ok {
		switch bybitErr.Code {
		case ErrCodeInvalidAPIKey, ErrCodeInvalidSignature, ErrCodeInvalidTimestamp:
			return true
		}
	}
	return false
}

// IsRateLimitError checks if the error is due to rate limiting
func IsRateLimitError(err error) bool {
	if bybitErr, ok := asBybitError(err); ok {
		return bybitErr.Code == ErrCodeRateLimitExceeded
	}
	return false
}

// NewBybitError creates a new BybitError
func NewBybitError(code int, message string, details ...string) *BybitError {
	err := &BybitError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// WrapAPIError categorizes err for the guard's error taxonomy
func WrapAPIError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case IsRateLimitError(err):
		return guarderrors.WrapError(err, guarderrors.ErrorCategoryRateLimit, "bybit", operation)
	case IsAuthenticationError(err):
		return guarderrors.WrapError(err, guarderrors.ErrorCategoryConfiguration, "bybit", operation)
	}
	if _, ok := asBybitError(err); ok {
		return guarderrors.NewExchangeError("bybit", operation, err)
	}
	return guarderrors.CategorizeError(err, "bybit", operation)
}

// ParseAPIError extracts error information from the API response
func ParseAPIError(retCode int, retMsg string) error {
	if retCode == 0 {
		return nil
	}
	return NewBybitError(retCode, retMsg)
}
