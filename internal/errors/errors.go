package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Critical errors that must stop the guard at startup
	ErrorCategoryFatal         ErrorCategory = "FATAL"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"

	// Errors contained to a single call or a single reconciliation source
	ErrorCategoryValidation     ErrorCategory = "VALIDATION"
	ErrorCategoryReconciliation ErrorCategory = "RECONCILIATION"
	ErrorCategoryExchange       ErrorCategory = "EXCHANGE"
	ErrorCategoryNetwork        ErrorCategory = "NETWORK"
	ErrorCategoryTimeout        ErrorCategory = "TIMEOUT"

	// Temporary errors
	ErrorCategoryTemporary ErrorCategory = "TEMPORARY"
	ErrorCategoryRateLimit ErrorCategory = "RATE_LIMIT"
)

// GuardError represents a categorized error with context
type GuardError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *GuardError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *GuardError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *GuardError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error should stop the process
func (e *GuardError) IsFatal() bool {
	return e.Category == ErrorCategoryFatal || e.Category == ErrorCategoryConfiguration
}

// NewGuardError creates a new categorized error
func NewGuardError(category ErrorCategory, component, operation, message string) *GuardError {
	return &GuardError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// WrapError wraps an existing error with guard error context
func WrapError(err error, category ErrorCategory, component, operation string) *GuardError {
	if err == nil {
		return nil
	}

	return &GuardError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

// WithContext adds context information to the error
func (e *GuardError) WithContext(key string, value interface{}) *GuardError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRetryable sets the retryable flag
func (e *GuardError) WithRetryable(retryable bool) *GuardError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryTemporary, ErrorCategoryRateLimit, ErrorCategoryExchange:
		return true
	default:
		return false
	}
}

// CategorizeError attempts to categorize a generic error
func CategorizeError(err error, component, operation string) *GuardError {
	if err == nil {
		return nil
	}

	var guardErr *GuardError
	if errors.As(err, &guardErr) {
		return guardErr
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "context deadline exceeded") {
		return WrapError(err, ErrorCategoryTimeout, component, operation)
	}

	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dns") || strings.Contains(errMsg, "dial") {
		return WrapError(err, ErrorCategoryNetwork, component, operation)
	}

	if strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "too many requests") {
		return WrapError(err, ErrorCategoryRateLimit, component, operation)
	}

	if strings.Contains(errMsg, "api error") {
		return WrapError(err, ErrorCategoryExchange, component, operation)
	}

	if strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "malformed") {
		return WrapError(err, ErrorCategoryValidation, component, operation)
	}

	return WrapError(err, ErrorCategoryTemporary, component, operation)
}

// IsCategory reports whether err carries a GuardError of the given category
func IsCategory(err error, category ErrorCategory) bool {
	var guardErr *GuardError
	if errors.As(err, &guardErr) {
		return guardErr.Category == category
	}
	return false
}

// Common error constructors

func NewValidationError(component, operation, message string) *GuardError {
	return NewGuardError(ErrorCategoryValidation, component, operation, message)
}

func NewConfigurationError(component, operation, message string) *GuardError {
	return NewGuardError(ErrorCategoryConfiguration, component, operation, message)
}

func NewReconciliationError(component, operation string, err error) *GuardError {
	return WrapError(err, ErrorCategoryReconciliation, component, operation)
}

func NewExchangeError(component, operation string, err error) *GuardError {
	return WrapError(err, ErrorCategoryExchange, component, operation)
}

func NewFatalError(component, operation, message string) *GuardError {
	return NewGuardError(ErrorCategoryFatal, component, operation, message)
}
