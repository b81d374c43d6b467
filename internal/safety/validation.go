package safety

import (
	"fmt"
	"math"
	"strings"
)

// ValidationResult represents the result of a validation check
type ValidationResult struct {
	Valid   bool
	Message string
	Code    string
}

// Validator provides defensive validation of numeric and identifier inputs
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

func invalid(code, format string, args ...interface{}) ValidationResult {
	return ValidationResult{Valid: false, Message: fmt.Sprintf(format, args...), Code: code}
}

// ValidatePrice validates a price value for trading
func (v *Validator) ValidatePrice(price float64, symbol string) ValidationResult {
	if math.IsNaN(price) {
		return invalid("INVALID_PRICE_NAN", "invalid price for %s: price is NaN", symbol)
	}
	if math.IsInf(price, 0) {
		return invalid("INVALID_PRICE_INF", "invalid price for %s: price is infinite", symbol)
	}
	if price <= 0 {
		return invalid("INVALID_PRICE_NEGATIVE", "invalid price %.8f for %s: price must be positive", price, symbol)
	}
	return ValidationResult{Valid: true}
}

// ValidateQuantity validates a quantity value for trading
func (v *Validator) ValidateQuantity(quantity float64, symbol string) ValidationResult {
	if math.IsNaN(quantity) {
		return invalid("INVALID_QUANTITY_NAN", "invalid quantity for %s: quantity is NaN", symbol)
	}
	if math.IsInf(quantity, 0) {
		return invalid("INVALID_QUANTITY_INF", "invalid quantity for %s: quantity is infinite", symbol)
	}
	if quantity <= 0 {
		return invalid("INVALID_QUANTITY_NEGATIVE", "invalid quantity %.8f for %s: quantity must be positive", quantity, symbol)
	}
	return ValidationResult{Valid: true}
}

// ValidateSymbol validates a trading symbol
func (v *Validator) ValidateSymbol(symbol string) ValidationResult {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return invalid("SYMBOL_EMPTY", "symbol cannot be empty")
	}
	if len(symbol) > 32 {
		return invalid("SYMBOL_TOO_LONG", "symbol '%s' too long: maximum 32 characters allowed", symbol)
	}
	return ValidationResult{Valid: true}
}

// ValidateOrderID validates an order identifier
func (v *Validator) ValidateOrderID(orderID string) ValidationResult {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return invalid("ORDER_ID_EMPTY", "order ID cannot be empty")
	}
	if len(orderID) > 100 {
		return invalid("ORDER_ID_TOO_LONG", "order ID '%s' too long: maximum 100 characters allowed", orderID)
	}
	return ValidationResult{Valid: true}
}

// ValidateFinite reports whether value is a usable number
func (v *Validator) ValidateFinite(value float64, fieldName string) ValidationResult {
	if math.IsNaN(value) {
		return invalid("VALUE_NAN", "%s is NaN", fieldName)
	}
	if math.IsInf(value, 0) {
		return invalid("VALUE_INF", "%s is infinite", fieldName)
	}
	return ValidationResult{Valid: true}
}

// ValidatePercentageRange validates a percentage is within expected bounds
func (v *Validator) ValidatePercentageRange(percentage float64, min, max float64, context string) ValidationResult {
	if math.IsNaN(percentage) {
		return invalid("PERCENTAGE_NAN", "%s percentage is NaN", context)
	}
	if percentage < min {
		return invalid("PERCENTAGE_BELOW_MIN", "%s percentage %.4f below minimum %.4f", context, percentage, min)
	}
	if percentage > max {
		return invalid("PERCENTAGE_ABOVE_MAX", "%s percentage %.4f above maximum %.4f", context, percentage, max)
	}
	return ValidationResult{Valid: true}
}
