package risk

import (
	"errors"
	"fmt"
	"time"
)

// Violation is the expected rejection of an order or position by a rule or by
// the virtual position check.
type Violation struct {
	Rule   string
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s", v.Rule, v.Reason)
}

// BreakerOpenError is returned for every check while trading is halted
type BreakerOpenError struct {
	Code      string
	Reason    string
	TrippedAt time.Time
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("trading halted [%s] since %s: %s", e.Code, e.TrippedAt.Format(time.RFC3339), e.Reason)
}

// ErrDuplicateReservation is returned when an order id is reserved twice
var ErrDuplicateReservation = errors.New("order already has a reservation")

func violate(rule, format string, args ...interface{}) *Violation {
	return &Violation{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// IsViolation reports whether err is a rule violation
func IsViolation(err error) bool {
	var v *Violation
	return errors.As(err, &v)
}

// AsViolation returns the violation carried by err, if any
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// IsBreakerOpen reports whether err means trading is halted
func IsBreakerOpen(err error) bool {
	var b *BreakerOpenError
	return errors.As(err, &b)
}
