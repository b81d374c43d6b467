package notifications

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ducminhle1904/capital-guard/internal/safety"
)

// BreakerAlerts returns a breaker listener that alerts on every trip and
// recovery. A re-trip with an unchanged code is not alerted again. Delivery
// runs in its own goroutine so a slow transport never delays the breaker.
func BreakerAlerts(notifier Notifier, logger *zap.Logger) func(safety.BreakerEvent) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(event safety.BreakerEvent) {
		if event.Retrip() {
			logger.Debug("breaker re-tripped, alert suppressed",
				zap.String("code", event.Code),
				zap.String("reason", event.Reason))
			return
		}
		level, message := FormatBreakerEvent(event)
		go func() {
			if err := notifier.SendAlert(level, message); err != nil {
				logger.Error("failed to send breaker alert", zap.Error(err))
			}
		}()
	}
}

// FormatBreakerEvent renders a breaker transition as an alert
func FormatBreakerEvent(event safety.BreakerEvent) (string, string) {
	if event.To == safety.StateBroken {
		return LevelError, fmt.Sprintf("TRADING HALTED\nCode: %s\nReason: %s\nAt: %s",
			event.Code, event.Reason, event.At.UTC().Format(time.RFC3339))
	}
	return LevelSuccess, fmt.Sprintf("Trading resumed by %s at %s",
		event.Operator, event.At.UTC().Format(time.RFC3339))
}
