package notifications

import "go.uber.org/zap"

// Alert levels
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelSuccess = "success"
)

// Notifier defines the interface for notification services
type Notifier interface {
	// SendAlert sends an alert with the specified level and message
	SendAlert(level, message string) error
}

// LogNotifier writes alerts to the log when no chat transport is configured
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("alerts")}
}

func (n *LogNotifier) SendAlert(level, message string) error {
	switch level {
	case LevelError:
		n.logger.Error(message)
	case LevelWarning:
		n.logger.Warn(message)
	default:
		n.logger.Info(message, zap.String("level", level))
	}
	return nil
}

// Multi fans an alert out to several notifiers and returns the first error
type Multi []Notifier

func (m Multi) SendAlert(level, message string) error {
	var firstErr error
	for _, n := range m {
		if err := n.SendAlert(level, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
