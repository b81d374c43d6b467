package main

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ducminhle1904/capital-guard/internal/notifications"
	"github.com/ducminhle1904/capital-guard/internal/reconcile"
	"github.com/ducminhle1904/capital-guard/internal/risk"
)

// positionAuditor runs the position rules over each exchange snapshot and
// alerts once per symbol and rule until the finding clears.
type positionAuditor struct {
	pipeline interface {
		AuditPositions([]risk.Position) []risk.AuditFinding
	}
	notifier notifications.Notifier
	logger   *zap.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

func newPositionAuditor(pipeline *risk.Pipeline, notifier notifications.Notifier, logger *zap.Logger) *positionAuditor {
	return &positionAuditor{
		pipeline: pipeline,
		notifier: notifier,
		logger:   logger.Named("audit"),
		active:   make(map[string]struct{}),
	}
}

// Audit returns the findings that were not already active
func (a *positionAuditor) Audit(positions []risk.Position) []risk.AuditFinding {
	findings := a.pipeline.AuditPositions(positions)

	a.mu.Lock()
	current := make(map[string]struct{}, len(findings))
	var fresh []risk.AuditFinding
	for _, finding := range findings {
		key := finding.Symbol + "/" + finding.Rule
		current[key] = struct{}{}
		if _, seen := a.active[key]; !seen {
			fresh = append(fresh, finding)
		}
	}
	a.active = current
	a.mu.Unlock()

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Symbol < fresh[j].Symbol })
	for _, finding := range fresh {
		a.logger.Warn("position audit failed",
			zap.String("symbol", finding.Symbol),
			zap.String("rule", finding.Rule),
			zap.String("reason", finding.Reason))
		message := fmt.Sprintf("POSITION AUDIT\nSymbol: %s\nRule: %s\nReason: %s", finding.Symbol, finding.Rule, finding.Reason)
		if err := a.notifier.SendAlert(notifications.LevelWarning, message); err != nil {
			a.logger.Error("failed to send audit alert", zap.Error(err))
		}
	}
	return fresh
}

// wireRealizedPnL feeds realized profit and loss from the trade tape into the
// daily limit rule. It reports false when no daily limit rule is enabled.
func wireRealizedPnL(tape *reconcile.TradeTape, rules []risk.Rule, logger *zap.Logger) bool {
	for _, rule := range rules {
		daily, ok := rule.(*risk.DailyLimitRule)
		if !ok {
			continue
		}
		tape.OnRealized(func(fill reconcile.Fill, pnl float64) {
			daily.RecordPnL(pnl)
			logger.Debug("realized pnl recorded",
				zap.String("symbol", fill.Symbol),
				zap.String("fill_id", fill.ID),
				zap.Float64("pnl", pnl))
		})
		return true
	}
	return false
}
