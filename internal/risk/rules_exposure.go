package risk

// AggregatePositionRule caps total exposure after a buy and the value of any
// single held position.
type AggregatePositionRule struct {
	exposure ExposureSource
}

func NewAggregatePositionRule(exposure ExposureSource) *AggregatePositionRule {
	return &AggregatePositionRule{exposure: exposure}
}

func (r *AggregatePositionRule) Name() string { return "aggregate_position" }

func (r *AggregatePositionRule) Validate(cfg RiskConfig) error {
	if cfg.MaxPositionValue <= 0 {
		return missingThreshold(r.Name(), "MaxPositionValue")
	}
	if r.exposure == nil {
		return missingThreshold(r.Name(), "an exposure source")
	}
	return nil
}

func (r *AggregatePositionRule) CheckOrder(order Order, cfg RiskConfig) error {
	if order.Side != SideBuy {
		return nil
	}
	if r.exposure == nil {
		return ruleFault(r.Name(), "exposure source not configured")
	}
	projected := r.exposure.TotalExposure() + order.Notional()
	if projected > cfg.MaxPositionValue {
		return violate(r.Name(), "total position value %.2f would exceed maximum %.2f", projected, cfg.MaxPositionValue)
	}
	return nil
}

func (r *AggregatePositionRule) CheckPosition(position Position, cfg RiskConfig) error {
	if cfg.MaxSinglePositionValue > 0 && position.Amount() > cfg.MaxSinglePositionValue {
		return violate(r.Name(), "%s position value %.2f exceeds maximum %.2f",
			position.Symbol, position.Amount(), cfg.MaxSinglePositionValue)
	}
	return nil
}

// ConcentrationRule caps the share of the aggregate position budget a single
// symbol may take.
type ConcentrationRule struct {
	exposure ExposureSource
}

func NewConcentrationRule(exposure ExposureSource) *ConcentrationRule {
	return &ConcentrationRule{exposure: exposure}
}

func (r *ConcentrationRule) Name() string { return "concentration" }

func (r *ConcentrationRule) Validate(cfg RiskConfig) error {
	if cfg.MaxConcentrationPct <= 0 || cfg.MaxConcentrationPct > 1 {
		return missingThreshold(r.Name(), "MaxConcentrationPct in (0, 1]")
	}
	if cfg.MaxPositionValue <= 0 {
		return missingThreshold(r.Name(), "MaxPositionValue")
	}
	if r.exposure == nil {
		return missingThreshold(r.Name(), "an exposure source")
	}
	return nil
}

func (r *ConcentrationRule) CheckOrder(order Order, cfg RiskConfig) error {
	if order.Side != SideBuy {
		return nil
	}
	if r.exposure == nil || cfg.MaxPositionValue <= 0 {
		return ruleFault(r.Name(), "concentration rule used without exposure source or MaxPositionValue")
	}
	share := (r.exposure.SymbolExposure(order.Symbol) + order.Notional()) / cfg.MaxPositionValue
	if share > cfg.MaxConcentrationPct {
		return violate(r.Name(), "%s would take %.2f%% of the position budget (max %.2f%%)",
			order.Symbol, share*100, cfg.MaxConcentrationPct*100)
	}
	return nil
}

func (r *ConcentrationRule) CheckPosition(position Position, cfg RiskConfig) error {
	if cfg.MaxPositionValue <= 0 {
		return ruleFault(r.Name(), "MaxPositionValue not configured")
	}
	share := position.Amount() / cfg.MaxPositionValue
	if share > cfg.MaxConcentrationPct {
		return violate(r.Name(), "%s holds %.2f%% of the position budget (max %.2f%%)",
			position.Symbol, share*100, cfg.MaxConcentrationPct*100)
	}
	return nil
}

// StopLossTakeProfitRule flags positions whose unrealized return crossed the
// drawdown or take-profit threshold.
type StopLossTakeProfitRule struct{}

func NewStopLossTakeProfitRule() *StopLossTakeProfitRule { return &StopLossTakeProfitRule{} }

func (r *StopLossTakeProfitRule) Name() string { return "stop_loss_take_profit" }

func (r *StopLossTakeProfitRule) Validate(cfg RiskConfig) error {
	if cfg.MaxDrawdownPct <= 0 && cfg.TakeProfitPct <= 0 {
		return missingThreshold(r.Name(), "MaxDrawdownPct or TakeProfitPct")
	}
	return nil
}

func (r *StopLossTakeProfitRule) CheckOrder(Order, RiskConfig) error { return nil }

func (r *StopLossTakeProfitRule) CheckPosition(position Position, cfg RiskConfig) error {
	if position.AveragePrice <= 0 || position.CurrentPrice <= 0 {
		return nil
	}
	ret := (position.CurrentPrice - position.AveragePrice) / position.AveragePrice
	if position.Side == PositionShort {
		ret = -ret
	}
	if cfg.MaxDrawdownPct > 0 && ret <= -cfg.MaxDrawdownPct {
		return violate(r.Name(), "%s stop-loss: return %.2f%% breaches -%.2f%%",
			position.Symbol, ret*100, cfg.MaxDrawdownPct*100)
	}
	if cfg.TakeProfitPct > 0 && ret >= cfg.TakeProfitPct {
		return violate(r.Name(), "%s take-profit: return %.2f%% reached %.2f%%",
			position.Symbol, ret*100, cfg.TakeProfitPct*100)
	}
	return nil
}
