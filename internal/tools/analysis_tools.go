package tools

import (
	"context"

	"github.com/coinlens/coinlens/internal/alerts"
	"github.com/coinlens/coinlens/internal/health"
	"github.com/coinlens/coinlens/internal/market"
	"github.com/coinlens/coinlens/internal/rebalance"
	"github.com/coinlens/coinlens/internal/risk"
)

// RiskTool runs the risk metrics engine as "risk.metrics".
// Input: {history, weights, benchmark?, windowDays?}.
type RiskTool struct {
	Engine *risk.Engine
}

func (t *RiskTool) Name() string { return "risk.metrics" }

func (t *RiskTool) Run(ctx context.Context, input map[string]any, ec *ExecContext) (any, error) {
	history, ok := coerceHistory(input["history"])
	if !ok {
		return nil, missingInput(t.Name(), "history")
	}
	weights, ok := coerceFloatMap(input["weights"])
	if !ok {
		return nil, missingInput(t.Name(), "weights")
	}
	benchmark, _ := coerceString(input["benchmark"])
	windowDays := coerceInt(input["windowDays"], 90)

	return t.Engine.Compute(history, weights, benchmark, windowDays), nil
}

// HealthTool runs the health scoring engine as "health.score".
// Input: {risk, weights, history, pnlPct?, reference?}. The momentum
// reference asset defaults to the heaviest-weighted symbol in the history.
type HealthTool struct{}

func (t *HealthTool) Name() string { return "health.score" }

func (t *HealthTool) Run(ctx context.Context, input map[string]any, ec *ExecContext) (any, error) {
	riskMetrics, ok := coerceRiskMetrics(input["risk"])
	if !ok {
		return nil, missingInput(t.Name(), "risk")
	}
	weights, ok := coerceFloatMap(input["weights"])
	if !ok {
		return nil, missingInput(t.Name(), "weights")
	}
	history, _ := coerceHistory(input["history"])
	pnlPct, _ := coerceFloat(input["pnlPct"])

	reference, _ := coerceString(input["reference"])
	if reference == "" {
		reference = heaviest(weights, history)
	}

	volPct := 0.0
	if riskMetrics.VolPct != nil {
		volPct = *riskMetrics.VolPct
	}

	return health.Score(health.Input{
		Sharpe:          riskMetrics.Sharpe,
		PnLPct:          pnlPct,
		MaxDDPct:        riskMetrics.MaxDDPct,
		VolPct:          volPct,
		Weights:         weights,
		ReferencePrices: history[reference].Prices,
	}), nil
}

func heaviest(weights map[string]float64, history market.History) string {
	best := ""
	bestWeight := -1.0
	for symbol, w := range weights {
		if _, ok := history[symbol]; !ok {
			continue
		}
		if w > bestWeight {
			best = symbol
			bestWeight = w
		}
	}
	return best
}

// AlertsTool runs the alert rule engine as "alerts.evaluate" and hands any
// fired alerts to the dispatcher. Input: {risk, weights | values, policy}.
type AlertsTool struct {
	Dispatcher *alerts.Dispatcher
}

func (t *AlertsTool) Name() string { return "alerts.evaluate" }

func (t *AlertsTool) Run(ctx context.Context, input map[string]any, ec *ExecContext) (any, error) {
	riskMetrics, _ := coerceRiskMetrics(input["risk"])
	policy, ok := coercePolicy(input["policy"])
	if !ok {
		return nil, missingInput(t.Name(), "policy")
	}

	weights, ok := coerceFloatMap(input["weights"])
	if !ok {
		values, vok := coerceFloatMap(input["values"])
		if !vok {
			return nil, missingInput(t.Name(), "weights")
		}
		weights = alerts.WeightsFromValues(values)
	}

	fired := alerts.Evaluate(riskMetrics, weights, policy)
	if t.Dispatcher != nil {
		t.Dispatcher.Dispatch(ctx, fired)
	}
	return fired, nil
}

// RebalanceTool runs the rebalance optimizer as "rebalance.plan".
// Input: {history, holdings, prices, constraints}.
type RebalanceTool struct{}

func (t *RebalanceTool) Name() string { return "rebalance.plan" }

func (t *RebalanceTool) Run(ctx context.Context, input map[string]any, ec *ExecContext) (any, error) {
	history, ok := coerceHistory(input["history"])
	if !ok {
		return nil, missingInput(t.Name(), "history")
	}
	holdings, ok := coerceFloatMap(input["holdings"])
	if !ok {
		return nil, missingInput(t.Name(), "holdings")
	}
	prices, ok := coerceFloatMap(input["prices"])
	if !ok {
		return nil, missingInput(t.Name(), "prices")
	}
	constraints, _ := coerceConstraints(input["constraints"])

	return rebalance.Optimize(history, holdings, prices, constraints), nil
}
