package rebalance

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/coinlens/coinlens/internal/market"
	"github.com/coinlens/coinlens/internal/metrics"
)

const (
	// minSymbols is the smallest portfolio worth rebalancing.
	minSymbols = 3

	// driftBand is the weight drift below which no trade is generated.
	driftBand = 0.02
)

// Side is the direction of a rebalancing trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Action is one suggested trade.
type Action struct {
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	ValueUSD float64 `json:"valueUSD"`
}

// Plan holds risk-parity target weights and the bounded trade list that
// moves the portfolio toward them.
type Plan struct {
	TargetWeights map[string]float64 `json:"targetWeights"`
	Actions       []Action           `json:"actions"`
	Notes         []string           `json:"notes"`
}

// Constraints bound trade generation.
type Constraints struct {
	MinTradeUSD    float64 `json:"minTradeUSD" mapstructure:"min_trade_usd"`
	MaxTurnoverPct float64 `json:"maxTurnoverPct" mapstructure:"max_turnover_pct"`
}

// Optimize computes inverse-variance target weights and the trades needed
// to reach them. holdings maps symbols to asset amounts; prices to USD spot
// prices. Portfolios under 3 symbols return an explanatory empty plan.
func Optimize(history market.History, holdings map[string]float64, prices map[string]float64, constraints Constraints) *Plan {
	symbols := sortedSymbols(holdings)
	if len(symbols) < minSymbols {
		return &Plan{
			TargetWeights: map[string]float64{},
			Actions:       []Action{},
			Notes:         []string{fmt.Sprintf("Insufficient assets for rebalancing (minimum %d required)", minSymbols)},
		}
	}

	targets, equalWeighted := targetWeights(history, symbols)
	plan := &Plan{
		TargetWeights: targets,
		Actions:       []Action{},
		Notes:         []string{},
	}
	if equalWeighted {
		plan.Notes = append(plan.Notes, "Equal weighting applied: insufficient return history for risk parity")
		metrics.RecordDefault(metrics.ComponentRebalance, "targetWeights")
	}

	portfolioValue := 0.0
	for _, symbol := range symbols {
		if price, ok := prices[symbol]; ok {
			portfolioValue += holdings[symbol] * price
		}
	}
	if portfolioValue <= 0 {
		plan.Notes = append(plan.Notes, "No priced holdings, skipping trade generation")
		return plan
	}

	for _, symbol := range symbols {
		price, ok := prices[symbol]
		if !ok {
			plan.Notes = append(plan.Notes, fmt.Sprintf("No price for %s, skipped", symbol))
			continue
		}

		currentWeight := holdings[symbol] * price / portfolioValue
		diff := plan.TargetWeights[symbol] - currentWeight
		tradeValue := math.Abs(diff) * portfolioValue
		if math.Abs(diff) <= driftBand || tradeValue <= constraints.MinTradeUSD {
			continue
		}

		side := SideSell
		if diff > 0 {
			side = SideBuy
		}
		plan.Actions = append(plan.Actions, Action{
			Symbol:   symbol,
			Side:     side,
			ValueUSD: math.Round(tradeValue),
		})
	}

	applyTurnoverCap(plan, portfolioValue, constraints)

	log.Debug().
		Int("symbols", len(symbols)).
		Int("actions", len(plan.Actions)).
		Float64("portfolio_value", portfolioValue).
		Msg("Rebalance plan computed")

	return plan
}

// targetWeights computes inverse-variance ("risk parity") weights from each
// asset's return history. equalWeighted reports the fallback to equal
// weights taken when any asset has fewer than 2 return observations.
func targetWeights(history market.History, symbols []string) (weights map[string]float64, equalWeighted bool) {
	variances, ok := assetVariances(history, symbols)
	weights = make(map[string]float64, len(symbols))
	if !ok {
		equal := 1.0 / float64(len(symbols))
		for _, symbol := range symbols {
			weights[symbol] = equal
		}
		return weights, true
	}

	total := 0.0
	inverse := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		inv := 1.0 / variances[symbol]
		inverse[symbol] = inv
		total += inv
	}
	for _, symbol := range symbols {
		weights[symbol] = inverse[symbol] / total
	}
	return weights, false
}

// assetVariances returns per-asset return variances over the aligned
// history. ok is false when any asset lacks 2 return observations or has a
// non-positive or non-finite variance.
func assetVariances(history market.History, symbols []string) (map[string]float64, bool) {
	aligned := history.Align()
	variances := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		series, ok := aligned[symbol]
		if !ok || series.Len() < 3 {
			// Fewer than 3 prices means fewer than 2 returns.
			return nil, false
		}

		returns := make([]float64, 0, series.Len()-1)
		for i := 1; i < len(series.Prices); i++ {
			prev := series.Prices[i-1]
			if prev == 0 {
				return nil, false
			}
			returns = append(returns, (series.Prices[i]-prev)/prev)
		}

		v := varianceOf(returns)
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		variances[symbol] = v
	}
	return variances, true
}

// applyTurnoverCap scales every action down proportionally when total trade
// value exceeds the turnover budget.
func applyTurnoverCap(plan *Plan, portfolioValue float64, constraints Constraints) {
	if constraints.MaxTurnoverPct <= 0 || len(plan.Actions) == 0 {
		return
	}

	totalTrade := 0.0
	for _, action := range plan.Actions {
		totalTrade += math.Abs(action.ValueUSD)
	}
	turnoverPct := totalTrade / portfolioValue * 100
	if turnoverPct <= constraints.MaxTurnoverPct {
		return
	}

	scale := constraints.MaxTurnoverPct / turnoverPct
	for i := range plan.Actions {
		plan.Actions[i].ValueUSD = math.Round(plan.Actions[i].ValueUSD * scale)
	}
	plan.Notes = append(plan.Notes, fmt.Sprintf(
		"Actions scaled to %.1f%% turnover (proposed %.1f%% exceeded the cap)",
		constraints.MaxTurnoverPct, turnoverPct))
}

func varianceOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return sum / float64(len(values))
}

func sortedSymbols(holdings map[string]float64) []string {
	symbols := make([]string, 0, len(holdings))
	for symbol := range holdings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
