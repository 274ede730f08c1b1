package alerts

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/coinlens/coinlens/internal/metrics"
	"github.com/coinlens/coinlens/internal/risk"
)

// Level is the severity of a threshold alert.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
)

// Code identifies a threshold rule. The taxonomy is fixed.
type Code string

const (
	CodeHighConcentration Code = "HIGH_CONCENTRATION"
	CodeLowStable         Code = "LOW_STABLE"
	CodeHighVol           Code = "HIGH_VOL"
	CodeHighDrawdown      Code = "HIGH_DRAWDOWN"
)

// stableSymbols are the assets counted toward the stablecoin allocation.
var stableSymbols = []string{"USDT", "USDC", "DAI"}

// Alert is one fired threshold rule.
type Alert struct {
	Level   Level  `json:"level"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Policy holds the alert thresholds. Weights are fractions; the percent
// fields compare against percent-valued risk metrics.
type Policy struct {
	MaxWeight         float64 `json:"maxWeight" mapstructure:"max_weight"`
	MinStablePct      float64 `json:"minStablePct" mapstructure:"min_stable_pct"`
	MaxVolPct         float64 `json:"maxVolPct" mapstructure:"max_vol_pct"`
	MaxDrawdownDayPct float64 `json:"maxDrawdownDayPct" mapstructure:"max_drawdown_day_pct"`
}

// Evaluate runs every rule against the current risk metrics and weights.
// Evaluation is stateless: each call is a clean re-evaluation with no
// debouncing or deduplication.
func Evaluate(riskMetrics *risk.Metrics, weights map[string]float64, policy Policy) []Alert {
	fired := make([]Alert, 0, 4)

	if alert, ok := concentrationRule(weights, policy); ok {
		fired = append(fired, alert)
	}
	if alert, ok := stableRule(weights, policy); ok {
		fired = append(fired, alert)
	}
	if riskMetrics != nil {
		if alert, ok := volatilityRule(riskMetrics, policy); ok {
			fired = append(fired, alert)
		}
		if alert, ok := drawdownRule(riskMetrics, policy); ok {
			fired = append(fired, alert)
		}
	}

	for _, alert := range fired {
		metrics.AlertsFired.WithLabelValues(string(alert.Code)).Inc()
		log.Info().
			Str("code", string(alert.Code)).
			Str("level", string(alert.Level)).
			Str("message", alert.Message).
			Msg("Threshold alert fired")
	}

	return fired
}

// EvaluateValues evaluates against absolute holding values (USD) instead of
// fractions by normalizing them into weights first.
func EvaluateValues(riskMetrics *risk.Metrics, values map[string]float64, policy Policy) []Alert {
	return Evaluate(riskMetrics, WeightsFromValues(values), policy)
}

// WeightsFromValues normalizes absolute holding values into fractions.
func WeightsFromValues(values map[string]float64) map[string]float64 {
	total := 0.0
	for _, v := range values {
		if v > 0 {
			total += v
		}
	}
	weights := make(map[string]float64, len(values))
	if total == 0 {
		return weights
	}
	for symbol, v := range values {
		if v > 0 {
			weights[symbol] = v / total
		}
	}
	return weights
}

func concentrationRule(weights map[string]float64, policy Policy) (Alert, bool) {
	maxSymbol := ""
	maxWeight := 0.0
	for symbol, w := range weights {
		if w > maxWeight {
			maxSymbol = symbol
			maxWeight = w
		}
	}
	if maxSymbol == "" || maxWeight <= policy.MaxWeight {
		return Alert{}, false
	}
	return Alert{
		Level: LevelHigh,
		Code:  CodeHighConcentration,
		Message: fmt.Sprintf("%s is %.1f%% of the portfolio, above the %.0f%% limit",
			maxSymbol, maxWeight*100, policy.MaxWeight*100),
	}, true
}

func stableRule(weights map[string]float64, policy Policy) (Alert, bool) {
	stable := 0.0
	for _, symbol := range stableSymbols {
		stable += weights[symbol]
	}
	if stable >= policy.MinStablePct {
		return Alert{}, false
	}
	return Alert{
		Level: LevelMedium,
		Code:  CodeLowStable,
		Message: fmt.Sprintf("Stablecoin allocation is %.1f%%, below the %.0f%% floor",
			stable*100, policy.MinStablePct*100),
	}, true
}

func volatilityRule(riskMetrics *risk.Metrics, policy Policy) (Alert, bool) {
	if riskMetrics.VolPct == nil || *riskMetrics.VolPct <= policy.MaxVolPct {
		return Alert{}, false
	}
	return Alert{
		Level: LevelMedium,
		Code:  CodeHighVol,
		Message: fmt.Sprintf("Annualized volatility is %.1f%%, above the %.0f%% limit",
			*riskMetrics.VolPct, policy.MaxVolPct),
	}, true
}

func drawdownRule(riskMetrics *risk.Metrics, policy Policy) (Alert, bool) {
	dd := math.Abs(riskMetrics.MaxDDPct)
	if dd <= policy.MaxDrawdownDayPct {
		return Alert{}, false
	}
	return Alert{
		Level: LevelHigh,
		Code:  CodeHighDrawdown,
		Message: fmt.Sprintf("Max drawdown is %.1f%%, beyond the %.0f%% tolerance",
			dd, policy.MaxDrawdownDayPct),
	}, true
}
