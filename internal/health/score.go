package health

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/coinlens/coinlens/internal/metrics"
)

// momentumWindow is the minimum number of price points for the momentum
// heuristic; shorter series fall back to a neutral 50.
const momentumWindow = 12

// Scores holds the three 0-100 portfolio scores.
type Scores struct {
	Health          int `json:"health"`
	Diversification int `json:"diversification"`
	Momentum        int `json:"momentum"`

	// Defaulted names scores that are neutral stand-ins rather than
	// computed from real data.
	Defaulted []string `json:"defaulted,omitempty"`
}

// Input carries everything the scorer blends.
type Input struct {
	Sharpe   float64
	PnLPct   float64
	MaxDDPct float64 // <= 0
	VolPct   float64
	Weights  map[string]float64

	// ReferencePrices is the price series of one reference asset used by
	// the momentum heuristic, oldest first.
	ReferencePrices []float64
}

// Score blends risk metrics, P&L, concentration and momentum into the three
// portfolio scores.
func Score(input Input) Scores {
	sharpeScore := clamp(input.Sharpe/2*100, 0, 100)
	pnlScore := clamp(50+input.PnLPct, 0, 100)
	ddScore := clamp(100+input.MaxDDPct, 0, 100)
	volScore := clamp(100-input.VolPct, 0, 100)

	scores := Scores{
		Health:          int(math.Round(0.4*sharpeScore + 0.25*pnlScore + 0.2*ddScore + 0.15*volScore)),
		Diversification: diversification(input.Weights),
	}
	scores.Momentum, scores.Defaulted = momentum(input.ReferencePrices)

	log.Debug().
		Int("health", scores.Health).
		Int("diversification", scores.Diversification).
		Int("momentum", scores.Momentum).
		Msg("Health scores computed")

	return scores
}

// diversification maps the Herfindahl-Hirschman index of the weights onto
// 0-100, higher meaning more diversified.
func diversification(weights map[string]float64) int {
	hhi := 0.0
	for _, w := range weights {
		hhi += w * w
	}
	return int(math.Round((1 - hhi) * 100))
}

// momentum compares the current price against 12 and 2 observations ago.
// Series shorter than 12 points score a neutral 50, flagged as defaulted.
func momentum(prices []float64) (int, []string) {
	if len(prices) < momentumWindow {
		metrics.RecordDefault(metrics.ComponentHealth, "momentum")
		return 50, []string{"momentum"}
	}

	now := prices[len(prices)-1]
	p12 := prices[len(prices)-momentumWindow]
	p2 := prices[len(prices)-2]
	if p12 == 0 || p2 == 0 {
		metrics.RecordDefault(metrics.ComponentHealth, "momentum")
		return 50, []string{"momentum"}
	}

	mom := now/p12 - now/p2
	return int(clamp(math.Round(50+400*mom), 0, 100)), nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
