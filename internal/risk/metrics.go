package risk

import (
	"math"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/coinlens/coinlens/internal/market"
	"github.com/coinlens/coinlens/internal/metrics"
)

// DefaultBenchmark is the symbol used for beta when none is configured.
const DefaultBenchmark = "BTC"

// stdevFloor prevents division by zero in ratio metrics.
const stdevFloor = 1e-9

// annualization assumes daily observations.
const tradingDays = 252.0

// Metrics holds portfolio risk metrics over one window. Percentage fields
// are rounded to two decimals; everything upstream works at full precision.
type Metrics struct {
	WindowDays int                           `json:"windowDays"`
	VolPct     *float64                      `json:"volPct"`
	Sharpe     float64                       `json:"sharpe"`
	Sortino    float64                       `json:"sortino"`
	MaxDDPct   float64                       `json:"maxDDPct"`
	BetaBTC    float64                       `json:"betaBTC"`
	VaR95Pct   float64                       `json:"var95Pct"`
	CVaR95Pct  float64                       `json:"cvar95Pct"`
	Corr       map[string]map[string]float64 `json:"corr"`

	// Defaulted names every field whose value is a neutral stand-in
	// rather than a computation over real data.
	Defaulted []string `json:"defaulted,omitempty"`
}

// Engine computes portfolio risk metrics from aligned price histories.
type Engine struct{}

// NewEngine creates a risk metrics engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Compute derives risk metrics for the weighted portfolio described by
// history and weights. benchmark defaults to BTC; beta falls back to 1.0
// when the benchmark series is absent. Degenerate inputs (any required
// series shorter than 2 aligned points) produce a neutral result, never
// NaN or Inf.
func (e *Engine) Compute(history market.History, weights map[string]float64, benchmark string, windowDays int) *Metrics {
	if benchmark == "" {
		benchmark = DefaultBenchmark
	}

	aligned := history.Align()
	if degenerate(aligned, weights) {
		log.Warn().
			Int("window_days", windowDays).
			Msg("Insufficient aligned history, returning neutral risk metrics")
		return neutralMetrics(windowDays)
	}

	assetReturns := make(map[string][]float64, len(aligned))
	for symbol, series := range aligned {
		assetReturns[symbol] = dailyReturns(series.Prices)
	}

	portfolio := portfolioReturns(assetReturns, weights)
	m := &Metrics{WindowDays: windowDays}

	mean := meanOf(portfolio)
	sd := stdev(portfolio)

	vol := round2(sd * math.Sqrt(tradingDays) * 100)
	m.VolPct = &vol
	m.Sharpe = round2(mean / math.Max(sd, stdevFloor) * math.Sqrt(tradingDays))
	m.Sortino = round2(sortino(portfolio, mean))
	m.MaxDDPct = round2(maxDrawdown(portfolio) * 100)

	if bench, ok := assetReturns[benchmark]; ok && variance(bench) > 0 {
		m.BetaBTC = round2(covariance(portfolio, bench) / variance(bench))
	} else {
		m.BetaBTC = 1.0
		m.Defaulted = append(m.Defaulted, "betaBTC")
		metrics.RecordDefault(metrics.ComponentRisk, "betaBTC")
	}

	varPct, cvarPct := historicalVaR(portfolio)
	m.VaR95Pct = round2(varPct * 100)
	m.CVaR95Pct = round2(cvarPct * 100)

	m.Corr = correlationMatrix(assetReturns)

	log.Debug().
		Int("window_days", windowDays).
		Int("symbols", len(aligned)).
		Float64("vol_pct", vol).
		Float64("sharpe", m.Sharpe).
		Float64("max_dd_pct", m.MaxDDPct).
		Msg("Risk metrics computed")

	return m
}

// degenerate reports whether any weighted symbol lacks the two aligned
// price points needed to form a single return.
func degenerate(aligned market.History, weights map[string]float64) bool {
	if len(aligned) == 0 {
		return true
	}
	for symbol, weight := range weights {
		if weight <= 0 {
			continue
		}
		series, ok := aligned[symbol]
		if !ok || series.Len() < 2 {
			return true
		}
	}
	for _, series := range aligned {
		if series.Len() < 2 {
			return true
		}
	}
	return false
}

func neutralMetrics(windowDays int) *Metrics {
	fields := []string{"volPct", "sharpe", "sortino", "maxDDPct", "betaBTC", "var95Pct", "cvar95Pct", "corr"}
	for _, field := range fields {
		metrics.RecordDefault(metrics.ComponentRisk, field)
	}
	return &Metrics{
		WindowDays: windowDays,
		VolPct:     nil,
		Sharpe:     0,
		Sortino:    0,
		MaxDDPct:   0,
		BetaBTC:    1,
		VaR95Pct:   0,
		CVaR95Pct:  0,
		Corr:       map[string]map[string]float64{},
		Defaulted:  fields,
	}
}

// dailyReturns computes simple returns; a series of length L yields L-1
// returns.
func dailyReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (prices[i]-prev)/prev)
	}
	return returns
}

func portfolioReturns(assetReturns map[string][]float64, weights map[string]float64) []float64 {
	n := 0
	for _, r := range assetReturns {
		if n == 0 || len(r) < n {
			n = len(r)
		}
	}

	portfolio := make([]float64, n)
	for symbol, weight := range weights {
		returns, ok := assetReturns[symbol]
		if !ok {
			continue
		}
		for i := 0; i < n; i++ {
			portfolio[i] += weight * returns[i]
		}
	}
	return portfolio
}

func sortino(returns []float64, mean float64) float64 {
	var downSq float64
	var downs int
	for _, r := range returns {
		if r < 0 {
			downSq += r * r
			downs++
		}
	}
	if downs == 0 {
		return 0
	}
	downside := math.Sqrt(tradingDays * downSq / float64(downs))
	if downside < stdevFloor {
		return 0
	}
	return mean * tradingDays / downside
}

// maxDrawdown tracks the cumulative product of (1+r) against its running
// peak and returns the most negative excursion (a value <= 0).
func maxDrawdown(returns []float64) float64 {
	cumulative := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > peak {
			peak = cumulative
		}
		if peak > 0 {
			dd := (cumulative - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// historicalVaR returns the empirical 95% VaR and CVaR of the return
// distribution: the 5th-percentile return and the mean of everything at or
// below it.
func historicalVaR(returns []float64) (varValue, cvarValue float64) {
	if len(returns) == 0 {
		return 0, 0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	slices.Sort(sorted)

	index := int(float64(len(sorted)) * 0.05)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	varValue = sorted[index]

	var sum float64
	for i := 0; i <= index; i++ {
		sum += sorted[i]
	}
	cvarValue = sum / float64(index+1)
	return varValue, cvarValue
}

func correlationMatrix(assetReturns map[string][]float64) map[string]map[string]float64 {
	matrix := make(map[string]map[string]float64, len(assetReturns))
	for a, ra := range assetReturns {
		matrix[a] = make(map[string]float64, len(assetReturns))
		for b, rb := range assetReturns {
			if a == b {
				matrix[a][b] = 1.0
				continue
			}
			denom := math.Max(stdev(ra), stdevFloor) * math.Max(stdev(rb), stdevFloor)
			matrix[a][b] = round2(covariance(ra, rb) / denom)
		}
	}
	return matrix
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// variance is the population variance; the same normalization is used in
// covariance so ratios like beta and correlation stay consistent.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := meanOf(values)
	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return sum / float64(len(values))
}

func stdev(values []float64) float64 {
	return math.Sqrt(variance(values))
}

func covariance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	meanA := meanOf(a[:n])
	meanB := meanOf(b[:n])
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += (a[i] - meanA) * (b[i] - meanB)
	}
	return sum / float64(n)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
