package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinlens/coinlens/internal/market"
)

// makeSeries builds a daily series from a slice of prices.
func makeSeries(prices []float64) market.Series {
	timestamps := make([]int64, len(prices))
	for i := range prices {
		timestamps[i] = int64(i) * 86400000
	}
	return market.Series{Timestamps: timestamps, Prices: prices}
}

// zigzagPrices generates n prices alternating between an up move and a down
// move, so returns have nonzero variance.
func zigzagPrices(start, up, down float64, n int) []float64 {
	prices := make([]float64, n)
	prices[0] = start
	for i := 1; i < n; i++ {
		if i%2 == 1 {
			prices[i] = prices[i-1] * (1 + up)
		} else {
			prices[i] = prices[i-1] * (1 + down)
		}
	}
	return prices
}

func TestDailyReturns(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		expected []float64
	}{
		{"empty", nil, nil},
		{"single point", []float64{100}, nil},
		{"two points up", []float64{100, 110}, []float64{0.10}},
		{"two points down", []float64{100, 90}, []float64{-0.10}},
		{"flat", []float64{100, 100, 100}, []float64{0, 0}},
		{"zero previous price", []float64{0, 50}, []float64{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dailyReturns(tt.prices)
			require.Len(t, got, len(tt.expected))
			for i := range tt.expected {
				assert.InDelta(t, tt.expected[i], got[i], 1e-12)
			}
		})
	}
}

func TestDailyReturns_Length(t *testing.T) {
	// A series of length L yields exactly L-1 returns.
	prices := zigzagPrices(100, 0.02, -0.01, 90)
	returns := dailyReturns(prices)
	assert.Len(t, returns, 89)
}

func TestCompute_NeutralOnDegenerateInput(t *testing.T) {
	tests := []struct {
		name    string
		history market.History
		weights map[string]float64
	}{
		{"empty history", market.History{}, map[string]float64{"BTC": 1}},
		{
			"single price point",
			market.History{"BTC": makeSeries([]float64{50000})},
			map[string]float64{"BTC": 1},
		},
		{
			"weighted symbol missing from history",
			market.History{"BTC": makeSeries(zigzagPrices(50000, 0.02, -0.01, 30))},
			map[string]float64{"BTC": 0.5, "ETH": 0.5},
		},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := engine.Compute(tt.history, tt.weights, "BTC", 90)
			require.NotNil(t, m)

			assert.Nil(t, m.VolPct)
			assert.Equal(t, 0.0, m.Sharpe)
			assert.Equal(t, 1.0, m.BetaBTC)
			assert.NotNil(t, m.Corr)
			assert.Empty(t, m.Corr)
			assert.Contains(t, m.Defaulted, "volPct")
			assert.Contains(t, m.Defaulted, "betaBTC")
		})
	}
}

func TestCompute_FullWindow(t *testing.T) {
	history := market.History{
		"BTC": makeSeries(zigzagPrices(50000, 0.03, -0.01, 91)),
		"ETH": makeSeries(zigzagPrices(3000, 0.02, -0.025, 91)),
		"SOL": makeSeries(zigzagPrices(150, 0.05, -0.03, 91)),
	}
	weights := map[string]float64{"BTC": 0.5, "ETH": 0.3, "SOL": 0.2}

	m := NewEngine().Compute(history, weights, "BTC", 90)
	require.NotNil(t, m)

	assert.Equal(t, 90, m.WindowDays)
	require.NotNil(t, m.VolPct)
	assert.Greater(t, *m.VolPct, 0.0)
	assert.Empty(t, m.Defaulted)

	// Every metric must be finite.
	for _, v := range []float64{*m.VolPct, m.Sharpe, m.Sortino, m.MaxDDPct, m.BetaBTC, m.VaR95Pct, m.CVaR95Pct} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestCompute_BetaFallsBackWithoutBenchmark(t *testing.T) {
	history := market.History{
		"ETH": makeSeries(zigzagPrices(3000, 0.02, -0.01, 40)),
		"SOL": makeSeries(zigzagPrices(150, 0.03, -0.02, 40)),
	}
	weights := map[string]float64{"ETH": 0.6, "SOL": 0.4}

	m := NewEngine().Compute(history, weights, "BTC", 30)
	require.NotNil(t, m)

	assert.Equal(t, 1.0, m.BetaBTC)
	assert.Contains(t, m.Defaulted, "betaBTC")
	require.NotNil(t, m.VolPct)
	assert.Greater(t, *m.VolPct, 0.0)
}

func TestCompute_BetaAgainstBenchmarkItself(t *testing.T) {
	// A portfolio fully invested in the benchmark has beta 1.
	history := market.History{"BTC": makeSeries(zigzagPrices(50000, 0.025, -0.015, 60))}
	weights := map[string]float64{"BTC": 1.0}

	m := NewEngine().Compute(history, weights, "BTC", 60)
	require.NotNil(t, m)
	assert.InDelta(t, 1.0, m.BetaBTC, 0.01)
	assert.Empty(t, m.Defaulted)
}

func TestCompute_CorrelationMatrix(t *testing.T) {
	// ETH's moves mirror BTC's exactly, so their returns are perfectly
	// anti-correlated.
	history := market.History{
		"BTC": makeSeries(zigzagPrices(100, 0.02, -0.02, 50)),
		"ETH": makeSeries(zigzagPrices(100, -0.02, 0.02, 50)),
	}
	weights := map[string]float64{"BTC": 0.5, "ETH": 0.5}

	m := NewEngine().Compute(history, weights, "BTC", 49)
	require.NotNil(t, m)
	require.Len(t, m.Corr, 2)

	assert.Equal(t, 1.0, m.Corr["BTC"]["BTC"])
	assert.Equal(t, 1.0, m.Corr["ETH"]["ETH"])
	assert.InDelta(t, -1.0, m.Corr["BTC"]["ETH"], 0.01)
	// Symmetry.
	assert.InDelta(t, m.Corr["BTC"]["ETH"], m.Corr["ETH"]["BTC"], 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name     string
		returns  []float64
		expected float64
	}{
		{"no returns", nil, 0},
		{"only gains", []float64{0.01, 0.02, 0.03}, 0},
		{"single drop", []float64{-0.10}, -0.10},
		{"recovered drop", []float64{0.10, -0.20, 0.50}, -0.20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, maxDrawdown(tt.returns), 1e-9)
		})
	}
}

func TestHistoricalVaR(t *testing.T) {
	// 20 returns: the cutoff index is int(20*0.05)=1, the second worst
	// return after sorting.
	returns := make([]float64, 20)
	for i := range returns {
		returns[i] = float64(i-10) / 100 // -0.10 .. 0.09
	}

	varValue, cvarValue := historicalVaR(returns)
	assert.InDelta(t, -0.09, varValue, 1e-9)
	assert.InDelta(t, (-0.10-0.09)/2, cvarValue, 1e-9)
}

func TestHistoricalVaR_Empty(t *testing.T) {
	varValue, cvarValue := historicalVaR(nil)
	assert.Equal(t, 0.0, varValue)
	assert.Equal(t, 0.0, cvarValue)
}

func TestSortino_NoDownside(t *testing.T) {
	returns := []float64{0.01, 0.02, 0.015}
	assert.Equal(t, 0.0, sortino(returns, meanOf(returns)))
}

func TestVariance_Population(t *testing.T) {
	// Population variance of {1,2,3,4} is 1.25 (not the sample 5/3).
	assert.InDelta(t, 1.25, variance([]float64{1, 2, 3, 4}), 1e-12)
}
