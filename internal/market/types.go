package market

import "context"

// Series is one asset's daily price history, oldest first. Timestamps are
// Unix milliseconds.
type Series struct {
	Timestamps []int64   `json:"timestamps"`
	Prices     []float64 `json:"prices"`
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Prices) }

// Tail returns the last n observations, or the whole series when shorter.
func (s Series) Tail(n int) Series {
	if n >= s.Len() {
		return s
	}
	return Series{
		Timestamps: s.Timestamps[len(s.Timestamps)-n:],
		Prices:     s.Prices[len(s.Prices)-n:],
	}
}

// History maps symbols to their price series.
type History map[string]Series

// Align truncates every series to the trailing window of the shortest one,
// so per-day observations line up across assets. Providers return daily
// series ending today, which makes suffix alignment sufficient.
func (h History) Align() History {
	shortest := -1
	for _, series := range h {
		if shortest < 0 || series.Len() < shortest {
			shortest = series.Len()
		}
	}
	if shortest <= 0 {
		return History{}
	}

	aligned := make(History, len(h))
	for symbol, series := range h {
		aligned[symbol] = series.Tail(shortest)
	}
	return aligned
}

// HistoryProvider supplies daily price history for a set of symbols.
type HistoryProvider interface {
	History(ctx context.Context, symbols []string, windowDays int) (History, error)
}

// PriceProvider supplies current spot prices for a set of symbols.
type PriceProvider interface {
	Prices(ctx context.Context, symbols []string) (map[string]float64, error)
}
