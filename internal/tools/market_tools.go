package tools

import (
	"context"

	"github.com/coinlens/coinlens/internal/market"
)

// HistoryTool exposes a HistoryProvider to plans as "market.history".
// Input: {symbols: [..], windowDays: n}. Output: market.History.
type HistoryTool struct {
	Provider market.HistoryProvider
}

func (t *HistoryTool) Name() string { return "market.history" }

func (t *HistoryTool) Run(ctx context.Context, input map[string]any, ec *ExecContext) (any, error) {
	symbols, ok := coerceStringSlice(input["symbols"])
	if !ok || len(symbols) == 0 {
		return nil, missingInput(t.Name(), "symbols")
	}
	windowDays := coerceInt(input["windowDays"], 90)

	history, err := t.Provider.History(ctx, symbols, windowDays)
	if err != nil {
		return nil, err
	}

	ec.Logger.Debug().
		Int("symbols", len(symbols)).
		Int("window_days", windowDays).
		Msg("History fetched")
	return history, nil
}

// PricesTool exposes a PriceProvider to plans as "market.prices".
// Input: {symbols: [..]}. Output: map[symbol]float64; symbols without a
// resolvable price are absent.
type PricesTool struct {
	Provider market.PriceProvider
}

func (t *PricesTool) Name() string { return "market.prices" }

func (t *PricesTool) Run(ctx context.Context, input map[string]any, ec *ExecContext) (any, error) {
	symbols, ok := coerceStringSlice(input["symbols"])
	if !ok || len(symbols) == 0 {
		return nil, missingInput(t.Name(), "symbols")
	}

	prices, err := t.Provider.Prices(ctx, symbols)
	if err != nil {
		return nil, err
	}

	ec.Logger.Debug().
		Int("requested", len(symbols)).
		Int("resolved", len(prices)).
		Msg("Prices fetched")
	return prices, nil
}
