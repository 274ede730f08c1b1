package tools

import (
	"encoding/json"
	"fmt"

	"github.com/coinlens/coinlens/internal/alerts"
	"github.com/coinlens/coinlens/internal/market"
	"github.com/coinlens/coinlens/internal/rebalance"
	"github.com/coinlens/coinlens/internal/risk"
)

// Tool inputs arrive as JSON-like maps whose values may be either plain
// decoded JSON or the typed outputs of earlier steps. The coercions below
// accept both, normalizing through JSON when the types differ.

func coerceFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceInt(v any, fallback int) int {
	if f, ok := coerceFloat(v); ok {
		return int(f)
	}
	return fallback
}

func coerceString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func coerceStringSlice(v any) ([]string, bool) {
	switch value := v.(type) {
	case []string:
		return value, true
	case []any:
		out := make([]string, 0, len(value))
		for _, elem := range value {
			s, ok := elem.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func coerceFloatMap(v any) (map[string]float64, bool) {
	switch value := v.(type) {
	case map[string]float64:
		return value, true
	case map[string]any:
		out := make(map[string]float64, len(value))
		for k, elem := range value {
			f, ok := coerceFloat(elem)
			if !ok {
				return nil, false
			}
			out[k] = f
		}
		return out, true
	default:
		return nil, false
	}
}

func coerceHistory(v any) (market.History, bool) {
	if history, ok := v.(market.History); ok {
		return history, true
	}
	var history market.History
	if reencode(v, &history) {
		return history, true
	}
	return nil, false
}

func coerceRiskMetrics(v any) (*risk.Metrics, bool) {
	if m, ok := v.(*risk.Metrics); ok {
		return m, true
	}
	var m risk.Metrics
	if reencode(v, &m) {
		return &m, true
	}
	return nil, false
}

func coercePolicy(v any) (alerts.Policy, bool) {
	if p, ok := v.(alerts.Policy); ok {
		return p, true
	}
	var p alerts.Policy
	if reencode(v, &p) {
		return p, true
	}
	return alerts.Policy{}, false
}

func coerceConstraints(v any) (rebalance.Constraints, bool) {
	if c, ok := v.(rebalance.Constraints); ok {
		return c, true
	}
	var c rebalance.Constraints
	if reencode(v, &c) {
		return c, true
	}
	return rebalance.Constraints{}, false
}

// reencode round-trips v through JSON into target. It is how generic
// template data becomes typed input without a hand-written mapper per tool.
func reencode(v any, target any) bool {
	if v == nil {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, target) == nil
}

func missingInput(tool, field string) error {
	return fmt.Errorf("%s: missing or invalid input %q", tool, field)
}
