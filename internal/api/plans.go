package api

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/coinlens/coinlens/internal/planner"
)

// DefaultPlanName is the plan used when a request names none.
const DefaultPlanName = "advisory"

// DefaultAdvisoryPlan is the built-in history -> prices -> risk ->
// health/alerts/rebalance -> narrative pipeline. Risk, health, alerts and
// rebalance only depend on the steps they reference, so the runner executes
// the independent ones concurrently.
func DefaultAdvisoryPlan() *planner.Plan {
	return &planner.Plan{
		Name: DefaultPlanName,
		Steps: []planner.Step{
			{
				Name: "history",
				Tool: "market.history",
				Input: map[string]any{
					"symbols":    "$symbols",
					"windowDays": "$windowDays",
				},
			},
			{
				Name:  "prices",
				Tool:  "market.prices",
				Input: map[string]any{"symbols": "$symbols"},
			},
			{
				Name: "risk",
				Tool: "risk.metrics",
				Input: map[string]any{
					"history":    "$history",
					"weights":    "$weights",
					"benchmark":  "$benchmark",
					"windowDays": "$windowDays",
				},
			},
			{
				Name: "health",
				Tool: "health.score",
				Input: map[string]any{
					"risk":    "$risk",
					"weights": "$weights",
					"history": "$history",
					"pnlPct":  "$pnlPct",
				},
			},
			{
				Name: "alerts",
				Tool: "alerts.evaluate",
				Input: map[string]any{
					"risk":    "$risk",
					"weights": "$weights",
					"policy":  "$policy",
				},
			},
			{
				Name: "rebalance",
				Tool: "rebalance.plan",
				Input: map[string]any{
					"history":     "$history",
					"holdings":    "$holdings",
					"prices":      "$prices",
					"constraints": "$constraints",
				},
			},
			{
				Name:      "narrative",
				Tool:      "narrative.summarize",
				OnFailure: planner.FailSkip,
				Input: map[string]any{
					"risk":      "$risk",
					"health":    "$health",
					"alerts":    "$alerts",
					"rebalance": "$rebalance",
				},
			},
		},
	}
}

// LoadPlans collects the built-in plan and any YAML plans found in dir.
// File plans override the built-in one on name collision so operators can
// tune the pipeline without a rebuild.
func LoadPlans(dir string) map[string]*planner.Plan {
	plans := map[string]*planner.Plan{DefaultPlanName: DefaultAdvisoryPlan()}

	if dir == "" {
		return plans
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Plans directory not readable, using built-in plans")
		return plans
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		plan, err := planner.LoadPlan(filepath.Join(dir, name))
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("Skipping invalid plan file")
			continue
		}
		plans[plan.Name] = plan
		log.Info().Str("plan", plan.Name).Str("file", name).Msg("Plan loaded")
	}
	return plans
}
