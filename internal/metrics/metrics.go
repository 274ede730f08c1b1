package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels. Label values outside
// these sets must be normalized before use.
const (
	// Plan run outcomes
	RunCompleted = "completed"
	RunAborted   = "aborted"

	// Components that may substitute neutral defaults for real data
	ComponentRisk      = "risk"
	ComponentHealth    = "health"
	ComponentRebalance = "rebalance"
)

var (
	// PlanRuns counts plan executions by plan name and outcome.
	PlanRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinlens_plan_runs_total",
			Help: "Total plan executions by plan and outcome",
		},
		[]string{"plan", "outcome"},
	)

	// StepDuration observes per-step execution time by tool.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coinlens_step_duration_seconds",
			Help:    "Plan step execution time by tool",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// StepFailures counts tool failures by tool name.
	StepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinlens_step_failures_total",
			Help: "Total step failures by tool",
		},
		[]string{"tool"},
	)

	// DefaultSubstitutions counts every time a neutral default stands in
	// for a value that could not be computed from real data. Callers can
	// use this to tell "computed" results from "defaulted" ones.
	DefaultSubstitutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinlens_default_substitutions_total",
			Help: "Neutral defaults substituted for uncomputable values",
		},
		[]string{"component", "field"},
	)

	// CacheHits counts market data cache hits (fresh or stale).
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coinlens_market_cache_hits_total",
			Help: "Market data cache hits",
		},
	)

	// CacheMisses counts market data cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coinlens_market_cache_misses_total",
			Help: "Market data cache misses",
		},
	)

	// ProviderRequests counts upstream market data requests by provider
	// and result.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinlens_provider_requests_total",
			Help: "Upstream market data requests by provider and result",
		},
		[]string{"provider", "result"},
	)

	// AlertsFired counts threshold alerts by code.
	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinlens_alerts_fired_total",
			Help: "Threshold alerts fired by code",
		},
		[]string{"code"},
	)
)

// RecordDefault increments the default-substitution counter for a component
// field pair.
func RecordDefault(component, field string) {
	DefaultSubstitutions.WithLabelValues(component, field).Inc()
}
