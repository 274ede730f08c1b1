package planner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinlens/coinlens/internal/metrics"
	"github.com/coinlens/coinlens/internal/tools"
)

// ToolFailure wraps an unexpected error from a tool invocation. Under the
// abort policy it propagates to the caller and the run yields no partial
// blackboard.
type ToolFailure struct {
	Step string
	Tool string
	Err  error
}

func (e *ToolFailure) Error() string {
	return fmt.Sprintf("step %q (tool %s) failed: %v", e.Step, e.Tool, e.Err)
}

func (e *ToolFailure) Unwrap() error { return e.Err }

// Event is one progress notification. Every step emits "starting" and then
// one of "completed", "failed" or "skipped".
type Event struct {
	RunID     uuid.UUID `json:"runId"`
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives progress events as they happen, for live reporting.
type EventSink func(Event)

// StepResult is the per-step outcome of a run.
type StepResult struct {
	Output   any           `json:"output,omitempty"`
	Err      error         `json:"-"`
	Skipped  bool          `json:"skipped,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// Result is a finished plan execution.
type Result struct {
	RunID      uuid.UUID             `json:"runId"`
	Plan       string                `json:"plan"`
	Blackboard map[string]any        `json:"blackboard"`
	Events     []Event               `json:"events"`
	Steps      map[string]StepResult `json:"steps"`
}

// Runner executes plans against a tool registry. Steps run as soon as their
// dependencies are satisfied, up to the configured parallelism; the
// blackboard write of every step happens-before any dependent read.
type Runner struct {
	registry    *tools.Registry
	parallelism int
	logger      zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithParallelism bounds how many steps may run concurrently. 1 reproduces
// strictly sequential execution.
func WithParallelism(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// NewRunner creates a plan runner over the registry.
func NewRunner(registry *tools.Registry, opts ...Option) *Runner {
	r := &Runner{
		registry:    registry,
		parallelism: 4,
		logger:      log.With().Str("component", "planner").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs the plan against a fresh blackboard seeded with initial.
// Progress events go to sink (may be nil) as they happen and are also
// collected into the result. A step failing under the abort policy cancels
// the run: the error is the ToolFailure and no result is returned.
func (r *Runner) Execute(ctx context.Context, plan *Plan, initial map[string]any, sink EventSink) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New()
	logger := r.logger.With().
		Str("plan", plan.Name).
		Str("run_id", runID.String()).
		Logger()

	bb := NewBlackboard(initial)

	var eventMu sync.Mutex
	var events []Event
	emit := func(step, message string) {
		event := Event{RunID: runID, Step: step, Message: message, Timestamp: time.Now()}
		eventMu.Lock()
		events = append(events, event)
		eventMu.Unlock()
		if sink != nil {
			sink(event)
		}
	}

	deps := make([][]string, len(plan.Steps))
	for i := range plan.Steps {
		deps[i] = plan.dependencies(i)
	}

	type completion struct {
		idx    int
		result StepResult
	}
	completions := make(chan completion)
	sem := make(chan struct{}, r.parallelism)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	succeeded := make(map[string]bool, len(plan.Steps))
	failed := make(map[string]bool)
	skipped := make(map[string]bool)
	stepResults := make(map[string]StepResult, len(plan.Steps))
	launched := make([]bool, len(plan.Steps))

	running := 0
	var failure *ToolFailure

	launch := func(i int) {
		launched[i] = true
		running++
		step := plan.Steps[i]
		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()
			completions <- completion{idx: i, result: r.runStep(runCtx, runID, step, bb, emit, logger)}
		}()
	}

	for {
		// Launch every step whose dependencies are all satisfied; cascade
		// skips over steps whose dependencies failed or were skipped.
		// Dependencies always point at earlier indices, so one forward
		// pass settles the cascade.
		for i, step := range plan.Steps {
			if launched[i] || failure != nil {
				continue
			}
			ready := true
			blocked := false
			for _, dep := range deps[i] {
				if !succeeded[dep] {
					ready = false
				}
				if failed[dep] || skipped[dep] {
					blocked = true
				}
			}
			if blocked {
				launched[i] = true
				skipped[step.Name] = true
				stepResults[step.Name] = StepResult{Skipped: true}
				emit(step.Name, "skipped")
				continue
			}
			if ready {
				launch(i)
			}
		}

		if running == 0 {
			break
		}

		c := <-completions
		running--
		step := plan.Steps[c.idx]
		stepResults[step.Name] = c.result

		if c.result.Err != nil {
			failed[step.Name] = true
			if step.OnFailure == FailSkip {
				logger.Warn().
					Err(c.result.Err).
					Str("step", step.Name).
					Msg("Step failed, continuing per failure policy")
				continue
			}
			if failure == nil {
				failure = &ToolFailure{Step: step.Name, Tool: step.Tool, Err: c.result.Err}
				cancel()
			}
			continue
		}

		if err := bb.Set(step.Name, c.result.Output); err != nil {
			if failure == nil {
				failure = &ToolFailure{Step: step.Name, Tool: step.Tool, Err: err}
				cancel()
			}
			continue
		}
		succeeded[step.Name] = true
	}

	if failure != nil {
		metrics.PlanRuns.WithLabelValues(plan.Name, metrics.RunAborted).Inc()
		logger.Error().Err(failure).Msg("Plan aborted")
		return nil, failure
	}

	metrics.PlanRuns.WithLabelValues(plan.Name, metrics.RunCompleted).Inc()
	logger.Info().
		Int("steps", len(plan.Steps)).
		Int("events", len(events)).
		Msg("Plan completed")

	return &Result{
		RunID:      runID,
		Plan:       plan.Name,
		Blackboard: bb.Snapshot(),
		Events:     events,
		Steps:      stepResults,
	}, nil
}

func (r *Runner) runStep(ctx context.Context, runID uuid.UUID, step Step, bb *Blackboard, emit func(step, message string), logger zerolog.Logger) StepResult {
	tool, ok := r.registry.Get(step.Tool)
	if !ok {
		emit(step.Name, "failed")
		return StepResult{Err: fmt.Errorf("unknown tool %q", step.Tool)}
	}

	input, _ := Resolve(ParseTemplate(anyMap(step.Input)), bb.Get).(map[string]any)
	ec := &tools.ExecContext{
		RunID:      runID,
		Step:       step.Name,
		Logger:     logger.With().Str("step", step.Name).Str("tool", step.Tool).Logger(),
		Blackboard: bb,
	}

	emit(step.Name, "starting")
	start := time.Now()

	var output any
	var err error
	attempts := 0
	for attempt := 0; attempt <= step.Retries; attempt++ {
		attempts++
		output, err = invoke(ctx, tool, input, ec)
		if err == nil || ctx.Err() != nil {
			break
		}
		if attempt < step.Retries {
			logger.Warn().
				Err(err).
				Str("step", step.Name).
				Int("attempt", attempts).
				Msg("Step failed, retrying")
		}
	}

	duration := time.Since(start)
	metrics.StepDuration.WithLabelValues(step.Tool).Observe(duration.Seconds())

	if err != nil {
		metrics.StepFailures.WithLabelValues(step.Tool).Inc()
		emit(step.Name, "failed")
		return StepResult{Err: err, Attempts: attempts, Duration: duration}
	}

	emit(step.Name, "completed")
	return StepResult{Output: output, Attempts: attempts, Duration: duration}
}

// invoke calls the tool, converting a panic into an error so one misbehaving
// tool cannot take down the whole process.
func invoke(ctx context.Context, tool tools.Tool, input map[string]any, ec *tools.ExecContext) (output any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool panicked: %v", rec)
		}
	}()
	return tool.Run(ctx, input, ec)
}
