package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinlens/coinlens/internal/tools"
)

// stubTool is a scripted tool for runner tests.
type stubTool struct {
	name string
	run  func(ctx context.Context, input map[string]any, ec *tools.ExecContext) (any, error)
}

func (s *stubTool) Name() string { return s.name }

func (s *stubTool) Run(ctx context.Context, input map[string]any, ec *tools.ExecContext) (any, error) {
	return s.run(ctx, input, ec)
}

// recorder tracks which steps ran, in completion order.
type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

func newTestRegistry(t *testing.T, stubs ...*stubTool) *tools.Registry {
	t.Helper()
	registry := tools.NewRegistry()
	for _, stub := range stubs {
		require.NoError(t, registry.Register(stub))
	}
	return registry
}

func constTool(name string, output any) *stubTool {
	return &stubTool{name: name, run: func(context.Context, map[string]any, *tools.ExecContext) (any, error) {
		return output, nil
	}}
}

func failTool(name string, err error) *stubTool {
	return &stubTool{name: name, run: func(context.Context, map[string]any, *tools.ExecContext) (any, error) {
		return nil, err
	}}
}

func TestExecute_SequentialFlow(t *testing.T) {
	registry := newTestRegistry(t,
		constTool("produce", map[string]any{"value": 7.0}),
		&stubTool{name: "consume", run: func(_ context.Context, input map[string]any, _ *tools.ExecContext) (any, error) {
			v, _ := input["upstream"].(float64)
			return v * 2, nil
		}},
	)

	plan := &Plan{
		Name: "pair",
		Steps: []Step{
			{Name: "first", Tool: "produce", Input: map[string]any{}},
			{Name: "second", Tool: "consume", Input: map[string]any{"upstream": "$first.value"}},
		},
	}

	result, err := NewRunner(registry).Execute(context.Background(), plan, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "pair", result.Plan)
	assert.Equal(t, 14.0, result.Blackboard["second"])
	assert.Equal(t, 1, result.Steps["second"].Attempts)
	assert.False(t, result.Steps["second"].Skipped)
}

func TestExecute_EventsPerStep(t *testing.T) {
	registry := newTestRegistry(t, constTool("noop", "ok"))
	plan := &Plan{
		Name: "events",
		Steps: []Step{
			{Name: "only", Tool: "noop", Input: map[string]any{}},
		},
	}

	var sunk []Event
	var mu sync.Mutex
	sink := func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		sunk = append(sunk, e)
	}

	result, err := NewRunner(registry).Execute(context.Background(), plan, nil, sink)
	require.NoError(t, err)

	messages := make([]string, 0, len(result.Events))
	for _, e := range result.Events {
		assert.Equal(t, result.RunID, e.RunID)
		assert.Equal(t, "only", e.Step)
		assert.False(t, e.Timestamp.IsZero())
		messages = append(messages, e.Message)
	}
	assert.Equal(t, []string{"starting", "completed"}, messages)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, sunk, len(result.Events))
}

func TestExecute_InitialBlackboardVisible(t *testing.T) {
	registry := newTestRegistry(t, &stubTool{
		name: "echo",
		run: func(_ context.Context, input map[string]any, _ *tools.ExecContext) (any, error) {
			return input["symbols"], nil
		},
	})
	plan := &Plan{
		Name:  "seeded",
		Steps: []Step{{Name: "echo", Tool: "echo", Input: map[string]any{"symbols": "$symbols"}}},
	}

	initial := map[string]any{"symbols": []any{"BTC", "ETH"}}
	result, err := NewRunner(registry).Execute(context.Background(), plan, initial, nil)
	require.NoError(t, err)

	assert.Equal(t, []any{"BTC", "ETH"}, result.Blackboard["echo"])
	assert.Equal(t, []any{"BTC", "ETH"}, result.Blackboard["symbols"])
}

func TestExecute_DependencyOrdering(t *testing.T) {
	rec := &recorder{}
	tool := func(name string) *stubTool {
		return &stubTool{name: name, run: func(context.Context, map[string]any, *tools.ExecContext) (any, error) {
			rec.add(name)
			return name, nil
		}}
	}
	registry := newTestRegistry(t, tool("a"), tool("b"), tool("c"))

	plan := &Plan{
		Name: "diamond",
		Steps: []Step{
			{Name: "base", Tool: "a", Input: map[string]any{}},
			{Name: "left", Tool: "b", Input: map[string]any{"in": "$base"}},
			{Name: "right", Tool: "c", Input: map[string]any{"in": "$base"}},
		},
	}

	result, err := NewRunner(registry, WithParallelism(2)).Execute(context.Background(), plan, nil, nil)
	require.NoError(t, err)
	require.Len(t, result.Steps, 3)

	order := rec.seen()
	require.Len(t, order, 3)
	assert.Equal(t, "a", order[0]) // base strictly first, left/right in any order
}

func TestExecute_AbortOnFailure(t *testing.T) {
	boom := errors.New("upstream exploded")
	registry := newTestRegistry(t,
		failTool("explode", boom),
		constTool("never", "unreachable"),
	)

	plan := &Plan{
		Name: "abort",
		Steps: []Step{
			{Name: "doomed", Tool: "explode", Input: map[string]any{}},
			{Name: "after", Tool: "never", Input: map[string]any{"in": "$doomed"}},
		},
	}

	result, err := NewRunner(registry).Execute(context.Background(), plan, nil, nil)
	assert.Nil(t, result)
	require.Error(t, err)

	var failure *ToolFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "doomed", failure.Step)
	assert.Equal(t, "explode", failure.Tool)
	assert.ErrorIs(t, err, boom)
}

func TestExecute_SkipPolicyCascades(t *testing.T) {
	registry := newTestRegistry(t,
		failTool("flaky", errors.New("no data")),
		constTool("noop", "ok"),
	)

	plan := &Plan{
		Name: "skip",
		Steps: []Step{
			{Name: "optional", Tool: "flaky", OnFailure: FailSkip, Input: map[string]any{}},
			{Name: "dependent", Tool: "noop", Input: map[string]any{"in": "$optional"}},
			{Name: "independent", Tool: "noop", Input: map[string]any{"in": "$seed"}},
		},
	}

	result, err := NewRunner(registry).Execute(context.Background(), plan, map[string]any{"seed": 1}, nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Error(t, result.Steps["optional"].Err)
	assert.True(t, result.Steps["dependent"].Skipped)
	assert.Equal(t, "ok", result.Blackboard["independent"])

	_, present := result.Blackboard["optional"]
	assert.False(t, present)
	_, present = result.Blackboard["dependent"]
	assert.False(t, present)
}

func TestExecute_RetrySucceedsWithinBudget(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	registry := newTestRegistry(t, &stubTool{
		name: "flaky",
		run: func(context.Context, map[string]any, *tools.ExecContext) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls < 3 {
				return nil, fmt.Errorf("transient %d", calls)
			}
			return "recovered", nil
		},
	})

	plan := &Plan{
		Name:  "retry",
		Steps: []Step{{Name: "try", Tool: "flaky", Retries: 2, Input: map[string]any{}}},
	}

	result, err := NewRunner(registry).Execute(context.Background(), plan, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "recovered", result.Blackboard["try"])
	assert.Equal(t, 3, result.Steps["try"].Attempts)
}

func TestExecute_RetryBudgetExhausted(t *testing.T) {
	registry := newTestRegistry(t, failTool("always", errors.New("hard down")))

	plan := &Plan{
		Name:  "exhausted",
		Steps: []Step{{Name: "try", Tool: "always", Retries: 1, Input: map[string]any{}}},
	}

	result, err := NewRunner(registry).Execute(context.Background(), plan, nil, nil)
	assert.Nil(t, result)
	require.Error(t, err)
}

func TestExecute_UnknownTool(t *testing.T) {
	registry := tools.NewRegistry()
	plan := &Plan{
		Name:  "missing",
		Steps: []Step{{Name: "ghost", Tool: "does.not.exist", Input: map[string]any{}}},
	}

	result, err := NewRunner(registry).Execute(context.Background(), plan, nil, nil)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does.not.exist")
}

func TestExecute_PanickingToolBecomesError(t *testing.T) {
	registry := newTestRegistry(t, &stubTool{
		name: "panics",
		run: func(context.Context, map[string]any, *tools.ExecContext) (any, error) {
			panic("boom")
		},
	})

	plan := &Plan{
		Name:  "panic",
		Steps: []Step{{Name: "bad", Tool: "panics", Input: map[string]any{}}},
	}

	result, err := NewRunner(registry).Execute(context.Background(), plan, nil, nil)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestExecute_StepNameCollidingWithInitialKey(t *testing.T) {
	registry := newTestRegistry(t, constTool("noop", "ok"))
	plan := &Plan{
		Name:  "collision",
		Steps: []Step{{Name: "symbols", Tool: "noop", Input: map[string]any{}}},
	}

	result, err := NewRunner(registry).Execute(context.Background(), plan, map[string]any{"symbols": []any{"BTC"}}, nil)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already set")
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		plan    Plan
		wantErr string
	}{
		{"empty name", Plan{Steps: []Step{{Name: "a", Tool: "t"}}}, "plan name is required"},
		{"no steps", Plan{Name: "p"}, "no steps"},
		{"unnamed step", Plan{Name: "p", Steps: []Step{{Tool: "t"}}}, "has no name"},
		{"no tool", Plan{Name: "p", Steps: []Step{{Name: "a"}}}, "names no tool"},
		{
			"duplicate names",
			Plan{Name: "p", Steps: []Step{{Name: "a", Tool: "t"}, {Name: "a", Tool: "t"}}},
			"duplicate step name",
		},
		{
			"forward dependency",
			Plan{Name: "p", Steps: []Step{{Name: "a", Tool: "t", DependsOn: []string{"b"}}, {Name: "b", Tool: "t"}}},
			"unknown or later step",
		},
		{
			"bad failure policy",
			Plan{Name: "p", Steps: []Step{{Name: "a", Tool: "t", OnFailure: "retry-forever"}}},
			"unknown failure policy",
		},
		{
			"negative retries",
			Plan{Name: "p", Steps: []Step{{Name: "a", Tool: "t", Retries: -1}}},
			"negative retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPlanDependencies(t *testing.T) {
	plan := &Plan{
		Name: "deps",
		Steps: []Step{
			{Name: "a", Tool: "t", Input: map[string]any{"s": "$symbols"}},
			{Name: "b", Tool: "t", Input: map[string]any{"s": "$symbols"}},
			{Name: "c", Tool: "t", Input: map[string]any{"x": "$a", "y": "$b"}},
			{Name: "d", Tool: "t", Input: map[string]any{}},
			{Name: "e", Tool: "t", DependsOn: []string{"a"}, Input: map[string]any{}},
		},
	}
	require.NoError(t, plan.Validate())

	// a and b reference only initial keys, so they are independent roots.
	assert.Empty(t, plan.dependencies(0))
	assert.Empty(t, plan.dependencies(1))
	assert.ElementsMatch(t, []string{"a", "b"}, plan.dependencies(2))
	// No references and no declarations: fall back to the previous step.
	assert.Equal(t, []string{"c"}, plan.dependencies(3))
	assert.Equal(t, []string{"a"}, plan.dependencies(4))
}

func TestBlackboard(t *testing.T) {
	bb := NewBlackboard(map[string]any{"seed": 1})

	v, ok := bb.Get("seed")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	require.NoError(t, bb.Set("out", "x"))
	assert.Error(t, bb.Set("out", "y"), "overwrite must be rejected")
	assert.Error(t, bb.Set("seed", 2))

	snapshot := bb.Snapshot()
	assert.Len(t, snapshot, 2)
	snapshot["out"] = "mutated"
	v, _ = bb.Get("out")
	assert.Equal(t, "x", v, "snapshot must be a copy")
}
