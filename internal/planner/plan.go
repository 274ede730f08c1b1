package planner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FailurePolicy controls what the runner does when a step fails.
type FailurePolicy string

const (
	// FailAbort cancels the run; the caller receives no partial
	// blackboard. This is the default.
	FailAbort FailurePolicy = "abort"

	// FailSkip records the failure and continues with every step that
	// does not depend on the failed one.
	FailSkip FailurePolicy = "skip"
)

// Step is one unit of a plan: a named tool invocation with a templated
// input.
type Step struct {
	Name      string         `yaml:"name" json:"name"`
	Tool      string         `yaml:"tool" json:"tool"`
	Input     map[string]any `yaml:"input" json:"input"`
	DependsOn []string       `yaml:"depends_on,omitempty" json:"dependsOn,omitempty"`
	OnFailure FailurePolicy  `yaml:"on_failure,omitempty" json:"onFailure,omitempty"`
	Retries   int            `yaml:"retries,omitempty" json:"retries,omitempty"`
}

// Plan is an ordered set of steps. Order is the authoring order; actual
// execution follows the dependency graph, with declaration order as the
// implicit dependency for steps that declare nothing.
type Plan struct {
	Name  string `yaml:"name" json:"name"`
	Steps []Step `yaml:"steps" json:"steps"`
}

// LoadPlan reads and validates a plan from a YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return &plan, nil
}

// Validate checks the structural invariants: unique step names, tools
// named, and dependencies that point at earlier steps only. Because every
// dependency must precede its dependent in authoring order, a valid plan is
// acyclic by construction.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan name is required")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}

	declared := make(map[string]int, len(p.Steps))
	for i, step := range p.Steps {
		if step.Name == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		if step.Tool == "" {
			return fmt.Errorf("step %q names no tool", step.Name)
		}
		if _, dup := declared[step.Name]; dup {
			return fmt.Errorf("duplicate step name %q", step.Name)
		}
		switch step.OnFailure {
		case "", FailAbort, FailSkip:
		default:
			return fmt.Errorf("step %q has unknown failure policy %q", step.Name, step.OnFailure)
		}
		if step.Retries < 0 {
			return fmt.Errorf("step %q has negative retries", step.Name)
		}

		for _, dep := range step.DependsOn {
			at, ok := declared[dep]
			if !ok {
				return fmt.Errorf("step %q depends on unknown or later step %q", step.Name, dep)
			}
			if at >= i {
				return fmt.Errorf("step %q depends on later step %q", step.Name, dep)
			}
		}
		declared[step.Name] = i
	}
	return nil
}

// dependencies returns the effective dependency set of step i: declared
// DependsOn entries plus every template reference that names an earlier
// step. A step that declares nothing and references nothing falls back to
// the previous step, which keeps plans written for strictly sequential
// execution behaving exactly as authored.
func (p *Plan) dependencies(i int) []string {
	declared := make(map[string]int, len(p.Steps))
	for j, step := range p.Steps {
		declared[step.Name] = j
	}

	deps := make(map[string]bool)
	for _, dep := range p.Steps[i].DependsOn {
		deps[dep] = true
	}
	refs := References(ParseTemplate(anyMap(p.Steps[i].Input)))
	for _, ref := range refs {
		if at, ok := declared[ref]; ok && at < i {
			deps[ref] = true
		}
	}

	if len(p.Steps[i].DependsOn) == 0 && len(refs) == 0 && i > 0 {
		deps[p.Steps[i-1].Name] = true
	}

	names := make([]string, 0, len(deps))
	for dep := range deps {
		names = append(names, dep)
	}
	return names
}

// anyMap widens a map for template parsing.
func anyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
