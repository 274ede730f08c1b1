package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BlackboardReader gives tools read access to prior step outputs.
type BlackboardReader interface {
	Get(key string) (any, bool)
}

// ExecContext carries per-run execution state into a tool invocation.
type ExecContext struct {
	RunID      uuid.UUID
	Step       string
	Logger     zerolog.Logger
	Blackboard BlackboardReader
}

// Tool is the uniform contract every computation unit implements. Input is
// a plain JSON-like map; the output must be JSON-serializable. An error
// return is treated as a tool failure by the plan runner.
type Tool interface {
	Name() string
	Run(ctx context.Context, input map[string]any, ec *ExecContext) (any, error)
}

// Registry holds tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name is a programming error
// and fails loudly.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// MustRegister registers tools and panics on duplicates. Intended for
// wiring at startup.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			panic(err)
		}
	}
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
