package planner

import (
	"fmt"
	"sync"
)

// Blackboard is the run-scoped shared store of step outputs. It is
// append-only for the lifetime of one plan execution, owned exclusively by
// that execution, and discarded afterwards. The mutex exists because
// independent steps may complete concurrently; within one run every write
// happens-before any dependent read through the runner's scheduling.
type Blackboard struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewBlackboard creates a blackboard seeded with the initial entries
// supplied by the caller (symbols, weights, policy and the like).
func NewBlackboard(initial map[string]any) *Blackboard {
	values := make(map[string]any, len(initial)+8)
	for k, v := range initial {
		values[k] = v
	}
	return &Blackboard{values: values}
}

// Get returns the entry under key.
func (b *Blackboard) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok
}

// Set appends an entry. Overwriting is a plan authoring error.
func (b *Blackboard) Set(key string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.values[key]; exists {
		return fmt.Errorf("blackboard key %q already set", key)
	}
	b.values[key] = value
	return nil
}

// Snapshot copies the current contents. Used to hand results to the caller
// once the run completes.
func (b *Blackboard) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snapshot := make(map[string]any, len(b.values))
	for k, v := range b.values {
		snapshot[k] = v
	}
	return snapshot
}
