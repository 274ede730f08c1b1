// Package narrative turns a finished analysis into free-text insights. It
// is strictly additive: a missing or failing summarizer never blocks the
// numeric results.
package narrative

import "context"

// Summarizer produces insight strings from the collected analysis results.
type Summarizer interface {
	Summarize(ctx context.Context, results map[string]any) ([]string, error)
}

// Noop is the summarizer used when narrative generation is disabled.
type Noop struct{}

func (Noop) Summarize(ctx context.Context, results map[string]any) ([]string, error) {
	return nil, nil
}
