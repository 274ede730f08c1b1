package tools

import (
	"context"

	"github.com/coinlens/coinlens/internal/narrative"
)

// NarrativeTool runs the optional summarizer as "narrative.summarize".
// Input: any subset of the finished analysis keyed however the plan likes.
// Failures degrade to an empty insight list; the numeric results of the run
// are never blocked on narrative generation.
type NarrativeTool struct {
	Summarizer narrative.Summarizer
}

func (t *NarrativeTool) Name() string { return "narrative.summarize" }

func (t *NarrativeTool) Run(ctx context.Context, input map[string]any, ec *ExecContext) (any, error) {
	if t.Summarizer == nil {
		return []string{}, nil
	}

	insights, err := t.Summarizer.Summarize(ctx, input)
	if err != nil {
		ec.Logger.Warn().Err(err).Msg("Narrative generation failed, continuing without insights")
		return []string{}, nil
	}
	if insights == nil {
		insights = []string{}
	}
	return insights, nil
}
