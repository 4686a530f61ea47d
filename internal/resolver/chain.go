package resolver

import (
	"context"
	"time"
)

// ResolveStats counts what one stage looked at.
type ResolveStats struct {
	Attempted int
	Resolved  int
	Skipped   int
}

// stage is one pass of the resolver over the shared state.
type stage interface {
	Name() string
	Run(ctx context.Context, st *state) (ResolveStats, error)
}

// StageResult records the outcome of one stage.
type StageResult struct {
	Stage         string
	Stats         ResolveStats
	StaticBefore  int
	StaticAfter   int
	ExternalAfter int
	Duration      time.Duration
	Err           error
}

type chain struct {
	stages []stage
}

func newChain(stages ...stage) *chain {
	return &chain{stages: stages}
}

// run executes the stages in order. A stage error or a cancelled context
// stops the chain; stages already run keep their output.
func (c *chain) run(ctx context.Context, st *state) []StageResult {
	var out []StageResult
	for _, s := range c.stages {
		if ctx.Err() != nil {
			st.cancelled = true
			break
		}
		before := len(st.static)
		start := time.Now()
		stats, err := s.Run(ctx, st)
		out = append(out, StageResult{
			Stage:         s.Name(),
			Stats:         stats,
			StaticBefore:  before,
			StaticAfter:   len(st.static),
			ExternalAfter: len(st.external),
			Duration:      time.Since(start),
			Err:           err,
		})
		if err != nil || st.cancelled {
			break
		}
	}
	return out
}
