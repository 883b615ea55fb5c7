package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
)

// WithSetup returns p with prepare run before its first successful run. A
// failing prepare ends the run like any pipeline error, so the supervisor
// tries it again after the restart delay.
func WithSetup(p Pipeline, prepare func(ctx context.Context) error) Pipeline {
	return &setupPipeline{Pipeline: p, prepare: prepare}
}

type setupPipeline struct {
	Pipeline
	prepare  func(ctx context.Context) error
	prepared atomic.Bool
}

// Run implements Pipeline.
func (s *setupPipeline) Run(ctx context.Context) error {
	if !s.prepared.Load() {
		if err := s.prepare(ctx); err != nil {
			return fmt.Errorf("setup of %s failed: %w", s.Name(), err)
		}
		s.prepared.Store(true)
	}
	return s.Pipeline.Run(ctx)
}
