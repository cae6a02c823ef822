// Package pipeline runs an orchestrator's named stages strictly in order.
// Each stage is logged and recorded as a pair of telemetry events, and the
// first failure stops the run with the stage name attached to the error.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papapumpkin/comet/internal/telemetry"
)

// Stage is one named step of a run.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner executes stages sequentially.
type Runner struct {
	Logger *slog.Logger
	Events *telemetry.Emitter
}

// Run executes stages in order and stops at the first error. Cancellation is
// checked between stages.
func (r Runner) Run(ctx context.Context, stages ...Stage) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
		logger.Debug("stage starting", slog.String("stage", s.Name))
		done := r.Events.Stage(s.Name)
		err := s.Run(ctx)
		done(err)
		if err != nil {
			logger.Debug("stage failed", slog.String("stage", s.Name), slog.String("error", err.Error()))
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return nil
}
