package app

import (
	"context"
	"sync"
	"time"

	"glyphscore/internal"
	apperrors "glyphscore/internal/errors"
)

// StageName identifies one step of a batch run
type StageName string

const (
	StageLoad      StageName = "load"
	StageScore     StageName = "score"
	StageAggregate StageName = "aggregate"
	StageAnalyze   StageName = "analyze"
	StageEmit      StageName = "emit"
)

// StageTiming records how long a stage ran
type StageTiming struct {
	Name       StageName `json:"name"`
	DurationMs int64     `json:"duration_ms"`
	Err        string    `json:"error,omitempty"`
}

// StageRunner executes named stages in order, timing and logging each.
// A failed stage stops the run; nothing after it executes.
type StageRunner struct {
	logger *internal.Logger

	mu      sync.Mutex
	timings []StageTiming
}

// NewStageRunner creates a new stage runner
func NewStageRunner(logger *internal.Logger) *StageRunner {
	return &StageRunner{logger: logger.With("stages")}
}

// Run executes one stage
func (r *StageRunner) Run(ctx context.Context, name StageName, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrapf(err, "stage %s not started", name)
	}

	start := time.Now()
	err := fn(ctx)
	timing := StageTiming{Name: name, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		timing.Err = err.Error()
	}

	r.mu.Lock()
	r.timings = append(r.timings, timing)
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("stage %s failed after %dms: %v", name, timing.DurationMs, err)
		return apperrors.Wrapf(err, "stage %s failed", name)
	}
	r.logger.Info("stage %s completed in %dms", name, timing.DurationMs)
	return nil
}

// Timings returns the recorded stage timings in execution order
func (r *StageRunner) Timings() []StageTiming {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StageTiming(nil), r.timings...)
}
