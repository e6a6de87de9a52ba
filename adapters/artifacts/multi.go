package artifacts

import (
	"context"
	"errors"

	"glyphscore/domain/core"
	"glyphscore/domain/features"
	"glyphscore/domain/run"
	"glyphscore/domain/stats"
	"glyphscore/ports"
)

// MultiSink fans every write out to several sinks in order, stopping at the
// first failure
type MultiSink []ports.ArtifactSink

var _ ports.ArtifactSink = MultiSink(nil)

func (m MultiSink) WriteManifest(ctx context.Context, manifest *run.Manifest) error {
	for _, s := range m {
		if err := s.WriteManifest(ctx, manifest); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) WriteVectors(ctx context.Context, runID core.RunID, table string, vectors []features.StructuralVector) error {
	for _, s := range m {
		if err := s.WriteVectors(ctx, runID, table, vectors); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) WriteAssignments(ctx context.Context, runID core.RunID, assignments []features.ClusterAssignment) error {
	for _, s := range m {
		if err := s.WriteAssignments(ctx, runID, assignments); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) WriteTestRecords(ctx context.Context, runID core.RunID, records []stats.TestRecord) error {
	for _, s := range m {
		if err := s.WriteTestRecords(ctx, runID, records); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) WriteIntervals(ctx context.Context, runID core.RunID, intervals []stats.IntervalRecord) error {
	for _, s := range m {
		if err := s.WriteIntervals(ctx, runID, intervals); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
