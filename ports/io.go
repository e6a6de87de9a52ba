package ports

import (
	"context"

	"glyphscore/domain/core"
	"glyphscore/domain/features"
	"glyphscore/domain/rules"
	"glyphscore/domain/run"
	"glyphscore/domain/stats"
	"glyphscore/domain/tokens"
)

// RuleSource loads a validated rule set at the load boundary
type RuleSource interface {
	LoadRuleSet(ctx context.Context) (*rules.RuleSet, error)
}

// CorpusSource loads a fully materialized corpus at the load boundary
type CorpusSource interface {
	LoadCorpus(ctx context.Context) (*tokens.Corpus, error)
}

// ArtifactSink receives the output tables of a batch step.
// A step that fails must not call the sink for its own outputs.
type ArtifactSink interface {
	WriteManifest(ctx context.Context, manifest *run.Manifest) error
	WriteVectors(ctx context.Context, runID core.RunID, table string, vectors []features.StructuralVector) error
	WriteAssignments(ctx context.Context, runID core.RunID, assignments []features.ClusterAssignment) error
	WriteTestRecords(ctx context.Context, runID core.RunID, records []stats.TestRecord) error
	WriteIntervals(ctx context.Context, runID core.RunID, intervals []stats.IntervalRecord) error
	Close() error
}
