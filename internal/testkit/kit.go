package testkit

import (
	"context"
	"sync"

	"glyphscore/adapters/rng"
	"glyphscore/domain/core"
	"glyphscore/domain/features"
	"glyphscore/domain/rules"
	"glyphscore/domain/run"
	"glyphscore/domain/stats"
	"glyphscore/domain/tokens"
	"glyphscore/ports"
)

// RNGAdapter returns the deterministic stream adapter used in production
func RNGAdapter() ports.RNGPort {
	return rng.NewStreamAdapter()
}

// StaticRuleSource serves a fixed rule set
type StaticRuleSource struct {
	RuleSet *rules.RuleSet
	Err     error
}

// LoadRuleSet returns the configured rule set or error
func (s StaticRuleSource) LoadRuleSet(ctx context.Context) (*rules.RuleSet, error) {
	return s.RuleSet, s.Err
}

// StaticCorpusSource serves a fixed corpus
type StaticCorpusSource struct {
	Corpus *tokens.Corpus
	Err    error
}

// LoadCorpus returns the configured corpus or error
func (s StaticCorpusSource) LoadCorpus(ctx context.Context) (*tokens.Corpus, error) {
	return s.Corpus, s.Err
}

// MemorySink keeps every artifact in memory for assertions
type MemorySink struct {
	mu          sync.Mutex
	Manifests   []*run.Manifest
	Vectors     map[string][]features.StructuralVector
	Assignments []features.ClusterAssignment
	Tests       []stats.TestRecord
	Intervals   []stats.IntervalRecord
	Closed      bool
	// FailOn makes the named write return this error
	FailOn map[string]error
}

var _ ports.ArtifactSink = (*MemorySink)(nil)

// NewMemorySink creates an empty sink
func NewMemorySink() *MemorySink {
	return &MemorySink{Vectors: make(map[string][]features.StructuralVector), FailOn: make(map[string]error)}
}

func (s *MemorySink) WriteManifest(ctx context.Context, m *run.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailOn["manifest"]; err != nil {
		return err
	}
	s.Manifests = append(s.Manifests, m)
	return nil
}

func (s *MemorySink) WriteVectors(ctx context.Context, runID core.RunID, table string, vectors []features.StructuralVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailOn["vectors"]; err != nil {
		return err
	}
	s.Vectors[table] = append(s.Vectors[table], vectors...)
	return nil
}

func (s *MemorySink) WriteAssignments(ctx context.Context, runID core.RunID, assignments []features.ClusterAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailOn["assignments"]; err != nil {
		return err
	}
	s.Assignments = append(s.Assignments, assignments...)
	return nil
}

func (s *MemorySink) WriteTestRecords(ctx context.Context, runID core.RunID, records []stats.TestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailOn["tests"]; err != nil {
		return err
	}
	s.Tests = append(s.Tests, records...)
	return nil
}

func (s *MemorySink) WriteIntervals(ctx context.Context, runID core.RunID, intervals []stats.IntervalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailOn["intervals"]; err != nil {
		return err
	}
	s.Intervals = append(s.Intervals, intervals...)
	return nil
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
