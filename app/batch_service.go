package app

import (
	"context"
	"fmt"

	"glyphscore/domain/core"
	"glyphscore/domain/features"
	"glyphscore/domain/rules"
	"glyphscore/domain/run"
	"glyphscore/domain/stats"
	"glyphscore/domain/tokens"
	"glyphscore/internal"
	"glyphscore/internal/aggregate"
	"glyphscore/internal/cluster"
	"glyphscore/internal/config"
	"glyphscore/internal/scoring"
	"glyphscore/internal/significance"
	"glyphscore/ports"

	"golang.org/x/sync/errgroup"
)

// BatchService runs one batch step: score, aggregate, then cluster and
// significance tests side by side
type BatchService struct {
	rules  ports.RuleSource
	corpus ports.CorpusSource
	sink   ports.ArtifactSink
	rng    ports.RNGPort
	cfg    *config.Config
	logger *internal.Logger
}

// BatchRequest selects what a run computes
type BatchRequest struct {
	// ScoreOnly stops after the structural vectors are written
	ScoreOnly bool
	// GroupBy overrides the configured grouping when set
	GroupBy   string
}

// BatchResult is everything a run produced, as written to the sink
type BatchResult struct {
	Manifest     *run.Manifest                   `json:"manifest"`
	Vectors      []features.StructuralVector     `json:"vectors"`
	Cluster      *cluster.Result                 `json:"cluster,omitempty"`
	Association  *significance.ContingencyResult `json:"association,omitempty"`
	Tests        []stats.TestRecord              `json:"tests,omitempty"`
	Intervals    []stats.IntervalRecord          `json:"intervals,omitempty"`
	RuleCoverage map[core.RuleID]int             `json:"rule_coverage"`
	Stages       []StageTiming                   `json:"stages"`
}

// NewBatchService wires a batch service
func NewBatchService(ruleSource ports.RuleSource, corpusSource ports.CorpusSource, sink ports.ArtifactSink, rng ports.RNGPort, cfg *config.Config, logger *internal.Logger) *BatchService {
	return &BatchService{
		rules:  ruleSource,
		corpus: corpusSource,
		sink:   sink,
		rng:    rng,
		cfg:    cfg,
		logger: logger.With("batch"),
	}
}

// Run executes the batch step. Each stage writes its own artifacts only after
// it succeeds; a failing stage leaves earlier artifacts in place and emits
// nothing of its own.
func (s *BatchService) Run(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	runner := NewStageRunner(s.logger)
	groupBy := req.GroupBy
	if groupBy == "" {
		groupBy = s.cfg.Run.GroupBy
	}
	method, err := significance.ParsePValueMethod(s.cfg.Run.PValueMethod)
	if err != nil {
		return nil, err
	}

	var (
		rs     *rules.RuleSet
		corpus *tokens.Corpus
	)
	err = runner.Run(ctx, StageLoad, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			rs, err = s.rules.LoadRuleSet(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			corpus, err = s.corpus.LoadCorpus(gctx)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}

	keyFn, err := aggregate.KeyFuncFor(groupBy, corpus)
	if err != nil {
		return nil, err
	}

	manifest := run.NewManifest(rs.Name(), corpus.Name, corpus.Len(), run.Fingerprint{
		RuleSetHash: rs.Hash(),
		CorpusHash:  corpus.Hash(),
		GroupBy:     groupBy,
		Seed:        s.cfg.Run.Seed,
		NPerm:       s.cfg.Run.NPerm,
		NBoot:       s.cfg.Run.NBoot,
		K:           s.cfg.Cluster.K,
		MinCount:    s.cfg.Cluster.MinCount,
		MaxIters:    s.cfg.Cluster.MaxIters,
		Features:    s.cfg.Cluster.Features,
		CodeVersion: s.cfg.Run.CodeVersion,
	})
	if err := s.sink.WriteManifest(ctx, manifest); err != nil {
		return nil, err
	}
	s.logger.Info("run %s: %d rules x %d occurrences, fingerprint %s",
		manifest.RunID, rs.Len(), corpus.Len(), manifest.Fingerprint.Fingerprint.Short())

	result := &BatchResult{Manifest: manifest}
	scorer := scoring.NewScorer(rs, s.cfg.Run.Workers, s.logger)

	var verdicts []tokens.TokenVerdict
	err = runner.Run(ctx, StageScore, func(ctx context.Context) error {
		var err error
		if verdicts, err = scorer.ScoreCorpus(ctx, corpus.Occurrences); err != nil {
			return err
		}
		result.RuleCoverage = scorer.RuleCoverage(corpus.Occurrences)
		silent := 0
		for _, n := range result.RuleCoverage {
			if n == 0 {
				silent++
			}
		}
		if silent > 0 {
			s.logger.Info("%d of %d rules matched no occurrence", silent, rs.Len())
		}
		return nil
	})
	if err != nil {
		return s.finish(result, runner, err)
	}

	var table map[string]features.StructuralVector
	err = runner.Run(ctx, StageAggregate, func(ctx context.Context) error {
		keyed, err := aggregate.Keyed(corpus.Occurrences, verdicts, keyFn)
		if err != nil {
			return err
		}
		table, _ = aggregate.Aggregate(keyed)
		if len(table) == 0 {
			return core.NewInsufficientDataError(fmt.Sprintf("no %s groups to aggregate", groupBy))
		}
		result.Vectors = aggregate.Vectors(table, features.SortedKeys(table))
		return s.sink.WriteVectors(ctx, manifest.RunID, groupBy, result.Vectors)
	})
	if err != nil || req.ScoreOnly {
		return s.finish(result, runner, err)
	}

	var suite *suiteOutput
	err = runner.Run(ctx, StageAnalyze, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			result.Cluster, err = cluster.Cluster(table, cluster.Options{
				Features: s.cfg.Cluster.Features,
				K:        s.cfg.Cluster.K,
				MinCount: s.cfg.Cluster.MinCount,
				MaxIters: s.cfg.Cluster.MaxIters,
			})
			return err
		})
		g.Go(func() error {
			var err error
			suite, err = s.runSignificance(gctx, corpus, verdicts, method)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return s.finish(result, runner, err)
	}
	result.Association = suite.association
	result.Tests = suite.tests
	result.Intervals = suite.intervals

	err = runner.Run(ctx, StageEmit, func(ctx context.Context) error {
		if err := s.sink.WriteAssignments(ctx, manifest.RunID, result.Cluster.Assignments); err != nil {
			return err
		}
		if err := s.sink.WriteTestRecords(ctx, manifest.RunID, result.Tests); err != nil {
			return err
		}
		return s.sink.WriteIntervals(ctx, manifest.RunID, result.Intervals)
	})
	return s.finish(result, runner, err)
}

func (s *BatchService) finish(result *BatchResult, runner *StageRunner, err error) (*BatchResult, error) {
	result.Stages = runner.Timings()
	if err != nil {
		return nil, err
	}
	return result, nil
}
