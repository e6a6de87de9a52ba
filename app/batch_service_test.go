package app

import (
	"context"
	"errors"
	"testing"

	"glyphscore/domain/core"
	"glyphscore/domain/tokens"
	"glyphscore/domain/verdict"
	"glyphscore/internal"
	"glyphscore/internal/config"
	"glyphscore/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Run.NPerm = 200
	cfg.Run.NBoot = 200
	cfg.Run.Workers = 3
	cfg.Cluster.K = 2
	return cfg
}

func newService(corpus *tokens.Corpus, sink *testkit.MemorySink, cfg *config.Config) *BatchService {
	return NewBatchService(
		testkit.StaticRuleSource{RuleSet: testkit.DefaultRuleSet()},
		testkit.StaticCorpusSource{Corpus: corpus},
		sink,
		testkit.RNGAdapter(),
		cfg,
		internal.NewLogger(internal.LogLevelError),
	)
}

func syntheticCorpus() *tokens.Corpus {
	return testkit.NewGlyphGenerator(testkit.DefaultGlyphConfig()).Generate()
}

func TestBatchService_FullRun(t *testing.T) {
	sink := testkit.NewMemorySink()
	res, err := newService(syntheticCorpus(), sink, testConfig()).Run(context.Background(), BatchRequest{})
	require.NoError(t, err)

	require.Len(t, sink.Manifests, 1)
	assert.Equal(t, res.Manifest.RunID, sink.Manifests[0].RunID)
	assert.Equal(t, 800, res.Manifest.Tokens)

	vectors := sink.Vectors["type"]
	require.NotEmpty(t, vectors)
	total := 0
	for i, v := range vectors {
		total += v.Count
		if i > 0 {
			assert.Less(t, vectors[i-1].Key, v.Key, "vectors are ordered by key")
		}
	}
	assert.Equal(t, 800, total)

	require.NotNil(t, res.Cluster)
	assert.Equal(t, res.Cluster.Assignments, sink.Assignments)

	require.NotNil(t, res.Association)
	assert.Less(t, res.Association.PValue, 0.001)

	byName := make(map[string]verdict.Label)
	for _, rec := range sink.Tests {
		byName[rec.Family+"/"+rec.Name+"/"+rec.Method] = rec.Verdict
	}
	assert.Equal(t, verdict.LabelPass, byName["section_left_frac/herbal/permutation"])
	assert.Equal(t, verdict.LabelPass, byName["section_left_frac/bio/permutation"])
	assert.Contains(t, byName, "association/verdict_x_section/chi2_exact")
	assert.Contains(t, byName, "association/verdict_x_section/chi2_permutation")

	for _, rec := range sink.Tests {
		if rec.Family == FamilySectionLeft {
			require.NotNil(t, rec.CorrectedPValue)
			assert.GreaterOrEqual(t, *rec.CorrectedPValue, rec.PValue)
		}
	}

	require.Len(t, sink.Intervals, 3)
	for _, iv := range sink.Intervals {
		assert.LessOrEqual(t, iv.CILow, iv.PointEstimate)
		assert.GreaterOrEqual(t, iv.CIHigh, iv.PointEstimate)
	}
	assert.Equal(t, allSectionsName, sink.Intervals[2].Name)
	assert.Equal(t, 800, sink.Intervals[2].N)

	assert.Len(t, res.RuleCoverage, 4)
	assert.Positive(t, res.RuleCoverage["in"])

	names := make([]StageName, len(res.Stages))
	for i, s := range res.Stages {
		names[i] = s.Name
	}
	assert.Equal(t, []StageName{StageLoad, StageScore, StageAggregate, StageAnalyze, StageEmit}, names)
}

func TestBatchService_DeterministicAcrossWorkers(t *testing.T) {
	corpus := syntheticCorpus()

	cfg1 := testConfig()
	cfg1.Run.Workers = 1
	sink1 := testkit.NewMemorySink()
	_, err := newService(corpus, sink1, cfg1).Run(context.Background(), BatchRequest{})
	require.NoError(t, err)

	cfg8 := testConfig()
	cfg8.Run.Workers = 8
	sink8 := testkit.NewMemorySink()
	_, err = newService(corpus, sink8, cfg8).Run(context.Background(), BatchRequest{})
	require.NoError(t, err)

	assert.Equal(t, sink1.Tests, sink8.Tests)
	assert.Equal(t, sink1.Intervals, sink8.Intervals)
	assert.Equal(t, sink1.Assignments, sink8.Assignments)
	assert.Equal(t, sink1.Manifests[0].Fingerprint.Fingerprint, sink8.Manifests[0].Fingerprint.Fingerprint)
}

func TestBatchService_ScoreOnly(t *testing.T) {
	sink := testkit.NewMemorySink()
	res, err := newService(syntheticCorpus(), sink, testConfig()).Run(context.Background(), BatchRequest{ScoreOnly: true, GroupBy: "section"})
	require.NoError(t, err)

	require.Len(t, sink.Vectors["section"], 2)
	assert.Equal(t, "bio", sink.Vectors["section"][0].Key)
	assert.Greater(t, sink.Vectors["section"][1].LeftFrac, sink.Vectors["section"][0].LeftFrac)
	assert.Empty(t, sink.Assignments)
	assert.Empty(t, sink.Tests)
	assert.Nil(t, res.Cluster)
	assert.Len(t, res.Stages, 3)
}

func TestBatchService_MissingFolioColumn(t *testing.T) {
	corpus := syntheticCorpus()
	corpus.HasFolio = false
	sink := testkit.NewMemorySink()

	_, err := newService(corpus, sink, testConfig()).Run(context.Background(), BatchRequest{GroupBy: "folio"})
	assert.True(t, core.IsMissingColumnError(err))
	assert.Empty(t, sink.Manifests, "nothing is written before grouping is resolved")
}

func TestBatchService_AnalyzeFailureEmitsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Cluster.K = 500
	sink := testkit.NewMemorySink()

	_, err := newService(syntheticCorpus(), sink, cfg).Run(context.Background(), BatchRequest{})
	assert.True(t, core.IsInsufficientDataError(err))
	assert.NotEmpty(t, sink.Vectors["type"], "earlier stages keep their artifacts")
	assert.Empty(t, sink.Assignments)
	assert.Empty(t, sink.Tests)
	assert.Empty(t, sink.Intervals)
}

func TestBatchService_SingleSectionSkipsSignificance(t *testing.T) {
	genCfg := testkit.DefaultGlyphConfig()
	genCfg.Sections = []string{"herbal"}
	corpus := testkit.NewGlyphGenerator(genCfg).Generate()
	sink := testkit.NewMemorySink()

	res, err := newService(corpus, sink, testConfig()).Run(context.Background(), BatchRequest{})
	require.NoError(t, err)
	assert.Nil(t, res.Association)
	assert.Empty(t, sink.Tests)
	assert.NotEmpty(t, sink.Assignments)
}

func TestBatchService_LoadErrors(t *testing.T) {
	boom := errors.New("disk gone")
	svc := NewBatchService(
		testkit.StaticRuleSource{Err: boom},
		testkit.StaticCorpusSource{Corpus: syntheticCorpus()},
		testkit.NewMemorySink(),
		testkit.RNGAdapter(),
		testConfig(),
		internal.NewLogger(internal.LogLevelError),
	)
	_, err := svc.Run(context.Background(), BatchRequest{})
	assert.ErrorIs(t, err, boom)

	cfg := testConfig()
	cfg.Run.PValueMethod = "bogus"
	_, err = newService(syntheticCorpus(), testkit.NewMemorySink(), cfg).Run(context.Background(), BatchRequest{})
	assert.True(t, core.IsConfigError(err))
}

func TestBatchService_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := testkit.NewMemorySink()
	_, err := newService(syntheticCorpus(), sink, testConfig()).Run(ctx, BatchRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.Manifests)
}
