package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"glyphscore/domain/core"
	"glyphscore/domain/features"
	"glyphscore/domain/run"
	"glyphscore/domain/stats"
	"glyphscore/domain/verdict"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func fixtures() (*run.Manifest, []features.StructuralVector, []features.ClusterAssignment, []stats.TestRecord) {
	m := run.NewManifest("voynich", "tokens", 12, run.Fingerprint{
		RuleSetHash: "rules-hash",
		CorpusHash:  "corpus-hash",
		Seed:        42,
		NPerm:       100,
		CodeVersion: "0.1.0",
	})
	vectors := []features.StructuralVector{
		{Key: "daiin", Count: 4, LeftFrac: 0.75, UnknownFrac: 0.25, MeanLeftScore: 0.75, MeanRuleHits: 0.75, MeanAxisDiff: 0.75},
		{Key: "qoky", Count: 8, RightFrac: 1, MeanRightScore: 1, MeanRuleHits: 1, MeanAxisDiff: -1},
	}
	assignments := []features.ClusterAssignment{
		{ItemKey: "daiin", ClusterID: 0, DistanceToCenter: 0.5},
		{ItemKey: "qoky", ClusterID: 1, DistanceToCenter: 0},
	}
	z, corrected := 2.5, 0.02
	records := []stats.TestRecord{
		{Family: "sections", Name: "herbal", Method: "permutation", ObservedStatistic: 0.6, NullMean: 0.5, NullStd: 0.04,
			ZScore: &z, PValue: 0.01, CorrectedPValue: &corrected, Verdict: verdict.LabelWeakPass},
		{Family: "sections", Name: "bio", Method: "permutation", ObservedStatistic: 0.5, NullMean: 0.5,
			PValue: 1, Verdict: verdict.LabelFail},
	}
	return m, vectors, assignments, records
}

func TestSQLStore_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLStore(ctx, DriverSQLite, filepath.Join(t.TempDir(), "artifacts.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	m, vectors, assignments, records := fixtures()
	require.NoError(t, store.WriteManifest(ctx, m))
	require.NoError(t, store.WriteVectors(ctx, m.RunID, "type", vectors))
	require.NoError(t, store.WriteAssignments(ctx, m.RunID, assignments))
	require.NoError(t, store.WriteTestRecords(ctx, m.RunID, records))

	gotVectors, err := store.Vectors(ctx, m.RunID, "type")
	require.NoError(t, err)
	assert.Equal(t, vectors, gotVectors)

	gotRecords, err := store.TestRecords(ctx, m.RunID)
	require.NoError(t, err)
	require.Len(t, gotRecords, 2)
	assert.Equal(t, "bio", gotRecords[0].Name)
	assert.Nil(t, gotRecords[0].ZScore, "an undefined z-score stays NULL")
	assert.Nil(t, gotRecords[0].CorrectedPValue)
	require.NotNil(t, gotRecords[1].ZScore)
	assert.Equal(t, 2.5, *gotRecords[1].ZScore)
	assert.Equal(t, verdict.LabelWeakPass, gotRecords[1].Verdict)

	intervals := []stats.IntervalRecord{{Family: "axis_diff", Name: "herbal", Statistic: "mean", N: 5,
		PointEstimate: 1, CILow: 1, CIHigh: 1, CILevel: 0.95, NBoot: 100}}
	require.NoError(t, store.WriteIntervals(ctx, m.RunID, intervals))
	gotIntervals, err := store.Intervals(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, intervals, gotIntervals)

	runs, err := store.RunsByFingerprint(ctx, m.Fingerprint.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, []core.RunID{m.RunID}, runs)
}

func TestSQLStore_RejectsOrphanTables(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLStore(ctx, DriverSQLite, filepath.Join(t.TempDir(), "artifacts.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	_, vectors, _, _ := fixtures()
	err = store.WriteVectors(ctx, core.NewRunID(), "type", vectors)
	assert.Error(t, err, "vectors need a manifest row first")
}

func TestOpenSQLStore_Config(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), "mysql", "x", nil)
	assert.True(t, core.IsConfigError(err))
	_, err = OpenSQLStore(context.Background(), DriverSQLite, "", nil)
	assert.True(t, core.IsConfigError(err))
}

func TestTableWriter_TSV(t *testing.T) {
	ctx := context.Background()
	w, err := NewTableWriter(t.TempDir(), FormatTSV, nil)
	require.NoError(t, err)

	m, vectors, assignments, records := fixtures()
	require.NoError(t, w.WriteManifest(ctx, m))
	require.NoError(t, w.WriteVectors(ctx, m.RunID, "type", vectors))
	require.NoError(t, w.WriteAssignments(ctx, m.RunID, assignments))
	require.NoError(t, w.WriteTestRecords(ctx, m.RunID, records))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(w.RunDir(m.RunID), "test_results.tsv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(TestColumns, "\t"), lines[0])
	assert.Equal(t, "sections\tbio\tpermutation\t0.5\t0.5\t0\tundefined\t\t1\t\tFAIL", lines[2])

	vec, err := os.ReadFile(filepath.Join(w.RunDir(m.RunID), "vectors_type.tsv"))
	require.NoError(t, err)
	assert.Contains(t, string(vec), "daiin\t4\t0.75\t0\t0.25\t0\t")

	assert.FileExists(t, filepath.Join(w.RunDir(m.RunID), "manifest.json"))
}

func TestTableWriter_XLSX(t *testing.T) {
	ctx := context.Background()
	w, err := NewTableWriter(t.TempDir(), FormatXLSX, nil)
	require.NoError(t, err)

	m, vectors, assignments, records := fixtures()
	require.NoError(t, w.WriteVectors(ctx, m.RunID, "type", vectors))
	require.NoError(t, w.WriteAssignments(ctx, m.RunID, assignments))
	require.NoError(t, w.WriteTestRecords(ctx, m.RunID, records))
	require.NoError(t, w.Close())

	f, err := excelize.OpenFile(filepath.Join(w.RunDir(m.RunID), "results.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"vectors_type", "cluster_assignments", "test_results"}, f.GetSheetList())
	rows, err := f.GetRows("cluster_assignments")
	require.NoError(t, err)
	assert.Equal(t, [][]string{AssignmentColumns, {"daiin", "0", "0.5"}, {"qoky", "1", "0"}}, rows)
}

func TestNewTableWriter_RejectsFormat(t *testing.T) {
	_, err := NewTableWriter(t.TempDir(), "parquet", nil)
	assert.True(t, core.IsConfigError(err))
}

type recordingSink struct {
	MultiSink
	manifests int
	closed    bool
}

func (r *recordingSink) WriteManifest(ctx context.Context, m *run.Manifest) error {
	r.manifests++
	return nil
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func TestMultiSink_FansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := MultiSink{a, b}
	m, vectors, _, _ := fixtures()

	require.NoError(t, sink.WriteManifest(context.Background(), m))
	require.NoError(t, sink.WriteVectors(context.Background(), m.RunID, "type", vectors))
	require.NoError(t, sink.Close())
	assert.Equal(t, 1, a.manifests)
	assert.Equal(t, 1, b.manifests)
	assert.True(t, a.closed && b.closed)
}
