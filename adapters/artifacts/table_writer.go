package artifacts

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"glyphscore/domain/core"
	"glyphscore/domain/features"
	"glyphscore/domain/run"
	"glyphscore/domain/stats"
	"glyphscore/internal"
	apperrors "glyphscore/internal/errors"
	"glyphscore/ports"

	"github.com/xuri/excelize/v2"
)

// Output formats for TableWriter
const (
	FormatTSV  = "tsv"
	FormatXLSX = "xlsx"
)

// Undefined is written wherever a statistic has no defined value
const Undefined = "undefined"

// Column orders of the emitted tables
var (
	VectorColumns = []string{"item_key", "count", "left_frac", "right_frac", "unknown_frac", "tie_frac",
		"mean_left_score", "mean_right_score", "mean_rule_hits", "mean_axis_diff"}
	AssignmentColumns = []string{"item_key", "cluster_id", "distance_to_center"}
	TestColumns       = []string{"family", "name", "method", "observed_statistic", "null_mean", "null_std",
		"z_score", "effect_size", "p_value", "corrected_p_value", "verdict"}
	IntervalColumns = []string{"family", "name", "statistic", "n", "point_estimate", "ci_low", "ci_high",
		"std_error", "ci_level", "n_boot"}
)

// TableWriter writes each artifact table under dir/<run id>/. TSV output is
// one file per table; XLSX output is one workbook with a sheet per table,
// saved on Close.
type TableWriter struct {
	dir    string
	format string
	logger *internal.Logger

	mu       sync.Mutex
	workbook *excelize.File
	bookPath string
}

var _ ports.ArtifactSink = (*TableWriter)(nil)

// NewTableWriter creates a writer rooted at dir
func NewTableWriter(dir, format string, logger *internal.Logger) (*TableWriter, error) {
	if format != FormatTSV && format != FormatXLSX {
		return nil, core.NewConfigError("out_format", fmt.Sprintf("unsupported format %q (want tsv or xlsx)", format))
	}
	return &TableWriter{dir: dir, format: format, logger: logger.With("tables")}, nil
}

// RunDir returns the directory holding a run's artifacts
func (w *TableWriter) RunDir(runID core.RunID) string {
	return filepath.Join(w.dir, runID.String())
}

// WriteManifest writes manifest.json for the run
func (w *TableWriter) WriteManifest(ctx context.Context, m *run.Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	dir := w.RunDir(m.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.IOError("failed to create run directory", err)
	}
	doc, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, "failed to encode manifest")
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), doc, 0o644); err != nil {
		return apperrors.IOError("failed to write manifest", err)
	}
	return nil
}

// WriteVectors writes a structural-vector table named vectors_<table>
func (w *TableWriter) WriteVectors(ctx context.Context, runID core.RunID, table string, vectors []features.StructuralVector) error {
	rows := make([][]string, len(vectors))
	for i, v := range vectors {
		rows[i] = []string{v.Key, strconv.Itoa(v.Count), ff(v.LeftFrac), ff(v.RightFrac), ff(v.UnknownFrac), ff(v.TieFrac),
			ff(v.MeanLeftScore), ff(v.MeanRightScore), ff(v.MeanRuleHits), ff(v.MeanAxisDiff)}
	}
	return w.write(runID, "vectors_"+table, VectorColumns, rows)
}

// WriteAssignments writes the cluster_assignments table
func (w *TableWriter) WriteAssignments(ctx context.Context, runID core.RunID, assignments []features.ClusterAssignment) error {
	rows := make([][]string, len(assignments))
	for i, a := range assignments {
		rows[i] = []string{a.ItemKey, strconv.Itoa(a.ClusterID), ff(a.DistanceToCenter)}
	}
	return w.write(runID, "cluster_assignments", AssignmentColumns, rows)
}

// WriteTestRecords writes the test_results table
func (w *TableWriter) WriteTestRecords(ctx context.Context, runID core.RunID, records []stats.TestRecord) error {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{r.Family, r.Name, r.Method, ff(r.ObservedStatistic), ff(r.NullMean), ff(r.NullStd),
			optional(r.ZScore, Undefined), optional(r.EffectSize, ""), ff(r.PValue), optional(r.CorrectedPValue, ""), string(r.Verdict)}
	}
	return w.write(runID, "test_results", TestColumns, rows)
}

// WriteIntervals writes the bootstrap_intervals table
func (w *TableWriter) WriteIntervals(ctx context.Context, runID core.RunID, intervals []stats.IntervalRecord) error {
	rows := make([][]string, len(intervals))
	for i, r := range intervals {
		rows[i] = []string{r.Family, r.Name, r.Statistic, strconv.Itoa(r.N), ff(r.PointEstimate), ff(r.CILow), ff(r.CIHigh),
			ff(r.StdError), ff(r.CILevel), strconv.Itoa(r.NBoot)}
	}
	return w.write(runID, "bootstrap_intervals", IntervalColumns, rows)
}

// Close saves the workbook when writing XLSX
func (w *TableWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.workbook == nil {
		return nil
	}
	defer func() {
		w.workbook.Close()
		w.workbook = nil
	}()
	if err := w.workbook.SaveAs(w.bookPath); err != nil {
		return apperrors.IOError("failed to save workbook", err)
	}
	w.logger.Info("wrote %s", w.bookPath)
	return nil
}

func (w *TableWriter) write(runID core.RunID, name string, header []string, rows [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := w.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.IOError("failed to create run directory", err)
	}
	if w.format == FormatXLSX {
		return w.writeSheet(dir, name, header, rows)
	}

	path := filepath.Join(dir, name+".tsv")
	f, err := os.Create(path)
	if err != nil {
		return apperrors.IOError("failed to create "+path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	cw.Comma = '\t'
	if err := cw.Write(header); err != nil {
		return apperrors.IOError("failed to write "+path, err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return apperrors.IOError("failed to write "+path, err)
	}
	w.logger.Debug("wrote %s (%d rows)", path, len(rows))
	return nil
}

func (w *TableWriter) writeSheet(dir, name string, header []string, rows [][]string) error {
	if w.workbook == nil {
		w.workbook = excelize.NewFile()
		w.bookPath = filepath.Join(dir, "results.xlsx")
		if err := w.workbook.SetSheetName("Sheet1", name); err != nil {
			return apperrors.IOError("failed to name sheet", err)
		}
	} else if _, err := w.workbook.NewSheet(name); err != nil {
		return apperrors.IOError("failed to add sheet "+name, err)
	}

	if err := w.workbook.SetSheetRow(name, "A1", &header); err != nil {
		return apperrors.IOError("failed to write header of "+name, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return apperrors.IOError("failed to address row", err)
		}
		if err := w.workbook.SetSheetRow(name, cell, &row); err != nil {
			return apperrors.IOError("failed to write "+name, err)
		}
	}
	return nil
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func optional(v *float64, missing string) string {
	if v == nil {
		return missing
	}
	return ff(*v)
}
