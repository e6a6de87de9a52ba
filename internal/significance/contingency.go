package significance

import (
	"fmt"
	"math"
	"strings"

	"glyphscore/domain/core"
	"glyphscore/domain/stats"

	"gonum.org/v1/gonum/stat/distuv"
)

// PValueMethod selects how a χ² statistic becomes a p-value
type PValueMethod string

const (
	// PValueExact uses the χ² survival function with (r-1)(c-1) degrees of freedom
	PValueExact PValueMethod = "exact"
	// PValueLookup uses the coarse critical-value table
	PValueLookup PValueMethod = "lookup"
)

// ParsePValueMethod validates a raw method name
func ParsePValueMethod(s string) (PValueMethod, error) {
	switch m := PValueMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case PValueExact, PValueLookup:
		return m, nil
	case "":
		return PValueExact, nil
	default:
		return "", core.NewConfigError("p_value_method", fmt.Sprintf("unknown method %q (want exact or lookup)", s))
	}
}

// ContingencyResult is a χ² test of independence between two labelings
type ContingencyResult struct {
	Rows      []string
	Cols      []string
	Observed  [][]float64
	N         int
	ChiSquare float64
	DF        int
	CramersV  float64
	PValue    float64
	Method    PValueMethod
}

// ChiSquare cross-tabulates rows against cols and tests independence.
// The lookup method ignores degrees of freedom, as the critical-value table does.
func ChiSquare(rows, cols []string, method PValueMethod, lookup stats.LookupTable) (*ContingencyResult, error) {
	table, err := crossTab(rows, cols)
	if err != nil {
		return nil, err
	}
	if len(table.rows) < 2 || len(table.cols) < 2 {
		return nil, core.NewInsufficientDataError(fmt.Sprintf("contingency table is %dx%d, need at least 2x2", len(table.rows), len(table.cols)))
	}

	chi := table.chiSquare()
	df := (len(table.rows) - 1) * (len(table.cols) - 1)
	res := &ContingencyResult{
		Rows:      table.rows,
		Cols:      table.cols,
		Observed:  table.counts,
		N:         table.n,
		ChiSquare: chi,
		DF:        df,
		CramersV:  math.Sqrt(chi / (float64(table.n) * float64(min(len(table.rows), len(table.cols))-1))),
		Method:    method,
	}

	switch method {
	case PValueLookup:
		res.PValue = lookup.PValue(chi)
	case PValueExact, "":
		res.Method = PValueExact
		res.PValue = distuv.ChiSquared{K: float64(df)}.Survival(chi)
	default:
		return nil, core.NewConfigError("p_value_method", fmt.Sprintf("unknown method %q", method))
	}
	return res, nil
}

// ChiSquareStatistic returns a LabelStatistic computing the χ² of the
// shuffled labels against fixed columns. Single-row or single-column
// tables score 0; mismatched lengths score NaN.
func ChiSquareStatistic(cols []string) LabelStatistic {
	return func(labels []string) float64 {
		table, err := crossTab(labels, cols)
		if err != nil {
			return math.NaN()
		}
		return table.chiSquare()
	}
}

type contingency struct {
	rows, cols []string
	counts     [][]float64
	n          int
}

func crossTab(rows, cols []string) (*contingency, error) {
	if len(rows) != len(cols) {
		return nil, core.NewConfigError("labels", fmt.Sprintf("%d row labels for %d column labels", len(rows), len(cols)))
	}
	if len(rows) == 0 {
		return nil, core.NewInsufficientDataError("contingency table has no observations")
	}

	t := &contingency{n: len(rows)}
	rowIdx := make(map[string]int)
	colIdx := make(map[string]int)
	type cell struct{ r, c int }
	cells := make([]cell, len(rows))
	for i := range rows {
		r, ok := rowIdx[rows[i]]
		if !ok {
			r = len(t.rows)
			rowIdx[rows[i]] = r
			t.rows = append(t.rows, rows[i])
		}
		c, ok := colIdx[cols[i]]
		if !ok {
			c = len(t.cols)
			colIdx[cols[i]] = c
			t.cols = append(t.cols, cols[i])
		}
		cells[i] = cell{r, c}
	}

	t.counts = make([][]float64, len(t.rows))
	for r := range t.counts {
		t.counts[r] = make([]float64, len(t.cols))
	}
	for _, c := range cells {
		t.counts[c.r][c.c]++
	}
	return t, nil
}

func (t *contingency) chiSquare() float64 {
	rowTotals := make([]float64, len(t.rows))
	colTotals := make([]float64, len(t.cols))
	for r := range t.counts {
		for c, v := range t.counts[r] {
			rowTotals[r] += v
			colTotals[c] += v
		}
	}
	n := float64(t.n)
	var chi float64
	for r := range t.counts {
		for c, observed := range t.counts[r] {
			expected := rowTotals[r] * colTotals[c] / n
			if expected == 0 {
				continue
			}
			d := observed - expected
			chi += d * d / expected
		}
	}
	return chi
}
