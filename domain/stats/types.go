package stats

import (
	"math"
	"sort"

	"glyphscore/domain/core"
	"glyphscore/domain/verdict"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Tail selects which side of the null distribution counts as extreme
type Tail string

const (
	// TailUpper counts null >= observed. This is the default convention.
	TailUpper Tail = "upper"
	// TailLower counts null <= observed
	TailLower Tail = "lower"
	// TailBoth counts |null| >= |observed|
	TailBoth Tail = "both"
)

// NullModelResult is the outcome of one permutation test invocation.
// The null distribution is retained in trial order for auditability.
type NullModelResult struct {
	ObservedStatistic float64   `json:"observed_statistic"`
	NullDistribution  []float64 `json:"null_distribution"`
	// PValue is ExceedCount / NPerm. A value of exactly 0 means no permutation
	// reached or exceeded the observed statistic.
	PValue          float64  `json:"p_value"`
	CorrectedPValue *float64 `json:"corrected_p_value,omitempty"`
	ExceedCount     int      `json:"exceed_count"`
	NPerm           int      `json:"n_perm"`
	Seed            int64    `json:"seed"`
	Tail            Tail     `json:"tail"`
}

// NullMean returns the arithmetic mean of the null distribution
func (r *NullModelResult) NullMean() float64 {
	m, err := mstats.Mean(r.NullDistribution)
	if err != nil {
		return math.NaN()
	}
	return m
}

// NullStd returns the sample standard deviation of the null distribution.
// A single-trial distribution has no spread and reports 0.
func (r *NullModelResult) NullStd() float64 {
	if len(r.NullDistribution) < 2 {
		return 0
	}
	sd, err := mstats.StandardDeviationSample(r.NullDistribution)
	if err != nil {
		return math.NaN()
	}
	return sd
}

// ZScore standardizes the observed statistic against the null distribution.
// It fails with ErrDegenerateStatistic when the null has zero spread.
func (r *NullModelResult) ZScore() (float64, error) {
	sd := r.NullStd()
	if sd == 0 || math.IsNaN(sd) {
		return math.NaN(), core.NewDegenerateStatisticError("null distribution has zero standard deviation")
	}
	return (r.ObservedStatistic - r.NullMean()) / sd, nil
}

// Percentile returns the p-th quantile (0..1) of the null distribution
func (r *NullModelResult) Percentile(p float64) float64 {
	return Quantile(r.NullDistribution, p)
}

// Corrected returns the corrected p-value when one was assigned, else the raw one
func (r *NullModelResult) Corrected() float64 {
	if r.CorrectedPValue != nil {
		return *r.CorrectedPValue
	}
	return r.PValue
}

// BootstrapResult is the outcome of one bootstrap invocation
type BootstrapResult struct {
	PointEstimate float64   `json:"point_estimate"`
	CILow         float64   `json:"ci_low"`
	CIHigh        float64   `json:"ci_high"`
	StdError      float64   `json:"std_error"`
	CILevel       float64   `json:"ci_level"`
	NBoot         int       `json:"n_boot"`
	Seed          int64     `json:"seed"`
	Distribution  []float64 `json:"distribution"`
}

// Quantile returns the p-th quantile of values using linear interpolation
// between order statistics. values is not modified.
func Quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// TestRecord is one row of a statistical-test result table
type TestRecord struct {
	Family            string        `json:"family" db:"family"`
	Name              string        `json:"name" db:"name"`
	Method            string        `json:"method" db:"method"`
	ObservedStatistic float64       `json:"observed_statistic" db:"observed_statistic"`
	NullMean          float64       `json:"null_mean" db:"null_mean"`
	NullStd           float64       `json:"null_std" db:"null_std"`
	ZScore            *float64      `json:"z_score" db:"z_score"` // nil when undefined
	EffectSize        *float64      `json:"effect_size,omitempty" db:"effect_size"`
	PValue            float64       `json:"p_value" db:"p_value"`
	CorrectedPValue   *float64      `json:"corrected_p_value" db:"corrected_p_value"`
	Verdict           verdict.Label `json:"verdict" db:"verdict"`
}

// NewTestRecord summarizes a permutation result into a table row
func NewTestRecord(family, name, method string, res *NullModelResult, effect *float64, label verdict.Label) TestRecord {
	rec := TestRecord{
		Family:            family,
		Name:              name,
		Method:            method,
		ObservedStatistic: res.ObservedStatistic,
		NullMean:          res.NullMean(),
		NullStd:           res.NullStd(),
		EffectSize:        effect,
		PValue:            res.PValue,
		CorrectedPValue:   res.CorrectedPValue,
		Verdict:           label,
	}
	if z, err := res.ZScore(); err == nil {
		rec.ZScore = &z
	}
	return rec
}

// IntervalRecord is one row of a bootstrap confidence-interval table
type IntervalRecord struct {
	Family        string  `json:"family" db:"family"`
	Name          string  `json:"name" db:"name"`
	Statistic     string  `json:"statistic" db:"statistic"`
	N             int     `json:"n" db:"n"`
	PointEstimate float64 `json:"point_estimate" db:"point_estimate"`
	CILow         float64 `json:"ci_low" db:"ci_low"`
	CIHigh        float64 `json:"ci_high" db:"ci_high"`
	StdError      float64 `json:"std_error" db:"std_error"`
	CILevel       float64 `json:"ci_level" db:"ci_level"`
	NBoot         int     `json:"n_boot" db:"n_boot"`
}

// NewIntervalRecord summarizes a bootstrap result over n observations
func NewIntervalRecord(family, name, statistic string, n int, res *BootstrapResult) IntervalRecord {
	return IntervalRecord{
		Family:        family,
		Name:          name,
		Statistic:     statistic,
		N:             n,
		PointEstimate: res.PointEstimate,
		CILow:         res.CILow,
		CIHigh:        res.CIHigh,
		StdError:      res.StdError,
		CILevel:       res.CILevel,
		NBoot:         res.NBoot,
	}
}
