package significance

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"glyphscore/domain/core"
	"glyphscore/domain/stats"

	mstats "github.com/montanaflynn/stats"
)

// DefaultCILevel is the two-sided confidence level giving the 2.5th/97.5th percentiles
const DefaultCILevel = 0.95

// SampleStatistic computes a statistic over one sample. It must not retain
// the slice it is given.
type SampleStatistic func(sample []float64) float64

// BootstrapOptions configures one bootstrap run
type BootstrapOptions struct {
	NBoot   int
	Seed    int64
	CILevel float64 // zero means DefaultCILevel
}

// Bootstrap resamples data with replacement NBoot times. The point estimate
// is statistic(data) itself, the CI comes from percentiles of the bootstrap
// distribution and the standard error is its sample standard deviation.
func (t *Tester) Bootstrap(ctx context.Context, data []float64, statistic SampleStatistic, opts BootstrapOptions) (*stats.BootstrapResult, error) {
	if opts.NBoot <= 0 {
		return nil, core.NewInsufficientDataError(fmt.Sprintf("n_boot must be positive, got %d", opts.NBoot))
	}
	if len(data) == 0 {
		return nil, core.NewInsufficientDataError("bootstrap needs at least one observation")
	}
	if statistic == nil {
		return nil, core.NewConfigError("statistic", "statistic function is required")
	}
	level := opts.CILevel
	if level == 0 {
		level = DefaultCILevel
	}
	if level <= 0 || level >= 1 {
		return nil, core.NewConfigError("ci_level", fmt.Sprintf("must be in (0,1), got %v", opts.CILevel))
	}

	point := statistic(append([]float64(nil), data...))
	dist := make([]float64, opts.NBoot)
	err := t.runBlocks(ctx, "bootstrap", opts.Seed, opts.NBoot, func(r *rand.Rand, lo, hi int) {
		sample := make([]float64, len(data))
		for b := lo; b < hi; b++ {
			for i := range sample {
				sample[i] = data[r.Intn(len(data))]
			}
			dist[b] = statistic(sample)
		}
	})
	if err != nil {
		return nil, err
	}

	alpha := (1 - level) / 2
	res := &stats.BootstrapResult{
		PointEstimate: point,
		CILow:         stats.Quantile(dist, alpha),
		CIHigh:        stats.Quantile(dist, 1-alpha),
		CILevel:       level,
		NBoot:         opts.NBoot,
		Seed:          opts.Seed,
		Distribution:  dist,
	}
	if opts.NBoot > 1 {
		sd, err := mstats.StandardDeviationSample(dist)
		if err != nil {
			return nil, core.NewDegenerateStatisticError(err.Error())
		}
		res.StdError = sd
	}
	if math.IsNaN(res.StdError) {
		return nil, core.NewDegenerateStatisticError("bootstrap distribution contains NaN")
	}
	return res, nil
}

// Mean is the arithmetic mean, NaN for an empty sample
func Mean(sample []float64) float64 {
	m, err := mstats.Mean(sample)
	if err != nil {
		return math.NaN()
	}
	return m
}
