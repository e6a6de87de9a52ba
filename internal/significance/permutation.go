package significance

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"glyphscore/domain/core"
	"glyphscore/domain/stats"
)

// LabelStatistic computes a test statistic from one labeling. It must not
// retain or modify the slice it is given.
type LabelStatistic func(labels []string) float64

// PermutationOptions configures one permutation test
type PermutationOptions struct {
	NPerm int
	Seed  int64
	Tail  stats.Tail // empty means upper
}

// Permute computes statistic on the true labels, then NPerm times on
// uniformly shuffled copies, and reports p = count(extreme) / NPerm.
//
// With nil strata the shuffle covers all positions. With strata, labels are
// shuffled only among positions sharing a stratum.
//
// A p-value of exactly 0 means no permutation reached or exceeded the
// observed statistic.
func (t *Tester) Permute(ctx context.Context, labels, strata []string, statistic LabelStatistic, opts PermutationOptions) (*stats.NullModelResult, error) {
	if opts.NPerm <= 0 {
		return nil, core.NewInsufficientDataError(fmt.Sprintf("n_perm must be positive, got %d", opts.NPerm))
	}
	if len(labels) == 0 {
		return nil, core.NewInsufficientDataError("permutation test needs at least one label")
	}
	if statistic == nil {
		return nil, core.NewConfigError("statistic", "statistic function is required")
	}
	if strata != nil && len(strata) != len(labels) {
		return nil, core.NewConfigError("strata", fmt.Sprintf("%d strata for %d labels", len(strata), len(labels)))
	}
	tail := opts.Tail
	if tail == "" {
		tail = stats.TailUpper
	}
	if tail != stats.TailUpper && tail != stats.TailLower && tail != stats.TailBoth {
		return nil, core.NewConfigError("tail", fmt.Sprintf("unknown tail %q", opts.Tail))
	}

	observed := statistic(append([]string(nil), labels...))
	if math.IsNaN(observed) {
		return nil, core.NewDegenerateStatisticError("observed statistic is NaN")
	}

	groups := strataGroups(len(labels), strata)
	null := make([]float64, opts.NPerm)
	err := t.runBlocks(ctx, "permutation", opts.Seed, opts.NPerm, func(r *rand.Rand, lo, hi int) {
		work := make([]string, len(labels))
		for trial := lo; trial < hi; trial++ {
			copy(work, labels)
			for _, idx := range groups {
				for i := len(idx) - 1; i > 0; i-- {
					j := r.Intn(i + 1)
					work[idx[i]], work[idx[j]] = work[idx[j]], work[idx[i]]
				}
			}
			null[trial] = statistic(work)
		}
	})
	if err != nil {
		return nil, err
	}

	exceed := 0
	for _, v := range null {
		if extreme(v, observed, tail) {
			exceed++
		}
	}

	t.logger.Debug("permutation: observed=%.4f exceed=%d/%d tail=%s", observed, exceed, opts.NPerm, tail)
	return &stats.NullModelResult{
		ObservedStatistic: observed,
		NullDistribution:  null,
		PValue:            float64(exceed) / float64(opts.NPerm),
		ExceedCount:       exceed,
		NPerm:             opts.NPerm,
		Seed:              opts.Seed,
		Tail:              tail,
	}, nil
}

func extreme(null, observed float64, tail stats.Tail) bool {
	switch tail {
	case stats.TailLower:
		return null <= observed
	case stats.TailBoth:
		return math.Abs(null) >= math.Abs(observed)
	default:
		return null >= observed
	}
}

// strataGroups partitions positions by stratum in first-seen order.
// nil strata yield a single group spanning every position.
func strataGroups(n int, strata []string) [][]int {
	if strata == nil {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return [][]int{all}
	}
	index := make(map[string]int)
	var groups [][]int
	for i, s := range strata {
		g, ok := index[s]
		if !ok {
			g = len(groups)
			index[s] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}
