package app

import (
	"context"
	"math"

	"glyphscore/domain/core"
	"glyphscore/domain/stats"
	"glyphscore/domain/tokens"
	"glyphscore/domain/verdict"
	"glyphscore/internal/significance"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Result families written by the significance stage
const (
	FamilyAssociation  = "association"
	FamilySectionLeft  = "section_left_frac"
	FamilyMeanAxisDiff = "mean_axis_diff"

	associationName = "verdict_x_section"
	allSectionsName = "(all)"
)

type suiteOutput struct {
	association *significance.ContingencyResult
	tests       []stats.TestRecord
	intervals   []stats.IntervalRecord
}

// runSignificance tests whether verdicts depend on section. Only occurrences
// with a known section take part; fewer than two sections skips the suite.
func (s *BatchService) runSignificance(ctx context.Context, corpus *tokens.Corpus, verdicts []tokens.TokenVerdict, method significance.PValueMethod) (*suiteOutput, error) {
	var (
		sections []string
		labels   []string
		diffs    []float64
	)
	for i, o := range corpus.Occurrences {
		if o.Section == "" {
			continue
		}
		sections = append(sections, o.Section)
		labels = append(labels, string(verdicts[i].PredictedSide))
		diffs = append(diffs, verdicts[i].AxisDiff())
	}

	out := &suiteOutput{}
	known := distinct(sections)
	if len(known) < 2 {
		s.logger.Warn("significance skipped: %d known section(s), need at least 2", len(known))
		return out, nil
	}

	tester := significance.NewTester(s.rng, s.cfg.Run.Workers, s.logger)
	permOpts := significance.PermutationOptions{NPerm: s.cfg.Run.NPerm, Seed: s.cfg.Run.Seed}

	assoc, err := significance.ChiSquare(labels, sections, method, s.cfg.Lookup)
	switch {
	case core.IsInsufficientDataError(err):
		s.logger.Warn("association test skipped: %v", err)
	case err != nil:
		return nil, err
	default:
		out.association = assoc
		out.tests = append(out.tests, analyticRecord(assoc, s.cfg.Thresholds.ClassifyChiSquare(assoc.ChiSquare, assoc.CramersV)))

		res, err := tester.Permute(ctx, labels, nil, significance.ChiSquareStatistic(sections), permOpts)
		if err != nil {
			return nil, err
		}
		v := assoc.CramersV
		out.tests = append(out.tests, significance.Summarize(FamilyAssociation, associationName, "chi2_permutation", res, &v, s.cfg.Thresholds))
	}

	contrasts := make([]*stats.NullModelResult, len(known))
	intervals := make([]*stats.BootstrapResult, len(known)+1)
	samples := make([][]float64, len(known)+1)
	for i, name := range known {
		for j, sec := range sections {
			if sec == name {
				samples[i] = append(samples[i], diffs[j])
			}
		}
	}
	samples[len(known)] = diffs

	sem := semaphore.NewWeighted(int64(max(s.cfg.Run.Workers, 1)))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range known {
		i, name := i, name
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			opts := permOpts
			opts.Tail = stats.TailBoth
			res, err := tester.Permute(gctx, labels, nil, leftFracContrast(sections, name), opts)
			if err != nil {
				return err
			}
			contrasts[i] = res
			return nil
		})
	}
	for i := range samples {
		i := i
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			res, err := tester.Bootstrap(gctx, samples[i], significance.Mean, significance.BootstrapOptions{
				NBoot:   s.cfg.Run.NBoot,
				Seed:    s.cfg.Run.Seed,
				CILevel: s.cfg.Run.CILevel,
			})
			if err != nil {
				return err
			}
			intervals[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	family := significance.NewFamily(FamilySectionLeft)
	for i, name := range known {
		family.Add(name, contrasts[i])
	}
	for _, m := range family.Correct() {
		out.tests = append(out.tests, significance.Summarize(family.Name, m.Name, "permutation", m.Result, nil, s.cfg.Thresholds))
	}

	for i, res := range intervals {
		name := allSectionsName
		if i < len(known) {
			name = known[i]
		}
		out.intervals = append(out.intervals, stats.NewIntervalRecord(FamilyMeanAxisDiff, name, "mean", len(samples[i]), res))
	}

	s.logger.Info("significance: %d tests, %d intervals over %d sections", len(out.tests), len(out.intervals), len(known))
	return out, nil
}

// analyticRecord reports a χ² test against its own reference distribution,
// whose mean is df and standard deviation sqrt(2df)
func analyticRecord(res *significance.ContingencyResult, label verdict.Label) stats.TestRecord {
	df := float64(res.DF)
	sd := math.Sqrt(2 * df)
	z := (res.ChiSquare - df) / sd
	v := res.CramersV
	return stats.TestRecord{
		Family:            FamilyAssociation,
		Name:              associationName,
		Method:            "chi2_" + string(res.Method),
		ObservedStatistic: res.ChiSquare,
		NullMean:          df,
		NullStd:           sd,
		ZScore:            &z,
		EffectSize:        &v,
		PValue:            res.PValue,
		Verdict:           label,
	}
}

// leftFracContrast is the left-verdict fraction inside section minus the
// fraction outside it
func leftFracContrast(sections []string, section string) significance.LabelStatistic {
	return func(labels []string) float64 {
		var inLeft, inN, outLeft, outN float64
		for i, l := range labels {
			left := 0.0
			if l == string(tokens.VerdictLeft) {
				left = 1
			}
			if sections[i] == section {
				inLeft += left
				inN++
			} else {
				outLeft += left
				outN++
			}
		}
		if inN == 0 || outN == 0 {
			return math.NaN()
		}
		return inLeft/inN - outLeft/outN
	}
}

func distinct(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
