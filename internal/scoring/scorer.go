package scoring

import (
	"context"

	"glyphscore/domain/core"
	"glyphscore/domain/rules"
	"glyphscore/domain/tokens"
	"glyphscore/internal"
	"glyphscore/internal/matcher"

	"golang.org/x/sync/errgroup"
)

// blockSize is the number of occurrences a single worker scores per task
const blockSize = 1024

// Score accumulates the votes of every matching rule for one token.
// hits == 0 yields unknown; equal non-zero sides (or zero-weight hits) yield tie.
func Score(token, section string, rs *rules.RuleSet) tokens.TokenVerdict {
	var v tokens.TokenVerdict
	rs.Each(func(r *rules.Rule) {
		if !matcher.Match(token, section, r) {
			return
		}
		w := r.EffectiveWeight(section)
		if r.PredictedSide == rules.SideLeft {
			v.LeftScore += w
		} else {
			v.RightScore += w
		}
		v.RuleHitCount++
	})

	switch {
	case v.RuleHitCount == 0:
		v.PredictedSide = tokens.VerdictUnknown
	case v.LeftScore == v.RightScore:
		v.PredictedSide = tokens.VerdictTie
	case v.LeftScore > v.RightScore:
		v.PredictedSide = tokens.VerdictLeft
	default:
		v.PredictedSide = tokens.VerdictRight
	}
	return v
}

// Scorer scores occurrences against one shared, read-only rule set
type Scorer struct {
	rules   *rules.RuleSet
	workers int
	logger  *internal.Logger
}

// NewScorer creates a scorer; workers <= 0 means a single worker
func NewScorer(rs *rules.RuleSet, workers int, logger *internal.Logger) *Scorer {
	if workers <= 0 {
		workers = 1
	}
	return &Scorer{rules: rs, workers: workers, logger: logger.With("scorer")}
}

// Score scores a single occurrence
func (s *Scorer) Score(o tokens.Occurrence) tokens.TokenVerdict {
	return Score(o.SurfaceForm, o.Section, s.rules)
}

// ScoreCorpus scores every occurrence, returning verdicts in input order.
// Blocks are scored concurrently; each writes only its own slice range.
func (s *Scorer) ScoreCorpus(ctx context.Context, occurrences []tokens.Occurrence) ([]tokens.TokenVerdict, error) {
	if len(occurrences) == 0 {
		return nil, core.NewInsufficientDataError("corpus has no occurrences to score")
	}

	out := make([]tokens.TokenVerdict, len(occurrences))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for start := 0; start < len(occurrences); start += blockSize {
		start := start
		end := min(start+blockSize, len(occurrences))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				out[i] = s.Score(occurrences[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("scored %d occurrences against %d rules (%s)", len(occurrences), s.rules.Len(), core.Hash(s.rules.Hash()).Short())
	return out, nil
}

// RuleCoverage counts how many occurrences each rule fires on.
// Rules that never fire are reported with a zero count.
func (s *Scorer) RuleCoverage(occurrences []tokens.Occurrence) map[core.RuleID]int {
	coverage := make(map[core.RuleID]int, s.rules.Len())
	s.rules.Each(func(r *rules.Rule) {
		coverage[r.ID] = 0
	})
	for _, o := range occurrences {
		s.rules.Each(func(r *rules.Rule) {
			if matcher.Match(o.SurfaceForm, o.Section, r) {
				coverage[r.ID]++
			}
		})
	}
	return coverage
}
