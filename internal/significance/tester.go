// Package significance certifies whether an aggregate pattern is
// distinguishable from chance: permutation nulls, bootstrap confidence
// intervals, Bonferroni correction and contingency χ² tests.
//
// Randomized procedures split their trials into fixed-size blocks. Each block
// draws from its own stream seeded by (seed, block index), so a result
// depends only on the seed and the trial count, never on the worker count.
package significance

import (
	"context"
	"fmt"
	"math/rand"

	"glyphscore/internal"
	"glyphscore/ports"

	"golang.org/x/sync/errgroup"
)

// trialBlock is the number of trials drawn from one RNG stream
const trialBlock = 64

// Tester runs randomized significance procedures over a bounded worker pool
type Tester struct {
	rng     ports.RNGPort
	workers int
	logger  *internal.Logger
}

// NewTester creates a tester; workers <= 0 means a single worker
func NewTester(rng ports.RNGPort, workers int, logger *internal.Logger) *Tester {
	if workers <= 0 {
		workers = 1
	}
	return &Tester{rng: rng, workers: workers, logger: logger.With("significance")}
}

// runBlocks fans n trials out in blocks and calls fn with each block's stream
// and trial range [lo, hi). fn must write only inside its own range.
func (t *Tester) runBlocks(ctx context.Context, stage string, seed int64, n int, fn func(r *rand.Rand, lo, hi int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	for block := 0; block*trialBlock < n; block++ {
		block := block
		g.Go(func() error {
			r, err := t.rng.Stream(ctx, "", stage, fmt.Sprintf("block-%d", block), seed)
			if err != nil {
				return err
			}
			lo := block * trialBlock
			fn(r, lo, min(lo+trialBlock, n))
			return nil
		})
	}
	return g.Wait()
}
