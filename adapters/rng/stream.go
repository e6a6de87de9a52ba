package rng

import (
	"context"
	"hash/fnv"
	"math/rand"

	"glyphscore/ports"
)

// StreamAdapter implements ports.RNGPort with deterministic streams derived
// from a base seed and the names of the run, stage and key
type StreamAdapter struct{}

var _ ports.RNGPort = (*StreamAdapter)(nil)

// NewStreamAdapter creates a new stream adapter
func NewStreamAdapter() *StreamAdapter {
	return &StreamAdapter{}
}

// SeededStream creates a deterministic random number generator for a named operation
func (a *StreamAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewSource(mix(seed, name))), nil
}

// Stream creates a deterministic RNG stream for a specific run/stage/key.
// Identical arguments always replay the same sequence.
func (a *StreamAdapter) Stream(ctx context.Context, runID, stageName, key string, baseSeed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewSource(mix(baseSeed, runID, stageName, key))), nil
}

// mix folds the seed and every name into one 64-bit FNV-1a hash. Names are
// separated so ("ab","c") and ("a","bc") do not collide.
func mix(seed int64, names ...string) int64 {
	h := fnv.New64a()
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(uint64(seed) >> (8 * i))
	}
	h.Write(buf[:])
	for _, n := range names {
		h.Write([]byte{0})
		h.Write([]byte(n))
	}
	return int64(h.Sum64())
}
