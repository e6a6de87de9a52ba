// Package cluster groups structural vectors with deterministic k-means in
// z-score space. Seeding uses no randomness: the k highest-count keys become
// the initial centers, ties broken by ascending key.
package cluster

import (
	"fmt"
	"math"
	"sort"

	"glyphscore/domain/core"
	"glyphscore/domain/features"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Options configures one clustering run
type Options struct {
	Features []string
	K        int
	MinCount int
	MaxIters int
}

// Validate checks the run parameters that do not depend on the data
func (o Options) Validate() error {
	if len(o.Features) == 0 {
		return core.NewConfigError("features", "at least one feature is required")
	}
	seen := make(map[string]bool, len(o.Features))
	for _, f := range o.Features {
		if _, err := (features.StructuralVector{}).Feature(f); err != nil {
			return err
		}
		if seen[f] {
			return core.NewConfigError("features", fmt.Sprintf("duplicate feature %q", f))
		}
		seen[f] = true
	}
	if o.K <= 0 {
		return core.NewInsufficientDataError(fmt.Sprintf("k must be positive, got %d", o.K))
	}
	if o.MaxIters <= 0 {
		return core.NewInsufficientDataError(fmt.Sprintf("max_iters must be positive, got %d", o.MaxIters))
	}
	return nil
}

// Scale records the per-feature normalization applied before clustering
type Scale struct {
	Mean []float64
	Std  []float64 // population std; 1.0 where the feature was constant
}

// Result is the output of one clustering run
type Result struct {
	Assignments []features.ClusterAssignment // ascending item key
	Centers     []features.ClusterCenter     // z-score space, by cluster id
	Scale       Scale
	Excluded    []string // keys below MinCount, ascending
	Iterations  int
	Converged   bool
}

// Cluster runs Lloyd's algorithm over the vectors whose count reaches MinCount
func Cluster(vectors map[string]features.StructuralVector, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var keys, excluded []string
	for _, k := range features.SortedKeys(vectors) {
		if vectors[k].Count < opts.MinCount {
			excluded = append(excluded, k)
			continue
		}
		keys = append(keys, k)
	}
	if opts.K > len(keys) {
		return nil, core.NewInsufficientDataError(fmt.Sprintf("k=%d exceeds %d eligible items (min_count=%d)", opts.K, len(keys), opts.MinCount))
	}

	points, scale, err := normalize(vectors, keys, opts.Features)
	if err != nil {
		return nil, err
	}

	seeds := seedIndices(vectors, keys, opts.K)
	centers := make([][]float64, opts.K)
	for c, idx := range seeds {
		centers[c] = append([]float64(nil), points[idx]...)
	}

	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}

	res := &Result{Scale: scale, Excluded: excluded}
	for iter := 0; iter < opts.MaxIters; iter++ {
		changed := false
		for i, p := range points {
			if c := nearest(p, centers); c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		res.Iterations = iter + 1
		if !changed {
			res.Converged = true
			break
		}
		updateCenters(points, assign, centers)
	}

	sizes := make([]int, opts.K)
	res.Assignments = make([]features.ClusterAssignment, len(points))
	for i, p := range points {
		c := assign[i]
		sizes[c]++
		res.Assignments[i] = features.ClusterAssignment{
			ItemKey:          keys[i],
			ClusterID:        c,
			DistanceToCenter: floats.Distance(p, centers[c], 2),
		}
	}
	res.Centers = make([]features.ClusterCenter, opts.K)
	for c := range centers {
		res.Centers[c] = features.ClusterCenter{
			ClusterID: c,
			SeedKey:   keys[seeds[c]],
			Size:      sizes[c],
			Coords:    centers[c],
		}
	}
	return res, nil
}

// normalize z-scores every feature with the population mean and std
func normalize(vectors map[string]features.StructuralVector, keys []string, names []string) ([][]float64, Scale, error) {
	points := make([][]float64, len(keys))
	for i, k := range keys {
		points[i] = make([]float64, len(names))
		for j, name := range names {
			v, err := vectors[k].Feature(name)
			if err != nil {
				return nil, Scale{}, err
			}
			points[i][j] = v
		}
	}

	scale := Scale{Mean: make([]float64, len(names)), Std: make([]float64, len(names))}
	column := make([]float64, len(points))
	for j := range names {
		for i := range points {
			column[i] = points[i][j]
		}
		mean, variance := stat.PopMeanVariance(column, nil)
		std := math.Sqrt(variance)
		if std == 0 || math.IsNaN(std) {
			std = 1.0
		}
		scale.Mean[j], scale.Std[j] = mean, std
		for i := range points {
			points[i][j] = (points[i][j] - mean) / std
		}
	}
	return points, scale, nil
}

// seedIndices picks the k highest-count keys, ties broken by ascending key.
// keys is already ascending, so a stable sort on count keeps that order.
func seedIndices(vectors map[string]features.StructuralVector, keys []string, k int) []int {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return vectors[keys[idx[a]]].Count > vectors[keys[idx[b]]].Count
	})
	return idx[:k]
}

// nearest returns the closest center by squared distance, lowest id on ties
func nearest(p []float64, centers [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		var d float64
		for j := range p {
			diff := p[j] - center[j]
			d += diff * diff
		}
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// updateCenters moves each non-empty cluster to the mean of its members.
// Empty clusters keep their previous center.
func updateCenters(points [][]float64, assign []int, centers [][]float64) {
	dims := len(centers[0])
	sums := make([][]float64, len(centers))
	counts := make([]int, len(centers))
	for c := range sums {
		sums[c] = make([]float64, dims)
	}
	for i, p := range points {
		floats.Add(sums[assign[i]], p)
		counts[assign[i]]++
	}
	for c := range centers {
		if counts[c] == 0 {
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
		copy(centers[c], sums[c])
	}
}
