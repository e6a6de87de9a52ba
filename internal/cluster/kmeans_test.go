package cluster

import (
	"testing"

	"glyphscore/domain/core"
	"glyphscore/domain/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(key string, count int, left, right float64) features.StructuralVector {
	return features.StructuralVector{Key: key, Count: count, LeftFrac: left, RightFrac: right, UnknownFrac: 1 - left - right}
}

func table(vs ...features.StructuralVector) map[string]features.StructuralVector {
	out := make(map[string]features.StructuralVector, len(vs))
	for _, v := range vs {
		out[v.Key] = v
	}
	return out
}

func twoGroups() map[string]features.StructuralVector {
	return table(
		vec("a1", 10, 0.9, 0.1),
		vec("a2", 5, 0.8, 0.1),
		vec("a3", 5, 0.85, 0.05),
		vec("b1", 9, 0.1, 0.9),
		vec("b2", 5, 0.05, 0.8),
		vec("b3", 5, 0.1, 0.85),
		vec("rare", 1, 0.5, 0.5),
	)
}

func TestCluster_SeparatesGroups(t *testing.T) {
	res, err := Cluster(twoGroups(), Options{
		Features: []string{features.FeatureLeftFrac, features.FeatureRightFrac},
		K:        2,
		MinCount: 2,
		MaxIters: 50,
	})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, []string{"rare"}, res.Excluded)
	require.Len(t, res.Assignments, 6)
	require.Len(t, res.Centers, 2)
	assert.Equal(t, "a1", res.Centers[0].SeedKey)
	assert.Equal(t, "b1", res.Centers[1].SeedKey)

	for _, a := range res.Assignments {
		want := 0
		if a.ItemKey[0] == 'b' {
			want = 1
		}
		assert.Equal(t, want, a.ClusterID, a.ItemKey)
		assert.GreaterOrEqual(t, a.DistanceToCenter, 0.0)
	}
	assert.Equal(t, 3, res.Centers[0].Size)
	assert.Equal(t, 3, res.Centers[1].Size)
}

func TestCluster_Deterministic(t *testing.T) {
	opts := Options{Features: features.DefaultFeatures, K: 3, MinCount: 1, MaxIters: 100}
	first, err := Cluster(twoGroups(), opts)
	require.NoError(t, err)
	second, err := Cluster(twoGroups(), opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCluster_SeedTieBreakByKey(t *testing.T) {
	res, err := Cluster(table(
		vec("c", 5, 0.1, 0.1),
		vec("b", 5, 0.2, 0.3),
		vec("a", 5, 0.9, 0.0),
	), Options{Features: []string{features.FeatureLeftFrac}, K: 1, MinCount: 0, MaxIters: 10})
	require.NoError(t, err)
	assert.Equal(t, "a", res.Centers[0].SeedKey)
}

func TestCluster_ConstantFeatureAndEmptyCluster(t *testing.T) {
	res, err := Cluster(table(
		vec("x", 4, 0.5, 0.5),
		vec("y", 4, 0.5, 0.5),
		vec("z", 4, 0.5, 0.5),
	), Options{Features: []string{features.FeatureLeftFrac}, K: 2, MinCount: 1, MaxIters: 10})
	require.NoError(t, err)

	assert.Equal(t, []float64{1.0}, res.Scale.Std, "zero spread falls back to unit std")
	for _, a := range res.Assignments {
		assert.Equal(t, 0, a.ClusterID, "ties go to the lowest cluster id")
		assert.Equal(t, 0.0, a.DistanceToCenter)
	}
	assert.Equal(t, 0, res.Centers[1].Size)
	assert.Equal(t, []float64{0}, res.Centers[1].Coords, "an empty cluster keeps its seed center")
	assert.True(t, res.Converged)
}

func TestCluster_MaxItersCapsIterations(t *testing.T) {
	res, err := Cluster(twoGroups(), Options{Features: features.DefaultFeatures, K: 2, MinCount: 0, MaxIters: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	assert.False(t, res.Converged)
	assert.Len(t, res.Assignments, 7)
}

func TestCluster_Errors(t *testing.T) {
	base := Options{Features: []string{features.FeatureLeftFrac}, K: 2, MinCount: 1, MaxIters: 10}

	tests := []struct {
		name  string
		opts  func(Options) Options
		check func(error) bool
	}{
		{"zero k", func(o Options) Options { o.K = 0; return o }, core.IsInsufficientDataError},
		{"zero iterations", func(o Options) Options { o.MaxIters = 0; return o }, core.IsInsufficientDataError},
		{"k above eligible", func(o Options) Options { o.K = 7; o.MinCount = 5; return o }, core.IsInsufficientDataError},
		{"unknown feature", func(o Options) Options { o.Features = []string{"hand"}; return o }, core.IsConfigError},
		{"no features", func(o Options) Options { o.Features = nil; return o }, core.IsConfigError},
		{"duplicate feature", func(o Options) Options { o.Features = []string{"count", "count"}; return o }, core.IsConfigError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Cluster(twoGroups(), tt.opts(base))
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}
