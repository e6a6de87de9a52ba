package stats

import (
	"math"
	"testing"

	"glyphscore/domain/core"
	"glyphscore/domain/verdict"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullModelResult_ZScore(t *testing.T) {
	res := &NullModelResult{ObservedStatistic: 5, NullDistribution: []float64{1, 2, 3}}
	z, err := res.ZScore()
	require.NoError(t, err)
	assert.InDelta(t, 3.0, z, 1e-12) // mean 2, sample sd 1

	flat := &NullModelResult{ObservedStatistic: 5, NullDistribution: []float64{2, 2, 2}}
	z, err = flat.ZScore()
	assert.True(t, core.IsDegenerateStatisticError(err))
	assert.True(t, math.IsNaN(z), "undefined z must not be coerced to a number")
}

func TestQuantile(t *testing.T) {
	values := []float64{4, 1, 3, 2, 5}
	assert.Equal(t, 1.0, Quantile(values, 0))
	assert.Equal(t, 5.0, Quantile(values, 1))
	assert.Equal(t, []float64{4, 1, 3, 2, 5}, values, "input must not be reordered")
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestNewTestRecord_UndefinedZ(t *testing.T) {
	res := &NullModelResult{ObservedStatistic: 1, NullDistribution: []float64{0, 0}, PValue: 0}
	rec := NewTestRecord("fam", "t1", "permutation", res, nil, verdict.LabelFail)
	assert.Nil(t, rec.ZScore)
	assert.Equal(t, 0.0, rec.NullStd)

	p := 0.5
	res.CorrectedPValue = &p
	assert.Equal(t, 0.5, res.Corrected())
}
