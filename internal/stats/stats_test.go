package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoments(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.Equal(t, 5.0, Mean(values))
	assert.InDelta(t, 4.0, PopulationVariance(values), 1e-12)
	assert.InDelta(t, 2.0, PopulationStdDev(values), 1e-12)
	assert.InDelta(t, 32.0/7.0, Variance(values), 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7.0)/5.0, CoefficientOfVariation(values), 1e-12)
	assert.Equal(t, 4.5, Median(values))

	unsorted := []float64{9, 1, 4}
	assert.Equal(t, 4.0, Median(unsorted))
	assert.Equal(t, []float64{9, 1, 4}, unsorted, "median must not reorder its input")
}

func TestEmptyAndDegenerateInputs(t *testing.T) {
	assert.Zero(t, Mean(nil))
	assert.Zero(t, Median(nil))
	assert.Zero(t, Variance([]float64{3}))
	assert.Zero(t, CoefficientOfVariation([]float64{-1, 1}), "zero mean")
	assert.Equal(t, []float64{0, 0, 0}, Standardize([]float64{7, 7, 7}))
}

func TestStandardize(t *testing.T) {
	z := Standardize([]float64{1, 2, 3})
	assert.InDelta(t, 0, Mean(z), 1e-12)
	assert.InDelta(t, 1, PopulationStdDev(z), 1e-12)
	assert.Less(t, z[0], z[1])
}

func TestSafeDivAndFinite(t *testing.T) {
	assert.Equal(t, 0.5, SafeDiv(1, 2))
	assert.Zero(t, SafeDiv(1, 0))
	assert.Zero(t, SafeDiv(math.Inf(1), 1))
	assert.Zero(t, Finite(math.NaN()))
	assert.Equal(t, 3.0, Finite(3))
	assert.Equal(t, 1.0, Clamp(5, 0, 1))
	assert.Equal(t, 0.0, Clamp(-5, 0, 1))
}

func TestRanker(t *testing.T) {
	r := NewRanker([]float64{3, 1, 2, 2})
	assert.Equal(t, 0.0, r.Rank(0))
	assert.Equal(t, 0.75, r.Rank(2))
	assert.Equal(t, 1.0, r.Rank(3))
	assert.Zero(t, NewRanker(nil).Rank(1))
}

func TestSlope(t *testing.T) {
	assert.InDelta(t, 2.0, Slope([]float64{1, 3, 5, 7}), 1e-12)
	assert.InDelta(t, -0.5, Slope([]float64{2, 1.5, 1}), 1e-12)
	assert.Zero(t, Slope([]float64{5, 5, 5}))
	assert.Zero(t, Slope([]float64{5}))
}
