// Package stats holds the descriptive statistics shared by the metrics,
// anomaly and analysis stages. Every function is total: empty or degenerate
// input yields 0 rather than NaN.
package stats

import (
	"math"
	"slices"
)

// Mean is the arithmetic mean, 0 for no values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sumSquares returns the squared deviations from the mean
func sumSquares(values []float64) float64 {
	m := Mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return ss
}

// Variance is the sample variance (n-1 denominator); 0 below two values
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return sumSquares(values) / float64(len(values)-1)
}

// PopulationVariance uses the n denominator
func PopulationVariance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sumSquares(values) / float64(len(values))
}

// StdDev is the sample standard deviation
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// PopulationStdDev is the population standard deviation
func PopulationStdDev(values []float64) float64 {
	return math.Sqrt(PopulationVariance(values))
}

// Median leaves values untouched
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := slices.Sorted(slices.Values(values))
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// CoefficientOfVariation is the sample std over the mean, 0 when the mean is 0
func CoefficientOfVariation(values []float64) float64 {
	return SafeDiv(StdDev(values), Mean(values))
}

// Standardize maps values to z-scores against the population std.
// A constant column maps to zeros.
func Standardize(values []float64) []float64 {
	z := make([]float64, len(values))
	m, sd := Mean(values), PopulationStdDev(values)
	if sd == 0 {
		return z
	}
	for i, v := range values {
		z[i] = (v - m) / sd
	}
	return z
}
