package stats

import "math"

// Clamp limits v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// SafeDiv returns 0 instead of NaN or an infinity, including for a zero denominator
func SafeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return Finite(num / den)
}

// Finite replaces NaN and infinities with 0
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
