package stats

// Slope fits y against its positions 0..n-1 by least squares.
// Fewer than two points have no slope.
func Slope(y []float64) float64 {
	n := float64(len(y))
	if n < 2 {
		return 0
	}
	// positions are 0..n-1, so their mean is (n-1)/2
	meanX, meanY := (n-1)/2, Mean(y)
	var sxy, sxx float64
	for i, v := range y {
		dx := float64(i) - meanX
		sxy += dx * (v - meanY)
		sxx += dx * dx
	}
	return sxy / sxx
}
