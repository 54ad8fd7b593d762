package cluster

import (
	"math"
	"math/rand/v2"
)

// KMeans holds the settings of a Lloyd k-means run with k-means++ seeding
type KMeans struct {
	K          int
	Restarts   int
	Iterations int
	Seed       uint64
}

// DefaultKMeans mirrors the defaults used for district segmentation
func DefaultKMeans() KMeans {
	return KMeans{K: 4, Restarts: 10, Iterations: 300, Seed: 42}
}

// Fit assigns every point to a cluster and returns the labels and centroids.
// K is reduced to the number of points when there are fewer points than clusters.
// The same seed always yields the same assignment.
func (km KMeans) Fit(points [][]float64) ([]int, [][]float64) {
	n := len(points)
	if n == 0 || km.K <= 0 {
		return nil, nil
	}
	k := min(km.K, n)
	rng := rand.New(rand.NewPCG(km.Seed, km.Seed^0x9e3779b97f4a7c15))

	var bestLabels []int
	var bestCentroids [][]float64
	bestInertia := math.Inf(1)
	for range max(km.Restarts, 1) {
		centroids := seed(points, k, rng)
		labels, inertia := lloyd(points, centroids, max(km.Iterations, 1))
		if inertia < bestInertia {
			bestInertia = inertia
			bestLabels = labels
			bestCentroids = centroids
		}
	}
	return bestLabels, bestCentroids
}

// seed picks initial centroids with k-means++
func seed(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			dist[i] = nearest(p, centroids)
			total += dist[i]
		}
		// All remaining points coincide with a centroid
		if total == 0 {
			centroids = append(centroids, clone(points[rng.IntN(len(points))]))
			continue
		}
		target := rng.Float64() * total
		idx := len(points) - 1
		for i, d := range dist {
			target -= d
			if target < 0 {
				idx = i
				break
			}
		}
		centroids = append(centroids, clone(points[idx]))
	}
	return centroids
}

// lloyd refines centroids in place until assignments stop changing
func lloyd(points [][]float64, centroids [][]float64, iterations int) ([]int, float64) {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	dim := len(points[0])

	for range iterations {
		changed := false
		for i, p := range points {
			best := closest(p, centroids)
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			counts[labels[i]]++
			for d, v := range p {
				sums[labels[i]][d] += v
			}
		}
		for c := range centroids {
			// An emptied cluster keeps its previous centroid
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	var inertia float64
	for i, p := range points {
		inertia += sqDist(p, centroids[labels[i]])
	}
	return labels, inertia
}

func closest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func nearest(p []float64, centroids [][]float64) float64 {
	return sqDist(p, centroids[closest(p, centroids)])
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(p []float64) []float64 {
	return append([]float64(nil), p...)
}
