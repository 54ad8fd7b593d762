package stats

import (
	"slices"
	"sort"
)

// Ranker answers repeated percentile-rank queries against one distribution
type Ranker struct {
	sorted []float64
}

// NewRanker sorts a copy of values once
func NewRanker(values []float64) *Ranker {
	return &Ranker{sorted: slices.Sorted(slices.Values(values))}
}

// Rank returns the fraction (0-1) of values less than or equal to v.
// Ties share the highest rank, so the maximum always ranks 1.
func (r *Ranker) Rank(v float64) float64 {
	if len(r.sorted) == 0 {
		return 0
	}
	n := sort.Search(len(r.sorted), func(i int) bool { return r.sorted[i] > v })
	return float64(n) / float64(len(r.sorted))
}
