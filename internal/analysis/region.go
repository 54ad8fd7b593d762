package analysis

import (
	"cmp"
	"slices"
	"strings"

	"github.com/jengzang/region-insights-go/internal/metrics"
	"github.com/jengzang/region-insights-go/internal/models"
)

// Region names a canonical district
type Region struct {
	State    string `json:"state"`
	District string `json:"district"`
}

// GroupDistricts returns each resolved district's rows in period order.
// Regions come back sorted by state, then district.
func GroupDistricts(t *metrics.Table) ([]Region, map[Region][]models.RegionMetricsRow) {
	groups := make(map[Region][]models.RegionMetricsRow)
	for r := range t.All() {
		if !r.Key.Resolved() || !r.Key.HasDistrict() {
			continue
		}
		region := Region{State: r.Key.State, District: r.Key.District}
		groups[region] = append(groups[region], r)
	}

	regions := make([]Region, 0, len(groups))
	for region := range groups {
		regions = append(regions, region)
	}
	slices.SortFunc(regions, func(a, b Region) int {
		return cmp.Or(strings.Compare(a.State, b.State), strings.Compare(a.District, b.District))
	})
	return regions, groups
}

// CountLabels tallies a label per item
func CountLabels[T any](items []T, label func(T) string) map[string]int {
	counts := make(map[string]int)
	for _, it := range items {
		counts[label(it)]++
	}
	return counts
}
