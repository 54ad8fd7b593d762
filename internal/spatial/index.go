package spatial

import (
	"math"

	"github.com/jengzang/region-insights-go/internal/models"
)

type regionKey struct {
	state    string
	district string
}

// IndexEntry is one canonical boundary
type IndexEntry struct {
	Ref        models.BoundaryRef
	geometry   *Geometry
	confidence float64
}

// Index holds boundaries keyed by canonical region at one level
type Index struct {
	Entries   []IndexEntry
	Unmatched []string

	level    Level
	byRegion map[regionKey]int
}

// Level returns the granularity the index was built at
func (idx *Index) Level() Level {
	return idx.level
}

func (idx *Index) lookup(key models.CanonicalKey) (IndexEntry, bool) {
	if !key.Resolved() {
		return IndexEntry{}, false
	}
	region := regionKey{state: key.State}
	if idx.level == LevelDistrict {
		if !key.HasDistrict() {
			return IndexEntry{}, false
		}
		region.district = key.District
	}
	i, ok := idx.byRegion[region]
	if !ok {
		return IndexEntry{}, false
	}
	return idx.Entries[i], true
}

// Locate returns the boundary containing the point
func (idx *Index) Locate(ll models.LatLng) (models.BoundaryRef, bool) {
	for _, e := range idx.Entries {
		if e.geometry.Contains(ll) {
			return e.Ref, true
		}
	}
	return models.BoundaryRef{}, false
}

// Nearest returns the boundary whose centroid is closest, with the distance in km
func (idx *Index) Nearest(ll models.LatLng) (models.BoundaryRef, float64, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, e := range idx.Entries {
		d := DistanceKm(ll, e.Ref.Centroid)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return models.BoundaryRef{}, 0, false
	}
	return idx.Entries[best].Ref, bestDist, true
}
