package spatial

import (
	"errors"
	"fmt"

	"github.com/golang/geo/s2"

	"github.com/jengzang/region-insights-go/internal/models"
)

// ErrEmptyGeometry is returned for boundaries without a usable ring
var ErrEmptyGeometry = errors.New("boundary has no ring with three or more vertices")

// Ring is a closed or open sequence of vertices
type Ring []models.LatLng

// BoundaryRecord is one boundary as read from a dataset, names still raw.
// Polygons hold rings; the first ring of each polygon is its outer edge.
type BoundaryRecord struct {
	ID           string
	StateName    string
	DistrictName string
	Polygons     [][]Ring
}

// Geometry wraps an s2 polygon built from a BoundaryRecord
type Geometry struct {
	polygon *s2.Polygon
}

// NewGeometry builds the s2 polygon. Rings are normalized so orientation in
// the source file does not matter and duplicate closing vertices are dropped.
func NewGeometry(rec BoundaryRecord) (*Geometry, error) {
	var loops []*s2.Loop
	for _, polygon := range rec.Polygons {
		for _, ring := range polygon {
			points := ringPoints(ring)
			if len(points) < 3 {
				continue
			}
			loop := s2.LoopFromPoints(points)
			loop.Normalize()
			loops = append(loops, loop)
		}
	}
	if len(loops) == 0 {
		return nil, fmt.Errorf("boundary %q: %w", rec.ID, ErrEmptyGeometry)
	}
	return &Geometry{polygon: s2.PolygonFromLoops(loops)}, nil
}

func ringPoints(ring Ring) []s2.Point {
	points := make([]s2.Point, 0, len(ring))
	for i, v := range ring {
		if i > 0 && v == ring[i-1] {
			continue
		}
		points = append(points, s2.PointFromLatLng(toS2(v)))
	}
	if n := len(points); n > 1 && points[0] == points[n-1] {
		points = points[:n-1]
	}
	return points
}

// Centroid returns the area-weighted centroid
func (g *Geometry) Centroid() models.LatLng {
	c := g.polygon.Centroid()
	if c.Norm() == 0 {
		return models.LatLng{}
	}
	ll := s2.LatLngFromPoint(s2.Point{Vector: c.Normalize()})
	return models.LatLng{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()}
}

// AreaKm2 returns the surface area in square kilometers
func (g *Geometry) AreaKm2() float64 {
	return g.polygon.Area() * EarthRadiusKm * EarthRadiusKm
}

// Contains reports whether the point lies inside the boundary
func (g *Geometry) Contains(ll models.LatLng) bool {
	return g.polygon.ContainsPoint(s2.PointFromLatLng(toS2(ll)))
}
