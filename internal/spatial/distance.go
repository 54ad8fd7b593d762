package spatial

import (
	"github.com/golang/geo/s2"

	"github.com/jengzang/region-insights-go/internal/models"
)

// EarthRadiusKm is the mean Earth radius used to scale s2 angles and areas
const EarthRadiusKm = 6371.0088

func toS2(ll models.LatLng) s2.LatLng {
	return s2.LatLngFromDegrees(ll.Lat, ll.Lng)
}

// DistanceKm is the great-circle distance between two points
func DistanceKm(a, b models.LatLng) float64 {
	return toS2(a).Distance(toS2(b)).Radians() * EarthRadiusKm
}
