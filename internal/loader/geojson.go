package loader

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jengzang/region-insights-go/internal/models"
	"github.com/jengzang/region-insights-go/internal/spatial"
)

// PropertyKeys names the feature properties that carry boundary names
type PropertyKeys struct {
	ID       string
	State    string
	District string
}

// DefaultPropertyKeys matches the common Indian district GeoJSON exports
func DefaultPropertyKeys() PropertyKeys {
	return PropertyKeys{ID: "id", State: "st_nm", District: "district"}
}

// ReadBoundaries parses a GeoJSON FeatureCollection. Features that are not
// polygons or multipolygons are skipped.
func ReadBoundaries(r io.Reader, keys PropertyKeys, logger *slog.Logger) ([]spatial.BoundaryRecord, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read boundaries: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse boundaries: %w", err)
	}

	records := make([]spatial.BoundaryRecord, 0, len(fc.Features))
	skipped := 0
	for i, f := range fc.Features {
		var polygons []orb.Polygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polygons = []orb.Polygon{g}
		case orb.MultiPolygon:
			polygons = g
		default:
			skipped++
			continue
		}

		rec := spatial.BoundaryRecord{
			ID:           featureID(f, keys.ID, i),
			StateName:    f.Properties.MustString(keys.State, ""),
			DistrictName: f.Properties.MustString(keys.District, ""),
			Polygons:     make([][]spatial.Ring, 0, len(polygons)),
		}
		for _, p := range polygons {
			rings := make([]spatial.Ring, 0, len(p))
			for _, ring := range p {
				rings = append(rings, toRing(ring))
			}
			rec.Polygons = append(rec.Polygons, rings)
		}
		records = append(records, rec)
	}

	logger.Info("read boundaries", "component", "loader", "features", len(fc.Features), "skipped", skipped)
	return records, nil
}

// LoadBoundaries reads a GeoJSON file from disk
func LoadBoundaries(path string, keys PropertyKeys, logger *slog.Logger) ([]spatial.BoundaryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open boundaries: %w", err)
	}
	defer f.Close()
	return ReadBoundaries(f, keys, logger)
}

func featureID(f *geojson.Feature, key string, i int) string {
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	if v, ok := f.Properties[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return strconv.Itoa(i)
}

// toRing converts GeoJSON [lng, lat] positions
func toRing(r orb.Ring) spatial.Ring {
	out := make(spatial.Ring, len(r))
	for i, p := range r {
		out[i] = models.LatLng{Lat: p.Lat(), Lng: p.Lon()}
	}
	return out
}
