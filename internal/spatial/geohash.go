package spatial

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jengzang/region-insights-go/internal/models"
)

// Base32 alphabet for geohash
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// DefaultGeohashPrecision gives cells of roughly 5 km, enough to tell district centroids apart
const DefaultGeohashPrecision = 5

// EncodeGeohash encodes latitude and longitude into a geohash string
// precision: number of characters in the geohash (1-12)
func EncodeGeohash(lat, lon float64, precision int) string {
	precision = min(max(precision, 1), 12)

	latRange := [2]float64{-90, 90}
	lonRange := [2]float64{-180, 180}

	var b strings.Builder
	b.Grow(precision)
	even := true
	for b.Len() < precision {
		ch := 0
		for i := 0; i < 5; i++ {
			ch <<= 1
			if even {
				if bisect(&lonRange, lon) {
					ch |= 1
				}
			} else if bisect(&latRange, lat) {
				ch |= 1
			}
			even = !even
		}
		b.WriteByte(base32[ch])
	}
	return b.String()
}

// ErrInvalidGeohash is returned for empty, overlong or non-base32 geohashes
var ErrInvalidGeohash = errors.New("invalid geohash")

// DecodeGeohash returns the center of a geohash cell
func DecodeGeohash(geohash string) (models.LatLng, error) {
	geohash = strings.ToLower(strings.TrimSpace(geohash))
	if geohash == "" || len(geohash) > 12 {
		return models.LatLng{}, fmt.Errorf("%w: %q", ErrInvalidGeohash, geohash)
	}

	latRange := [2]float64{-90, 90}
	lonRange := [2]float64{-180, 180}

	even := true
	for i := 0; i < len(geohash); i++ {
		idx := strings.IndexByte(base32, geohash[i])
		if idx < 0 {
			return models.LatLng{}, fmt.Errorf("%w: %q", ErrInvalidGeohash, geohash)
		}
		for mask := 16; mask > 0; mask >>= 1 {
			r := &latRange
			if even {
				r = &lonRange
			}
			mid := (r[0] + r[1]) / 2
			if idx&mask != 0 {
				r[0] = mid
			} else {
				r[1] = mid
			}
			even = !even
		}
	}
	return models.LatLng{Lat: (latRange[0] + latRange[1]) / 2, Lng: (lonRange[0] + lonRange[1]) / 2}, nil
}

// bisect halves r toward v and reports whether v fell in the upper half
func bisect(r *[2]float64, v float64) bool {
	mid := (r[0] + r[1]) / 2
	if v > mid {
		r[0] = mid
		return true
	}
	r[1] = mid
	return false
}
