package spatial

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/jengzang/region-insights-go/internal/models"
	"github.com/jengzang/region-insights-go/internal/normalize"
)

// ErrInvalidLevel is returned for granularities other than state and district
var ErrInvalidLevel = errors.New("invalid boundary level")

// Level is the granularity boundaries and rows are joined at
type Level string

const (
	LevelState    Level = "state"
	LevelDistrict Level = "district"
)

// ParseLevel validates a level name
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelState, LevelDistrict:
		return l, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Presentation is the rendering mode a caller should use for a match result
type Presentation string

const (
	PresentationChoropleth    Presentation = "choropleth"
	PresentationTableFallback Presentation = "table_fallback"
)

// MatcherOptions tunes boundary matching
type MatcherOptions struct {
	// CoverageFloor is the matched share below which coverage is degraded
	CoverageFloor    float64
	GeohashPrecision int
}

// DefaultMatcherOptions returns the production options
func DefaultMatcherOptions() MatcherOptions {
	return MatcherOptions{CoverageFloor: 0.5, GeohashPrecision: DefaultGeohashPrecision}
}

// MatchResult aligns metrics rows with boundaries
type MatchResult struct {
	Level    Level                  `json:"level"`
	Matches  []models.BoundaryMatch `json:"matches"`
	Matched  int                    `json:"matched"`
	Total    int                    `json:"total"`
	Coverage float64                `json:"coverage_ratio"`
	Floor    float64                `json:"coverage_floor"`
	// Degraded is set when Coverage < Floor, including when there are no rows
	Degraded bool `json:"degraded"`
	// UnmatchedBoundaries lists boundary names that normalized to no canonical region
	UnmatchedBoundaries []string `json:"unmatched_boundaries,omitempty"`
}

// Presentation picks a map only when coverage is adequate
func (r *MatchResult) Presentation() Presentation {
	if r.Degraded {
		return PresentationTableFallback
	}
	return PresentationChoropleth
}

// Matcher joins metrics rows to boundary records by normalized name
type Matcher struct {
	normalizer *normalize.Normalizer
	opts       MatcherOptions
	logger     *slog.Logger
}

// NewMatcher creates a Matcher; a nil logger falls back to slog.Default
func NewMatcher(n *normalize.Normalizer, opts MatcherOptions, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{normalizer: n, opts: opts, logger: logger.With("component", "geo")}
}

// Attach matches every row to at most one boundary at the given level.
// Low coverage is reported on the result, never as an error.
func (m *Matcher) Attach(rows []models.RegionMetricsRow, boundaries []BoundaryRecord, level Level) (*MatchResult, error) {
	idx, err := m.Index(boundaries, level)
	if err != nil {
		return nil, err
	}

	res := &MatchResult{
		Level:               level,
		Matches:             make([]models.BoundaryMatch, len(rows)),
		Total:               len(rows),
		Floor:               m.opts.CoverageFloor,
		UnmatchedBoundaries: idx.Unmatched,
	}
	for i, row := range rows {
		match := models.BoundaryMatch{Key: row.Key}
		if entry, ok := idx.lookup(row.Key); ok {
			ref := entry.Ref
			match.Boundary = &ref
			match.Confidence = entry.confidence
			res.Matched++
		}
		res.Matches[i] = match
	}

	if res.Total > 0 {
		res.Coverage = float64(res.Matched) / float64(res.Total)
	}
	res.Degraded = res.Coverage < res.Floor

	log := m.logger.Info
	if res.Degraded {
		log = m.logger.Warn
	}
	log("attached boundaries",
		"level", level,
		"matched", res.Matched,
		"total", res.Total,
		"coverage", res.Coverage,
		"presentation", res.Presentation(),
	)
	return res, nil
}

// Index normalizes boundary names at the given level and builds their geometry.
// The first boundary wins when two normalize to the same region.
func (m *Matcher) Index(boundaries []BoundaryRecord, level Level) (*Index, error) {
	if level != LevelState && level != LevelDistrict {
		return nil, fmt.Errorf("failed to index boundaries: %w: %q", ErrInvalidLevel, level)
	}

	idx := &Index{level: level, byRegion: make(map[regionKey]int)}
	for _, rec := range boundaries {
		region, confidence, ok := m.resolve(rec, level)
		if !ok {
			idx.Unmatched = append(idx.Unmatched, boundaryLabel(rec))
			continue
		}
		if _, dup := idx.byRegion[region]; dup {
			continue
		}

		geom, err := NewGeometry(rec)
		if err != nil {
			m.logger.Warn("skipping boundary geometry", "id", rec.ID, "error", err)
			idx.Unmatched = append(idx.Unmatched, boundaryLabel(rec))
			continue
		}

		centroid := geom.Centroid()
		idx.byRegion[region] = len(idx.Entries)
		idx.Entries = append(idx.Entries, IndexEntry{
			Ref: models.BoundaryRef{
				ID:       rec.ID,
				State:    region.state,
				District: region.district,
				Centroid: centroid,
				AreaKm2:  math.Round(geom.AreaKm2()*100) / 100,
				Geohash:  EncodeGeohash(centroid.Lat, centroid.Lng, m.opts.GeohashPrecision),
			},
			geometry:   geom,
			confidence: confidence,
		})
	}
	return idx, nil
}

func (m *Matcher) resolve(rec BoundaryRecord, level Level) (regionKey, float64, bool) {
	state := m.normalizer.State(rec.StateName)
	if !state.Resolved() {
		return regionKey{}, 0, false
	}
	if level == LevelState {
		return regionKey{state: state.Name}, state.Confidence, true
	}

	district := m.normalizer.District(rec.DistrictName, state.Name)
	if !district.Resolved() {
		return regionKey{}, 0, false
	}
	return regionKey{state.Name, district.Name}, math.Min(state.Confidence, district.Confidence), true
}

func boundaryLabel(rec BoundaryRecord) string {
	if rec.DistrictName == "" {
		return rec.StateName
	}
	return rec.StateName + "/" + rec.DistrictName
}
