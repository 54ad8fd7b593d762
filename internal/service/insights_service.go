package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/jengzang/region-insights-go/internal/anomaly"
	"github.com/jengzang/region-insights-go/internal/metrics"
	"github.com/jengzang/region-insights-go/internal/models"
	"github.com/jengzang/region-insights-go/internal/normalize"
	"github.com/jengzang/region-insights-go/internal/repository"
	"github.com/jengzang/region-insights-go/internal/spatial"
)

// MaxTopAnomalies caps the size of a top-anomalies request
const MaxTopAnomalies = 500

var (
	// ErrInvalidInput is returned for malformed request parameters
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoBoundaries is returned by Locate when no boundaries were loaded
	ErrNoBoundaries = errors.New("no boundaries loaded")
)

// StateDetail is a state's districts and per-period totals
type StateDetail struct {
	State     string                    `json:"state"`
	Districts []metrics.DistrictSummary `json:"districts"`
	Series    []metrics.StateSummary    `json:"series"`
}

// RegionDetail is one district across all periods
type RegionDetail struct {
	Summary   metrics.DistrictSummary   `json:"summary"`
	Series    []models.RegionMetricsRow `json:"series"`
	Anomalies []models.AnomalyRecord    `json:"anomalies"`
}

// Location answers a point lookup
type Location struct {
	Point    models.LatLng       `json:"point"`
	Boundary *models.BoundaryRef `json:"boundary"`
	// Inside is false when the point fell outside every boundary and the nearest one was used
	Inside     bool    `json:"inside"`
	DistanceKm float64 `json:"distance_km"`
}

// InsightsService answers read queries against the latest stored run
type InsightsService struct {
	repo       *repository.SnapshotRepository
	normalizer *normalize.Normalizer
	index      *spatial.Index

	mu       sync.Mutex
	cachedID string
	cached   *metrics.Table
}

// NewInsightsService creates a new insights service. A nil normalizer leaves
// names as given; a nil index disables Locate.
func NewInsightsService(repo *repository.SnapshotRepository, n *normalize.Normalizer, idx *spatial.Index) *InsightsService {
	return &InsightsService{repo: repo, normalizer: n, index: idx}
}

// LatestRun returns bookkeeping for the latest run
func (s *InsightsService) LatestRun(ctx context.Context) (*repository.RunInfo, error) {
	id, err := s.repo.LatestRunID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetRun(ctx, id)
}

// States lists the states of the latest run
func (s *InsightsService) States(ctx context.Context) ([]repository.StateOverview, error) {
	id, err := s.repo.LatestRunID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStates(ctx, id)
}

// State returns a state's district summaries and series
func (s *InsightsService) State(ctx context.Context, state string) (*StateDetail, error) {
	id, table, err := s.latestTable(ctx)
	if err != nil {
		return nil, err
	}
	state = s.canonicalState(state)
	series, err := s.repo.StateSeries(ctx, id, state)
	if err != nil {
		return nil, err
	}

	detail := &StateDetail{State: state, Series: series, Districts: []metrics.DistrictSummary{}}
	for _, d := range table.DistrictSummaries() {
		if d.State == state {
			detail.Districts = append(detail.Districts, d)
		}
	}
	return detail, nil
}

// Region returns a district's summary, series and anomaly records
func (s *InsightsService) Region(ctx context.Context, state, district string) (*RegionDetail, error) {
	id, err := s.repo.LatestRunID(ctx)
	if err != nil {
		return nil, err
	}
	state, district = s.canonicalRegion(state, district)

	rows, err := s.repo.GetRegion(ctx, id, state, district)
	if err != nil {
		return nil, err
	}
	anomalies, err := s.repo.RegionAnomalies(ctx, id, state, district)
	if err != nil {
		return nil, err
	}
	return &RegionDetail{
		Summary:   metrics.FromRows(rows...).DistrictSummaries()[0],
		Series:    rows,
		Anomalies: anomalies,
	}, nil
}

// Compare places two districts side by side in one period; an empty period means the latest
func (s *InsightsService) Compare(ctx context.Context, stateA, districtA, stateB, districtB, period string) (*metrics.Comparison, error) {
	_, table, err := s.latestTable(ctx)
	if err != nil {
		return nil, err
	}

	var p models.Period
	if period == "" {
		latest, ok := table.LatestPeriod()
		if !ok {
			return nil, fmt.Errorf("no periods in snapshot: %w", repository.ErrNotFound)
		}
		p = latest
	} else if p, err = models.ParsePeriod(period); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	stateA, districtA = s.canonicalRegion(stateA, districtA)
	stateB, districtB = s.canonicalRegion(stateB, districtB)
	c, err := table.Compare(
		models.CanonicalKey{Period: p, State: stateA, District: districtA},
		models.CanonicalKey{Period: p, State: stateB, District: districtB},
	)
	if errors.Is(err, metrics.ErrRowNotFound) {
		return nil, fmt.Errorf("%w: %v", repository.ErrNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// TopAnomalies returns the n highest-scoring rows of the latest run
func (s *InsightsService) TopAnomalies(ctx context.Context, n int) ([]models.AnomalyRecord, error) {
	if n <= 0 || n > MaxTopAnomalies {
		return nil, fmt.Errorf("%w: n must be between 1 and %d", ErrInvalidInput, MaxTopAnomalies)
	}
	id, err := s.repo.LatestRunID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.TopAnomalies(ctx, id, n)
}

// AnomalySummary counts the latest run's rows by severity and rule
func (s *InsightsService) AnomalySummary(ctx context.Context) (anomaly.Summary, error) {
	id, err := s.repo.LatestRunID(ctx)
	if err != nil {
		return anomaly.Summary{}, err
	}
	return s.repo.AnomalySummary(ctx, id)
}

// Coverage returns the boundary coverage of the latest run at a level
func (s *InsightsService) Coverage(ctx context.Context, level string) (*repository.Coverage, error) {
	l, err := spatial.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	id, err := s.repo.LatestRunID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.Coverage(ctx, id, l)
}

// Pattern returns an analyzer report of the latest run
func (s *InsightsService) Pattern(ctx context.Context, name string) (*repository.PatternReport, error) {
	id, err := s.repo.LatestRunID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.Pattern(ctx, id, name)
}

// Locate finds the boundary containing a point, or the nearest one
func (s *InsightsService) Locate(lat, lng float64) (*Location, error) {
	if s.index == nil {
		return nil, ErrNoBoundaries
	}
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}

	loc := &Location{Point: models.LatLng{Lat: lat, Lng: lng}}
	if ref, ok := s.index.Locate(loc.Point); ok {
		loc.Boundary = &ref
		loc.Inside = true
		return loc, nil
	}
	ref, km, ok := s.index.Nearest(loc.Point)
	if !ok {
		return nil, ErrNoBoundaries
	}
	loc.Boundary = &ref
	loc.DistanceKm = km
	return loc, nil
}

// LocateGeohash resolves the center of a geohash cell like Locate
func (s *InsightsService) LocateGeohash(geohash string) (*Location, error) {
	if s.index == nil {
		return nil, ErrNoBoundaries
	}
	center, err := spatial.DecodeGeohash(geohash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.Locate(center.Lat, center.Lng)
}

// latestTable returns the latest run's metrics, reloading only when a newer run appears
func (s *InsightsService) latestTable(ctx context.Context) (string, *metrics.Table, error) {
	id, err := s.repo.LatestRunID(ctx)
	if err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cachedID == id {
		return id, s.cached, nil
	}
	table, err := s.repo.LoadMetrics(ctx, id)
	if err != nil {
		return "", nil, err
	}
	s.cachedID, s.cached = id, table
	return id, table, nil
}

func (s *InsightsService) canonicalState(raw string) string {
	if s.normalizer == nil {
		return raw
	}
	if m := s.normalizer.State(raw); m.Resolved() {
		return m.Name
	}
	return raw
}

func (s *InsightsService) canonicalRegion(state, district string) (string, string) {
	state = s.canonicalState(state)
	if s.normalizer == nil {
		return state, district
	}
	if m := s.normalizer.District(district, state); m.Resolved() {
		return state, m.Name
	}
	return state, district
}
