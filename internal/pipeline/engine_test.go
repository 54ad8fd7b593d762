package pipeline

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	_ "github.com/jengzang/region-insights-go/internal/analysis/cohort"
	_ "github.com/jengzang/region-insights-go/internal/analysis/temporal"
	"github.com/jengzang/region-insights-go/internal/anomaly"
	"github.com/jengzang/region-insights-go/internal/models"
	"github.com/jengzang/region-insights-go/internal/normalize"
	"github.com/jengzang/region-insights-go/internal/observability"
	"github.com/jengzang/region-insights-go/internal/spatial"
)

type PipelineSuite struct {
	suite.Suite
	metrics *observability.Metrics
	engine  *Engine
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	g, err := normalize.DefaultGazetteer()
	s.Require().NoError(err)
	n, err := normalize.New(g, normalize.DefaultOptions())
	s.Require().NoError(err)

	s.metrics = observability.New()
	s.engine, err = NewEngine(Config{
		Normalizer: n,
		Thresholds: anomaly.DefaultThresholds(),
		Matcher:    spatial.DefaultMatcherOptions(),
		Analyze:    true,
	}, WithMetrics(s.metrics))
	s.Require().NoError(err)
}

func raw(month time.Month, state, district string, c models.Category, count int64) models.RawRecord {
	return models.RawRecord{
		Date:        time.Date(2025, month, 10, 0, 0, 0, 0, time.UTC),
		StateRaw:    state,
		DistrictRaw: district,
		Category:    c,
		AgeBand:     models.BandAge5To17,
		Count:       count,
	}
}

func (s *PipelineSuite) sources() Sources {
	enrolment := []models.RawRecord{
		raw(time.January, "Goa", "North Goa", models.CategoryEnrolment, 100),
		raw(time.February, "Goa", "North Goa", models.CategoryEnrolment, 120),
		raw(time.January, "Goa", "South Goa", models.CategoryEnrolment, 80),
		raw(time.January, "Atlantis", "Nowhere", models.CategoryEnrolment, 5),
	}
	demographic := []models.RawRecord{
		raw(time.January, "goa", "north goa", models.CategoryDemographic, 30),
		raw(time.January, "Goa", "South Goa", models.CategoryDemographic, -3),
	}
	biometric := []models.RawRecord{
		raw(time.January, "GOA", "North Goa", models.CategoryBiometric, 10),
	}
	return Sources{
		Enrolment:   slices.Values(enrolment),
		Demographic: slices.Values(demographic),
		Biometric:   slices.Values(biometric),
	}
}

func (s *PipelineSuite) TestRun() {
	res, err := s.engine.Run(context.Background(), s.sources())
	s.Require().NoError(err)

	s.Run("assigns a run id", func() {
		_, err := uuid.Parse(res.RunID)
		s.NoError(err)
		s.False(res.CompletedAt.Before(res.StartedAt))
	})

	s.Run("produces one anomaly record per metrics row", func() {
		s.Equal(4, res.Metrics.Len())
		s.Len(res.Anomalies.Records, res.Metrics.Len())
	})

	s.Run("reports diagnostics", func() {
		s.Equal(1, res.Diagnostics.Skipped[models.CategoryDemographic])
		s.Equal(1, res.Diagnostics.UnresolvedStates)
	})

	s.Run("runs registered analyzers", func() {
		s.Contains(res.Patterns, "temporal_patterns")
		s.Contains(res.Patterns, "spatial_heterogeneity")
	})

	s.Run("records metrics", func() {
		s.Equal(4.0, testutil.ToFloat64(s.metrics.RecordsIngested.WithLabelValues("enrolment")))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.RecordsSkipped.WithLabelValues("demographic")))
		s.Equal(4, testutil.CollectAndCount(s.metrics.StageDuration), "one series per stage")
	})
}

func (s *PipelineSuite) TestRunWithoutSources() {
	res, err := s.engine.Run(context.Background(), Sources{})
	s.Require().NoError(err)
	s.Zero(res.Metrics.Len())
	s.Empty(res.Anomalies.Records)
}

func (s *PipelineSuite) TestRunCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.engine.Run(ctx, s.sources())
	s.ErrorIs(err, context.Canceled)
}

func (s *PipelineSuite) TestAttachBoundaries() {
	res, err := s.engine.Run(context.Background(), s.sources())
	s.Require().NoError(err)

	square := spatial.Ring{
		{Lat: 15.5, Lng: 73.7}, {Lat: 15.5, Lng: 74.1}, {Lat: 15.8, Lng: 74.1}, {Lat: 15.8, Lng: 73.7},
	}
	boundaries := []spatial.BoundaryRecord{
		{ID: "ng", StateName: "Goa", DistrictName: "North Goa", Polygons: [][]spatial.Ring{{square}}},
	}

	match, err := s.engine.AttachBoundaries(context.Background(), res, boundaries, spatial.LevelDistrict)
	s.Require().NoError(err)
	s.Equal(2, match.Matched)
	s.Equal(4, match.Total)
	s.InDelta(0.5, match.Coverage, 1e-9)
	s.False(match.Degraded, "coverage at the floor is not degraded")
	s.Same(match, res.Coverage[spatial.LevelDistrict])
	s.InDelta(0.5, testutil.ToFloat64(s.metrics.GeoCoverage.WithLabelValues("district")), 1e-9)

	_, err = s.engine.AttachBoundaries(context.Background(), res, boundaries, spatial.Level("village"))
	s.ErrorIs(err, spatial.ErrInvalidLevel)
}

func (s *PipelineSuite) TestNewEngineRequiresNormalizer() {
	_, err := NewEngine(Config{})
	s.Error(err)
}
