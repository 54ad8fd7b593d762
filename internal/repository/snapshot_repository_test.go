package repository

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/jengzang/region-insights-go/internal/anomaly"
	"github.com/jengzang/region-insights-go/internal/database"
	"github.com/jengzang/region-insights-go/internal/models"
	"github.com/jengzang/region-insights-go/internal/normalize"
	"github.com/jengzang/region-insights-go/internal/pipeline"
	"github.com/jengzang/region-insights-go/internal/spatial"
)

type SnapshotRepositorySuite struct {
	suite.Suite
	repo   *SnapshotRepository
	result *pipeline.Result
}

func TestSnapshotRepositorySuite(t *testing.T) {
	suite.Run(t, new(SnapshotRepositorySuite))
}

func raw(month time.Month, district string, c models.Category, count int64) models.RawRecord {
	return models.RawRecord{
		Date:        time.Date(2025, month, 1, 0, 0, 0, 0, time.UTC),
		StateRaw:    "Goa",
		DistrictRaw: district,
		Category:    c,
		AgeBand:     models.BandAge5To17,
		Count:       count,
	}
}

func (s *SnapshotRepositorySuite) SetupTest() {
	conn, err := database.Open(database.Config{Path: "file:" + strings.ReplaceAll(s.T().Name(), "/", "_") + "?mode=memory&cache=shared"})
	s.Require().NoError(err)
	s.T().Cleanup(func() { conn.Close() })
	s.repo = NewSnapshotRepository(conn)

	g, err := normalize.DefaultGazetteer()
	s.Require().NoError(err)
	n, err := normalize.New(g, normalize.DefaultOptions())
	s.Require().NoError(err)
	engine, err := pipeline.NewEngine(pipeline.Config{
		Normalizer: n,
		Thresholds: anomaly.DefaultThresholds(),
		Matcher:    spatial.DefaultMatcherOptions(),
	})
	s.Require().NoError(err)

	s.result, err = engine.Run(context.Background(), pipeline.Sources{
		Enrolment: slices.Values([]models.RawRecord{
			raw(time.January, "North Goa", models.CategoryEnrolment, 100),
			raw(time.February, "North Goa", models.CategoryEnrolment, 150),
			raw(time.January, "South Goa", models.CategoryEnrolment, 2000),
		}),
		Demographic: slices.Values([]models.RawRecord{
			raw(time.January, "North Goa", models.CategoryDemographic, 40),
		}),
		Biometric: slices.Values([]models.RawRecord{
			raw(time.January, "North Goa", models.CategoryBiometric, 2),
		}),
	})
	s.Require().NoError(err)

	_, err = engine.AttachBoundaries(context.Background(), s.result, nil, spatial.LevelState)
	s.Require().NoError(err)
	s.Require().NoError(s.repo.SaveRun(context.Background(), s.result))
}

func (s *SnapshotRepositorySuite) TestLatestRun() {
	ctx := context.Background()
	id, err := s.repo.LatestRunID(ctx)
	s.Require().NoError(err)
	s.Equal(s.result.RunID, id)

	info, err := s.repo.GetRun(ctx, id)
	s.Require().NoError(err)
	s.Equal(3, info.Rows)
	s.Equal(5, info.Ingested)
	s.Equal(3, info.Diagnostics.Ingested[models.CategoryEnrolment])

	_, err = s.repo.GetRun(ctx, "missing")
	s.ErrorIs(err, ErrNotFound)
}

func (s *SnapshotRepositorySuite) TestLatestRunEmpty() {
	conn, err := database.Open(database.Config{Path: "file:empty_latest?mode=memory&cache=shared"})
	s.Require().NoError(err)
	defer conn.Close()

	_, err = NewSnapshotRepository(conn).LatestRunID(context.Background())
	s.ErrorIs(err, ErrNoSnapshot)
}

func (s *SnapshotRepositorySuite) TestMetricsRoundTrip() {
	table, err := s.repo.LoadMetrics(context.Background(), s.result.RunID)
	s.Require().NoError(err)
	s.Equal(s.result.Metrics.Rows(), table.Rows())
}

func (s *SnapshotRepositorySuite) TestStatesAndDistricts() {
	ctx := context.Background()
	states, err := s.repo.ListStates(ctx, s.result.RunID)
	s.Require().NoError(err)
	s.Equal([]StateOverview{{State: "Goa", Districts: 2, Periods: 2}}, states)

	districts, err := s.repo.ListDistricts(ctx, s.result.RunID, "Goa")
	s.Require().NoError(err)
	s.Equal([]string{"North Goa", "South Goa"}, districts)

	_, err = s.repo.ListDistricts(ctx, s.result.RunID, "Kerala")
	s.ErrorIs(err, ErrNotFound)
}

func (s *SnapshotRepositorySuite) TestRegion() {
	ctx := context.Background()
	rows, err := s.repo.GetRegion(ctx, s.result.RunID, "Goa", "North Goa")
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Nil(rows[0].GrowthRate)
	s.Require().NotNil(rows[1].GrowthRate)
	s.InDelta(0.5, *rows[1].GrowthRate, 1e-9)

	anomalies, err := s.repo.RegionAnomalies(ctx, s.result.RunID, "Goa", "North Goa")
	s.Require().NoError(err)
	s.Len(anomalies, 2)

	_, err = s.repo.GetRegion(ctx, s.result.RunID, "Goa", "Atlantis")
	s.ErrorIs(err, ErrNotFound)
}

func (s *SnapshotRepositorySuite) TestStateSeries() {
	series, err := s.repo.StateSeries(context.Background(), s.result.RunID, "Goa")
	s.Require().NoError(err)
	s.Require().Len(series, 2)
	s.Equal(int64(2100), series[0].TotalHolders)
	s.Equal(int64(42), series[0].TotalUpdates)
	s.InDelta(42.0/2100.0, series[0].UpdateRatio, 1e-9)
	s.InDelta(2.0/42.0, series[0].BiometricCompliance, 1e-9)
}

func (s *SnapshotRepositorySuite) TestAnomalies() {
	ctx := context.Background()
	top, err := s.repo.TopAnomalies(ctx, s.result.RunID, 2)
	s.Require().NoError(err)
	s.Equal(s.result.Anomalies.Top(2), top)

	none, err := s.repo.TopAnomalies(ctx, s.result.RunID, 0)
	s.Require().NoError(err)
	s.Empty(none)

	summary, err := s.repo.AnomalySummary(ctx, s.result.RunID)
	s.Require().NoError(err)
	s.Equal(s.result.Anomalies.Summary(), summary)
}

func (s *SnapshotRepositorySuite) TestCoverage() {
	ctx := context.Background()
	c, err := s.repo.Coverage(ctx, s.result.RunID, spatial.LevelState)
	s.Require().NoError(err)
	s.Equal(3, c.Total)
	s.Zero(c.Matched)
	s.True(c.Degraded)
	s.Equal(spatial.PresentationTableFallback, c.Presentation)

	_, err = s.repo.Coverage(ctx, s.result.RunID, spatial.LevelDistrict)
	s.ErrorIs(err, ErrNotFound)
}

func (s *SnapshotRepositorySuite) TestPatternMissing() {
	_, err := s.repo.Pattern(context.Background(), s.result.RunID, "segments")
	s.ErrorIs(err, ErrNotFound)
}

func (s *SnapshotRepositorySuite) TestSaveRunRejectsIncompleteResult() {
	s.Error(s.repo.SaveRun(context.Background(), &pipeline.Result{RunID: "x"}))
}
