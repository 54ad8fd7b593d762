package analysis_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/region-insights-go/internal/analysis"
	_ "github.com/jengzang/region-insights-go/internal/analysis/behavior"
	_ "github.com/jengzang/region-insights-go/internal/analysis/cluster"
	_ "github.com/jengzang/region-insights-go/internal/analysis/cohort"
	_ "github.com/jengzang/region-insights-go/internal/analysis/temporal"
	"github.com/jengzang/region-insights-go/internal/metrics"
	"github.com/jengzang/region-insights-go/internal/models"
)

func row(month int, state, district string, ratio float64) models.RegionMetricsRow {
	return models.RegionMetricsRow{
		Key:                 models.CanonicalKey{Period: models.Period{Year: 2025, Month: time.Month(month)}, State: state, District: district},
		TotalHolders:        100,
		UpdateRatio:         ratio,
		DemoUpdateRatio:     ratio / 2,
		BioUpdateRatio:      ratio / 2,
		BiometricCompliance: 0.5,
	}
}

func TestRegisteredAnalyzers(t *testing.T) {
	assert.Subset(t, analysis.Names(), []string{
		"behavioral_patterns", "segments", "spatial_heterogeneity", "temporal_patterns",
	})
}

func TestGetAnalyzerUnknown(t *testing.T) {
	_, err := analysis.GetAnalyzer("nope", slog.Default())
	require.Error(t, err)
	assert.True(t, errors.Is(err, analysis.ErrUnknownAnalyzer))
}

func TestRunAll(t *testing.T) {
	table := metrics.FromRows(
		row(1, "Goa", "North Goa", 1.0),
		row(2, "Goa", "North Goa", 2.0),
		row(1, "Goa", "South Goa", 0.5),
		row(2, "Goa", "South Goa", 0.5),
		row(1, models.UnresolvedState, "", 9),
	)

	reports, err := analysis.RunAll(context.Background(), table, slog.Default())
	require.NoError(t, err)
	for _, name := range analysis.Names() {
		require.Contains(t, reports, name)
		assert.Equal(t, name, reports[name].Name())
	}
	assert.Equal(t, 2, reports["temporal_patterns"].Summary()["stable"])
}

func TestRunAllRequiresComputedTable(t *testing.T) {
	_, err := analysis.RunAll(context.Background(), nil, slog.Default())
	require.ErrorIs(t, err, metrics.ErrNilTable)
}

func TestGroupDistrictsSkipsUnresolved(t *testing.T) {
	regions, groups := analysis.GroupDistricts(metrics.FromRows(
		row(2, "Kerala", "Idukki", 1),
		row(1, "Kerala", "Idukki", 2),
		row(1, "Goa", "North Goa", 1),
		row(1, "Goa", "", 1),
		row(1, models.UnresolvedState, "", 1),
	))
	require.Equal(t, []analysis.Region{{"Goa", "North Goa"}, {"Kerala", "Idukki"}}, regions)
	idukki := groups[analysis.Region{State: "Kerala", District: "Idukki"}]
	require.Len(t, idukki, 2)
	assert.Equal(t, 2.0, idukki[0].UpdateRatio, "rows come back in period order")
}
