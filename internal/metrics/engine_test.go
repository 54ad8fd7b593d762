package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/region-insights-go/internal/merge"
	"github.com/jengzang/region-insights-go/internal/models"
)

var (
	jan = models.Period{Year: 2025, Month: time.January}
	feb = models.Period{Year: 2025, Month: time.February}
	mar = models.Period{Year: 2025, Month: time.March}
)

func key(p models.Period, state, district string) models.CanonicalKey {
	return models.CanonicalKey{Period: p, State: state, District: district}
}

func counts(total int64) models.SourceCounts {
	return models.SourceCounts{Total: total, Bands: map[string]int64{merge.AllBands: total}}
}

// merged builds a row; a negative count means the family was not observed
func merged(k models.CanonicalKey, enrol, demo, bio int64) models.MergedRow {
	row := models.MergedRow{Key: k}
	if enrol >= 0 {
		row.Enrolment = counts(enrol)
		row.Sources |= models.SourceEnrolment
	}
	if demo >= 0 {
		row.Demographic = counts(demo)
		row.Sources |= models.SourceDemographic
	}
	if bio >= 0 {
		row.Biometric = counts(bio)
		row.Sources |= models.SourceBiometric
	}
	return row
}

func TestComputeRejectsNilTable(t *testing.T) {
	_, err := Compute(nil)
	require.ErrorIs(t, err, ErrNilTable)
}

func TestComputeRatios(t *testing.T) {
	table, err := Compute(merge.NewTable(
		merged(key(jan, "Goa", "North Goa"), 100, 30, 20),
		merged(key(jan, "Goa", "South Goa"), 0, 5, 0),
		merged(key(jan, "Kerala", "Kollam"), 50, -1, -1),
	))
	require.NoError(t, err)
	require.True(t, table.Computed())
	require.Equal(t, 3, table.Len())

	north, ok := table.Get(key(jan, "Goa", "North Goa"))
	require.True(t, ok)
	assert.Equal(t, int64(100), north.TotalHolders)
	assert.Equal(t, int64(50), north.TotalUpdates)
	assert.InDelta(t, 0.5, north.UpdateRatio, 1e-12)
	assert.InDelta(t, 0.4, north.BiometricCompliance, 1e-12)
	assert.InDelta(t, 0.3, north.DemoUpdateRatio, 1e-12)
	assert.InDelta(t, 0.2, north.BioUpdateRatio, 1e-12)

	south, _ := table.Get(key(jan, "Goa", "South Goa"))
	assert.Zero(t, south.UpdateRatio, "zero holders divides to 0")
	assert.Zero(t, south.BiometricCompliance)
	assert.Zero(t, south.DemoUpdateRatio)

	kollam, _ := table.Get(key(jan, "Kerala", "Kollam"))
	assert.Zero(t, kollam.TotalUpdates)
	assert.Zero(t, kollam.BiometricCompliance, "zero updates divides to 0")

	for r := range table.All() {
		for _, v := range []float64{r.UpdateRatio, r.BiometricCompliance, r.ActivityScore, r.QualityScore} {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
}

func TestComputeGrowthRate(t *testing.T) {
	table, err := Compute(merge.NewTable(
		merged(key(jan, "Goa", "North Goa"), 100, 0, 0),
		merged(key(feb, "Goa", "North Goa"), 150, 0, 0),
		merged(key(mar, "Goa", "North Goa"), 120, 0, 0),

		merged(key(jan, "Goa", "South Goa"), 0, 1, 1),
		merged(key(feb, "Goa", "South Goa"), 40, 1, 1),

		merged(key(jan, "Kerala", "Kollam"), -1, 5, 5),
		merged(key(feb, "Kerala", "Kollam"), 10, 5, 5),

		merged(key(jan, "Kerala", "Idukki"), 10, 0, 0),
		merged(key(mar, "Kerala", "Idukki"), 20, 0, 0),

		merged(key(jan, "Kerala", "Wayanad"), 100, 0, 0),
		merged(key(feb, "Kerala", "Wayanad"), -1, 4, 6),
	))
	require.NoError(t, err)

	growth := func(k models.CanonicalKey) *float64 {
		r, ok := table.Get(k)
		require.True(t, ok, k.String())
		return r.GrowthRate
	}

	assert.Nil(t, growth(key(jan, "Goa", "North Goa")), "no prior period")
	require.NotNil(t, growth(key(feb, "Goa", "North Goa")))
	assert.InDelta(t, 0.5, *growth(key(feb, "Goa", "North Goa")), 1e-12)
	assert.InDelta(t, -0.2, *growth(key(mar, "Goa", "North Goa")), 1e-12)

	require.NotNil(t, growth(key(feb, "Goa", "South Goa")))
	assert.Zero(t, *growth(key(feb, "Goa", "South Goa")), "prior enrolment of zero divides to 0")

	assert.Nil(t, growth(key(feb, "Kerala", "Kollam")), "prior row has no enrolment data")
	assert.Nil(t, growth(key(mar, "Kerala", "Idukki")), "gap month is not bridged")

	wayanad := growth(key(feb, "Kerala", "Wayanad"))
	require.NotNil(t, wayanad, "updates-only month after an enrolment month")
	assert.InDelta(t, -1.0, *wayanad, 1e-12)
}

func TestComputeScoresArePerPeriodRanks(t *testing.T) {
	table, err := Compute(merge.NewTable(
		merged(key(jan, "Goa", "A"), 100, 10, 10),
		merged(key(jan, "Goa", "B"), 100, 20, 0),
		merged(key(jan, "Goa", "C"), 100, 40, 40),
		merged(key(jan, "Goa", "D"), 100, 10, 30),
		merged(key(feb, "Goa", "A"), 100, 500, 500),
	))
	require.NoError(t, err)

	score := func(k models.CanonicalKey) (float64, float64) {
		r, _ := table.Get(k)
		return r.ActivityScore, r.QualityScore
	}

	activity, quality := score(key(jan, "Goa", "C"))
	assert.Equal(t, 1.0, activity)
	assert.Equal(t, 0.75, quality)

	activity, quality = score(key(jan, "Goa", "B"))
	assert.Equal(t, 0.5, activity)
	assert.Equal(t, 0.25, quality)

	activity, _ = score(key(jan, "Goa", "A"))
	assert.Equal(t, 0.5, activity, "ties share the upper rank")

	activity, quality = score(key(feb, "Goa", "A"))
	assert.Equal(t, 1.0, activity, "a period is ranked on its own")
	assert.Equal(t, 1.0, quality)
}

func TestTableAccessors(t *testing.T) {
	table := FromRows(
		models.RegionMetricsRow{Key: key(feb, "Goa", "A")},
		models.RegionMetricsRow{Key: key(jan, "Goa", "A")},
		models.RegionMetricsRow{Key: key(jan, "Goa", "B")},
	)

	assert.Equal(t, []models.Period{jan, feb}, table.Periods())
	latest, ok := table.LatestPeriod()
	require.True(t, ok)
	assert.Equal(t, feb, latest)
	assert.Len(t, table.ForPeriod(jan), 2)

	series := table.Series("Goa", "A")
	require.Len(t, series, 2)
	assert.Equal(t, jan, series[0].Key.Period)

	var zero Table
	assert.False(t, zero.Computed())
	var missing *Table
	assert.False(t, missing.Computed())
	_, ok = missing.LatestPeriod()
	assert.False(t, ok)
}
