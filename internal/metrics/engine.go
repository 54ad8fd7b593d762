package metrics

import (
	"errors"
	"fmt"

	"github.com/jengzang/region-insights-go/internal/merge"
	"github.com/jengzang/region-insights-go/internal/models"
	"github.com/jengzang/region-insights-go/internal/stats"
)

var (
	// ErrNilTable is returned when Compute receives no merged table
	ErrNilTable = errors.New("merged table is nil")
	// ErrRowNotFound is returned by lookups for keys the table does not hold
	ErrRowNotFound = errors.New("metrics row not found")
)

// Compute derives one RegionMetricsRow per merged row. Ratios divide by zero
// to 0; growth is nil when the previous month has no enrolment data.
func Compute(merged *merge.Table) (*Table, error) {
	if merged == nil {
		return nil, fmt.Errorf("failed to compute metrics: %w", ErrNilTable)
	}

	rows := make([]models.RegionMetricsRow, 0, merged.Len())
	for m := range merged.All() {
		row := models.RegionMetricsRow{
			Key:                m.Key,
			TotalHolders:       m.Enrolment.Total,
			DemographicUpdates: m.Demographic.Total,
			BiometricUpdates:   m.Biometric.Total,
		}
		row.TotalUpdates = row.DemographicUpdates + row.BiometricUpdates

		holders := float64(row.TotalHolders)
		row.UpdateRatio = stats.SafeDiv(float64(row.TotalUpdates), holders)
		row.BiometricCompliance = stats.SafeDiv(float64(row.BiometricUpdates), float64(row.TotalUpdates))
		row.DemoUpdateRatio = stats.SafeDiv(float64(row.DemographicUpdates), holders)
		row.BioUpdateRatio = stats.SafeDiv(float64(row.BiometricUpdates), holders)
		row.GrowthRate = growthRate(merged, m)

		rows = append(rows, row)
	}

	assignScores(rows)
	return newTable(rows), nil
}

// growthRate compares enrolment against the same key one calendar month earlier.
// A current row without enrolment data counts as zero holders.
func growthRate(merged *merge.Table, cur models.MergedRow) *float64 {
	prevKey := cur.Key
	prevKey.Period = cur.Key.Period.Prev()

	prev, ok := merged.Get(prevKey)
	if !ok || !prev.Sources.Has(models.CategoryEnrolment) {
		return nil
	}

	g := stats.SafeDiv(float64(cur.Enrolment.Total-prev.Enrolment.Total), float64(prev.Enrolment.Total))
	return &g
}

// assignScores ranks update_ratio and biometric_compliance within each
// period's national distribution. Scores are display-only.
func assignScores(rows []models.RegionMetricsRow) {
	byPeriod := make(map[models.Period][]int)
	for i, r := range rows {
		byPeriod[r.Key.Period] = append(byPeriod[r.Key.Period], i)
	}

	for _, idx := range byPeriod {
		ratios := make([]float64, len(idx))
		compliance := make([]float64, len(idx))
		for j, i := range idx {
			ratios[j] = rows[i].UpdateRatio
			compliance[j] = rows[i].BiometricCompliance
		}

		ratioRank := stats.NewRanker(ratios)
		complianceRank := stats.NewRanker(compliance)
		for _, i := range idx {
			rows[i].ActivityScore = ratioRank.Rank(rows[i].UpdateRatio)
			rows[i].QualityScore = complianceRank.Rank(rows[i].BiometricCompliance)
		}
	}
}
