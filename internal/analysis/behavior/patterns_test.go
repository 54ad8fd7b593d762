package behavior

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/region-insights-go/internal/metrics"
	"github.com/jengzang/region-insights-go/internal/models"
)

func row(district string, demo, bio, compliance float64) models.RegionMetricsRow {
	return models.RegionMetricsRow{
		Key:                 models.CanonicalKey{Period: models.Period{Year: 2025, Month: 3}, State: "Kerala", District: district},
		DemoUpdateRatio:     demo,
		BioUpdateRatio:      bio,
		BiometricCompliance: compliance,
	}
}

func TestBehaviorLabels(t *testing.T) {
	table := metrics.FromRows(
		row("Migrant", 5, 1, 0.2),
		row("Careful", 1, 5, 0.9),
		row("Quiet", 2, 2, 0.3),
		row("Busy", 4, 4, 0.4),
		row("Middle", 3, 3, 0.5),
	)

	report, err := NewPatternAnalyzer(nil).Analyze(context.Background(), table)
	require.NoError(t, err)
	r := report.(*Report)
	require.Len(t, r.Regions, 5)

	got := make(map[string]string)
	for _, b := range r.Regions {
		got[b.District] = b.Pattern()
	}
	assert.Equal(t, map[string]string{
		"Migrant": MigrationHeavy,
		"Careful": QualityFocused,
		"Quiet":   LowEngagement,
		"Busy":    HighActivity,
		"Middle":  Balanced,
	}, got)

	assert.Equal(t, 1, r.Summary()[Balanced])
}

func TestBehaviorMultipleLabels(t *testing.T) {
	// High demo and bio with high compliance is both busy and careful
	table := metrics.FromRows(
		row("Both", 5, 5, 0.9),
		row("Low", 1, 1, 0.1),
		row("Mid", 3, 3, 0.5),
	)
	report, err := NewPatternAnalyzer(nil).Analyze(context.Background(), table)
	require.NoError(t, err)

	for _, b := range report.(*Report).Regions {
		if b.District == "Both" {
			assert.Equal(t, "quality_focused,high_activity", b.Pattern())
		}
	}
}
