package temporal

import (
	"context"
	"log/slog"

	"github.com/jengzang/region-insights-go/internal/analysis"
	"github.com/jengzang/region-insights-go/internal/metrics"
	"github.com/jengzang/region-insights-go/internal/stats"
)

// Name is the registry name of the analyzer
const Name = "temporal_patterns"

// Trend labels
const (
	TrendRising    = "rising"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// Volatility labels
const (
	PatternHighlyVolatile   = "highly_volatile"
	PatternModerateVolatile = "moderate_volatility"
	PatternStable           = "stable"
	PatternInsufficientData = "insufficient_data"
)

// Thresholds for trend and volatility classification
type Thresholds struct {
	SlopeThreshold     float64 // |slope| beyond this is rising or declining
	HighVolatility     float64 // population std dev of update_ratio
	ModerateVolatility float64
}

// DefaultThresholds returns default thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		SlopeThreshold:     0.1,
		HighVolatility:     2.0,
		ModerateVolatility: 1.0,
	}
}

// RegionTrend describes how one district's update_ratio moves over time
type RegionTrend struct {
	analysis.Region
	Periods    int     `json:"periods"`
	Slope      float64 `json:"slope"`
	Volatility float64 `json:"volatility"`
	Trend      string  `json:"trend"`
	Pattern    string  `json:"temporal_pattern"`
}

// Report lists the trend of every district
type Report struct {
	Regions []RegionTrend `json:"regions"`
}

// Name implements analysis.Report
func (r *Report) Name() string { return Name }

// Summary counts trend labels (prefixed "trend_") and volatility labels
func (r *Report) Summary() map[string]int {
	counts := make(map[string]int)
	for _, t := range r.Regions {
		counts["trend_"+t.Trend]++
		counts[t.Pattern]++
	}
	return counts
}

// TrendAnalyzer fits a linear trend per district across periods
type TrendAnalyzer struct {
	*analysis.BaseAnalyzer
	thresholds Thresholds
}

// NewTrendAnalyzer creates a new trend analyzer
func NewTrendAnalyzer(logger *slog.Logger) analysis.Analyzer {
	return &TrendAnalyzer{
		BaseAnalyzer: analysis.NewBaseAnalyzer(Name, logger),
		thresholds:   DefaultThresholds(),
	}
}

// Analyze classifies every district with at least one row
func (a *TrendAnalyzer) Analyze(ctx context.Context, t *metrics.Table) (analysis.Report, error) {
	regions, groups := analysis.GroupDistricts(t)
	report := &Report{Regions: make([]RegionTrend, 0, len(regions))}

	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows := groups[region]
		trend := RegionTrend{Region: region, Periods: len(rows), Trend: TrendStable, Pattern: PatternInsufficientData}
		if len(rows) >= 2 {
			ratios := make([]float64, len(rows))
			for i, r := range rows {
				ratios[i] = r.UpdateRatio
			}
			if stats.PopulationVariance(ratios) > 0 {
				trend.Slope = stats.Slope(ratios)
				trend.Volatility = stats.PopulationStdDev(ratios)
			}
			trend.Trend = a.classifyTrend(trend.Slope)
			trend.Pattern = a.classifyVolatility(trend.Volatility)
		}
		report.Regions = append(report.Regions, trend)
	}

	a.Logger.Info("analyzed temporal patterns", "regions", len(report.Regions))
	return report, nil
}

func (a *TrendAnalyzer) classifyTrend(slope float64) string {
	switch {
	case slope > a.thresholds.SlopeThreshold:
		return TrendRising
	case slope < -a.thresholds.SlopeThreshold:
		return TrendDeclining
	}
	return TrendStable
}

func (a *TrendAnalyzer) classifyVolatility(v float64) string {
	switch {
	case v > a.thresholds.HighVolatility:
		return PatternHighlyVolatile
	case v > a.thresholds.ModerateVolatility:
		return PatternModerateVolatile
	}
	return PatternStable
}

// Register the analyzer
func init() {
	analysis.RegisterAnalyzer(Name, NewTrendAnalyzer)
}
