package behavior

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jengzang/region-insights-go/internal/analysis"
	"github.com/jengzang/region-insights-go/internal/metrics"
	"github.com/jengzang/region-insights-go/internal/stats"
)

// Name is the registry name of the analyzer
const Name = "behavioral_patterns"

// Behavior labels; a region may carry several
const (
	MigrationHeavy = "migration_heavy"
	QualityFocused = "quality_focused"
	LowEngagement  = "low_engagement"
	HighActivity   = "high_activity"
	Balanced       = "balanced"
)

// RegionBehavior compares one district's mean activity against the median district
type RegionBehavior struct {
	analysis.Region
	DemoRatio  float64  `json:"demo_update_ratio"`
	BioRatio   float64  `json:"bio_update_ratio"`
	Compliance float64  `json:"biometric_compliance"`
	Labels     []string `json:"labels"`
}

// Pattern joins the labels the way they are stored
func (b RegionBehavior) Pattern() string {
	return strings.Join(b.Labels, ",")
}

// Report lists every district's behavior labels
type Report struct {
	Regions []RegionBehavior `json:"regions"`
}

// Name implements analysis.Report
func (r *Report) Name() string { return Name }

// Summary counts regions per individual label
func (r *Report) Summary() map[string]int {
	counts := make(map[string]int)
	for _, b := range r.Regions {
		for _, l := range b.Labels {
			counts[l]++
		}
	}
	return counts
}

// PatternAnalyzer labels districts relative to the national median district
type PatternAnalyzer struct {
	*analysis.BaseAnalyzer
}

// NewPatternAnalyzer creates a new behavioral pattern analyzer
func NewPatternAnalyzer(logger *slog.Logger) analysis.Analyzer {
	return &PatternAnalyzer{BaseAnalyzer: analysis.NewBaseAnalyzer(Name, logger)}
}

// Analyze averages each district over time and compares against medians
func (a *PatternAnalyzer) Analyze(ctx context.Context, t *metrics.Table) (analysis.Report, error) {
	regions, groups := analysis.GroupDistricts(t)

	report := &Report{Regions: make([]RegionBehavior, 0, len(regions))}
	demos := make([]float64, 0, len(regions))
	bios := make([]float64, 0, len(regions))
	compliances := make([]float64, 0, len(regions))

	for _, region := range regions {
		var demo, bio, compliance []float64
		for _, r := range groups[region] {
			demo = append(demo, r.DemoUpdateRatio)
			bio = append(bio, r.BioUpdateRatio)
			compliance = append(compliance, r.BiometricCompliance)
		}
		b := RegionBehavior{
			Region:     region,
			DemoRatio:  stats.Mean(demo),
			BioRatio:   stats.Mean(bio),
			Compliance: stats.Mean(compliance),
		}
		report.Regions = append(report.Regions, b)
		demos = append(demos, b.DemoRatio)
		bios = append(bios, b.BioRatio)
		compliances = append(compliances, b.Compliance)
	}

	medDemo := stats.Median(demos)
	medBio := stats.Median(bios)
	medCompliance := stats.Median(compliances)

	for i := range report.Regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := &report.Regions[i]
		if b.DemoRatio > medDemo && b.BioRatio < medBio {
			b.Labels = append(b.Labels, MigrationHeavy)
		}
		if b.BioRatio > medBio && b.Compliance > medCompliance {
			b.Labels = append(b.Labels, QualityFocused)
		}
		if b.DemoRatio < medDemo && b.BioRatio < medBio {
			b.Labels = append(b.Labels, LowEngagement)
		}
		if b.DemoRatio > medDemo && b.BioRatio > medBio {
			b.Labels = append(b.Labels, HighActivity)
		}
		if len(b.Labels) == 0 {
			b.Labels = []string{Balanced}
		}
	}

	a.Logger.Info("analyzed behavioral patterns", "regions", len(report.Regions))
	return report, nil
}

// Register the analyzer
func init() {
	analysis.RegisterAnalyzer(Name, NewPatternAnalyzer)
}
