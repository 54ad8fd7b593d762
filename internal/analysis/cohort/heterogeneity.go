package cohort

import (
	"context"
	"log/slog"
	"slices"

	"github.com/jengzang/region-insights-go/internal/analysis"
	"github.com/jengzang/region-insights-go/internal/metrics"
	"github.com/jengzang/region-insights-go/internal/stats"
)

// Name is the registry name of the analyzer
const Name = "spatial_heterogeneity"

// Heterogeneity labels
const (
	HighlyHeterogeneous     = "highly_heterogeneous"
	ModeratelyHeterogeneous = "moderately_heterogeneous"
	Homogeneous             = "homogeneous"
)

// StateSpread measures how unevenly districts of one state behave
type StateSpread struct {
	State        string  `json:"state"`
	Districts    int     `json:"districts"`
	MeanRatio    float64 `json:"mean_update_ratio"`
	CVUpdate     float64 `json:"cv_update_ratio"`
	CVCompliance float64 `json:"cv_compliance"`
	Pattern      string  `json:"spatial_pattern"`
}

// Report lists every state with at least two districts
type Report struct {
	States []StateSpread `json:"states"`
}

// Name implements analysis.Report
func (r *Report) Name() string { return Name }

// Summary counts states per pattern
func (r *Report) Summary() map[string]int {
	return analysis.CountLabels(r.States, func(s StateSpread) string { return s.Pattern })
}

// HeterogeneityAnalyzer computes the coefficient of variation of district means per state
type HeterogeneityAnalyzer struct {
	*analysis.BaseAnalyzer
}

// NewHeterogeneityAnalyzer creates a new heterogeneity analyzer
func NewHeterogeneityAnalyzer(logger *slog.Logger) analysis.Analyzer {
	return &HeterogeneityAnalyzer{BaseAnalyzer: analysis.NewBaseAnalyzer(Name, logger)}
}

// Analyze averages each district over time, then compares districts within a state
func (a *HeterogeneityAnalyzer) Analyze(ctx context.Context, t *metrics.Table) (analysis.Report, error) {
	regions, groups := analysis.GroupDistricts(t)

	ratiosByState := make(map[string][]float64)
	complianceByState := make(map[string][]float64)
	var states []string
	for _, region := range regions {
		var ratios, compliance []float64
		for _, r := range groups[region] {
			ratios = append(ratios, r.UpdateRatio)
			compliance = append(compliance, r.BiometricCompliance)
		}
		if _, ok := ratiosByState[region.State]; !ok {
			states = append(states, region.State)
		}
		ratiosByState[region.State] = append(ratiosByState[region.State], stats.Mean(ratios))
		complianceByState[region.State] = append(complianceByState[region.State], stats.Mean(compliance))
	}
	slices.Sort(states)

	report := &Report{}
	for _, state := range states {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ratios := ratiosByState[state]
		if len(ratios) < 2 {
			continue
		}
		spread := StateSpread{
			State:        state,
			Districts:    len(ratios),
			MeanRatio:    stats.Mean(ratios),
			CVUpdate:     stats.CoefficientOfVariation(ratios),
			CVCompliance: stats.CoefficientOfVariation(complianceByState[state]),
		}
		switch {
		case spread.CVUpdate > 1.0:
			spread.Pattern = HighlyHeterogeneous
		case spread.CVUpdate > 0.5:
			spread.Pattern = ModeratelyHeterogeneous
		default:
			spread.Pattern = Homogeneous
		}
		report.States = append(report.States, spread)
	}

	a.Logger.Info("analyzed spatial heterogeneity", "states", len(report.States))
	return report, nil
}

// Register the analyzer
func init() {
	analysis.RegisterAnalyzer(Name, NewHeterogeneityAnalyzer)
}
