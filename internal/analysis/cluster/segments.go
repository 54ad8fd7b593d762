package cluster

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/jengzang/region-insights-go/internal/analysis"
	"github.com/jengzang/region-insights-go/internal/metrics"
	"github.com/jengzang/region-insights-go/internal/stats"
)

// Name is the registry name of the analyzer
const Name = "segments"

// Segment labels
const (
	LabelHighActivityQuality     = "High Activity & Quality"
	LabelHighActivity            = "High Activity"
	LabelModerateActivityQuality = "Moderate Activity & Quality"
	LabelModerateActivity        = "Moderate Activity"
	LabelQualityFocused          = "Quality Focused"
	LabelLowEngagement           = "Low Engagement"
)

// Member is one district and the features it was clustered on
type Member struct {
	analysis.Region
	UpdateRatio  float64 `json:"update_ratio"`
	Compliance   float64 `json:"biometric_compliance"`
	GrowthRate   float64 `json:"growth_rate"`
	TotalHolders int64   `json:"total_holders"`
	Segment      int     `json:"segment"`
}

// Segment describes one cluster. IDs are ordered by ascending mean update ratio.
type Segment struct {
	ID              int            `json:"id"`
	Label           string         `json:"label"`
	Size            int            `json:"size"`
	AvgUpdateRatio  float64        `json:"avg_update_ratio"`
	AvgCompliance   float64        `json:"avg_compliance"`
	AvgGrowthRate   float64        `json:"avg_growth_rate"`
	TotalPopulation int64          `json:"total_population"`
	States          int            `json:"states"`
	TopStates       map[string]int `json:"top_states"`
	Recommendations []string       `json:"recommendations"`
}

// Report holds the segments and their members
type Report struct {
	Segments []Segment `json:"segments"`
	Members  []Member  `json:"members"`
}

// Name implements analysis.Report
func (r *Report) Name() string { return Name }

// Summary counts districts per segment label
func (r *Report) Summary() map[string]int {
	counts := make(map[string]int)
	for _, s := range r.Segments {
		counts[s.Label] += s.Size
	}
	return counts
}

// SegmentAnalyzer groups districts by standardized activity, quality and growth
type SegmentAnalyzer struct {
	*analysis.BaseAnalyzer
	kmeans KMeans
}

// NewSegmentAnalyzer creates a new segmentation analyzer
func NewSegmentAnalyzer(logger *slog.Logger) analysis.Analyzer {
	return &SegmentAnalyzer{
		BaseAnalyzer: analysis.NewBaseAnalyzer(Name, logger),
		kmeans:       DefaultKMeans(),
	}
}

// Analyze clusters per-district means. Growth averages the periods that have one,
// and a district with none counts as zero growth.
func (a *SegmentAnalyzer) Analyze(ctx context.Context, t *metrics.Table) (analysis.Report, error) {
	regions, groups := analysis.GroupDistricts(t)
	report := &Report{}
	if len(regions) == 0 {
		return report, nil
	}

	members := make([]Member, len(regions))
	ratios := make([]float64, len(regions))
	compliance := make([]float64, len(regions))
	growth := make([]float64, len(regions))
	for i, region := range regions {
		var r, c, g []float64
		m := Member{Region: region}
		for _, row := range groups[region] {
			r = append(r, row.UpdateRatio)
			c = append(c, row.BiometricCompliance)
			if row.GrowthRate != nil {
				g = append(g, stats.Finite(*row.GrowthRate))
			}
			m.TotalHolders += row.TotalHolders
		}
		m.UpdateRatio, m.Compliance, m.GrowthRate = stats.Mean(r), stats.Mean(c), stats.Mean(g)
		members[i] = m
		ratios[i], compliance[i], growth[i] = m.UpdateRatio, m.Compliance, m.GrowthRate
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zr, zc, zg := stats.Standardize(ratios), stats.Standardize(compliance), stats.Standardize(growth)
	points := make([][]float64, len(members))
	for i := range points {
		points[i] = []float64{zr[i], zc[i], zg[i]}
	}
	labels, centroids := a.kmeans.Fit(points)

	segments := make([]Segment, len(centroids))
	for i := range members {
		members[i].Segment = labels[i]
	}
	for c := range segments {
		segments[c] = describe(c, members)
	}

	// Renumber by ascending activity so IDs are stable across runs
	order := make([]int, len(segments))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(x, y int) int {
		return cmp.Compare(segments[x].AvgUpdateRatio, segments[y].AvgUpdateRatio)
	})
	remap := make([]int, len(segments))
	for newID, oldID := range order {
		remap[oldID] = newID
	}
	for i := range members {
		members[i].Segment = remap[members[i].Segment]
	}
	for i := range segments {
		segments[i].ID = remap[segments[i].ID]
	}
	slices.SortFunc(segments, func(x, y Segment) int { return cmp.Compare(x.ID, y.ID) })

	// Empty clusters carry no information
	segments = slices.DeleteFunc(segments, func(s Segment) bool { return s.Size == 0 })

	report.Segments = segments
	report.Members = members
	a.Logger.Info("segmented districts", "districts", len(members), "segments", len(segments))
	return report, nil
}

func describe(id int, members []Member) Segment {
	s := Segment{ID: id, TopStates: make(map[string]int)}
	var ratios, compliance, growth []float64
	stateCounts := make(map[string]int)
	for _, m := range members {
		if m.Segment != id {
			continue
		}
		s.Size++
		s.TotalPopulation += m.TotalHolders
		ratios = append(ratios, m.UpdateRatio)
		compliance = append(compliance, m.Compliance)
		growth = append(growth, m.GrowthRate)
		stateCounts[m.State]++
	}
	s.AvgUpdateRatio = stats.Mean(ratios)
	s.AvgCompliance = stats.Mean(compliance)
	s.AvgGrowthRate = stats.Mean(growth)
	s.States = len(stateCounts)

	states := make([]string, 0, len(stateCounts))
	for st := range stateCounts {
		states = append(states, st)
	}
	slices.SortFunc(states, func(a, b string) int {
		return cmp.Or(cmp.Compare(stateCounts[b], stateCounts[a]), strings.Compare(a, b))
	})
	for _, st := range states[:min(3, len(states))] {
		s.TopStates[st] = stateCounts[st]
	}

	s.Label = Label(s.AvgUpdateRatio, s.AvgCompliance)
	s.Recommendations = Recommendations(s.Label)
	return s
}

// Label names a segment from its mean update ratio and compliance
func Label(ratio, compliance float64) string {
	switch {
	case ratio > 2.0:
		if compliance > 0.8 {
			return LabelHighActivityQuality
		}
		return LabelHighActivity
	case ratio > 1.0:
		if compliance > 0.6 {
			return LabelModerateActivityQuality
		}
		return LabelModerateActivity
	case compliance > 0.6:
		return LabelQualityFocused
	}
	return LabelLowEngagement
}

// Recommendations returns the follow-up actions for a segment label
func Recommendations(label string) []string {
	switch {
	case strings.Contains(label, "High Activity"):
		return []string{
			"Monitor for data quality issues due to high activity",
			"Consider these districts as best practice examples",
			"Investigate factors driving high engagement",
		}
	case label == LabelLowEngagement:
		return []string{
			"Implement awareness campaigns",
			"Improve service accessibility",
			"Investigate barriers to identity updates",
		}
	case label == LabelQualityFocused:
		return []string{
			"Maintain current quality standards",
			"Share best practices with other districts",
			"Monitor for any decline in engagement",
		}
	}
	return []string{
		"Balanced approach, maintain current levels",
		"Monitor trends for any significant changes",
		"Consider targeted improvements where needed",
	}
}

// Register the analyzer
func init() {
	analysis.RegisterAnalyzer(Name, NewSegmentAnalyzer)
}
