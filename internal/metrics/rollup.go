package metrics

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/jengzang/region-insights-go/internal/models"
	"github.com/jengzang/region-insights-go/internal/stats"
)

// Display caps for summaries. Row-level metrics are never capped.
const (
	// SuspectRatio marks a mean monthly ratio that is recomputed from totals
	SuspectRatio = 20.0
	// RecomputedRatioCap bounds the totals-based replacement ratio
	RecomputedRatioCap = 10.0
	// DisplayRatioCap bounds every summary ratio
	DisplayRatioCap = 50.0
)

// DistrictSummary averages one district across all periods
type DistrictSummary struct {
	State               string   `json:"state"`
	District            string   `json:"district"`
	Periods             int      `json:"periods"`
	MeanHolders         float64  `json:"mean_holders"`
	TotalUpdates        int64    `json:"total_updates"`
	DemographicUpdates  int64    `json:"demographic_updates"`
	BiometricUpdates    int64    `json:"biometric_updates"`
	UpdateRatio         float64  `json:"update_ratio"`
	DemoUpdateRatio     float64  `json:"demo_update_ratio"`
	BioUpdateRatio      float64  `json:"bio_update_ratio"`
	BiometricCompliance float64  `json:"biometric_compliance"`
	MeanGrowthRate      *float64 `json:"mean_growth_rate"`
}

// StateSummary aggregates one state in one period with ratios recomputed from totals
type StateSummary struct {
	State               string        `json:"state"`
	Period              models.Period `json:"period"`
	Districts           int           `json:"districts"`
	TotalHolders        int64         `json:"total_holders"`
	TotalUpdates        int64         `json:"total_updates"`
	DemographicUpdates  int64         `json:"demographic_updates"`
	BiometricUpdates    int64         `json:"biometric_updates"`
	UpdateRatio         float64       `json:"update_ratio"`
	BiometricCompliance float64       `json:"biometric_compliance"`
}

// NationalTotals sums every row of a period, the Unresolved bucket included
type NationalTotals struct {
	Period              models.Period `json:"period"`
	Regions             int           `json:"regions"`
	TotalHolders        int64         `json:"total_holders"`
	TotalUpdates        int64         `json:"total_updates"`
	UnresolvedHolders   int64         `json:"unresolved_holders"`
	UpdateRatio         float64       `json:"update_ratio"`
	BiometricCompliance float64       `json:"biometric_compliance"`
}

// Comparison places two regions side by side
type Comparison struct {
	A             models.RegionMetricsRow `json:"a"`
	B             models.RegionMetricsRow `json:"b"`
	ActivityDelta float64                 `json:"activity_delta"`
	QualityDelta  float64                 `json:"quality_delta"`
	// GrowthDelta is nil unless both growth rates are defined
	GrowthDelta *float64 `json:"growth_delta"`
}

type regionKey struct {
	state    string
	district string
}

// DistrictSummaries averages ratios across each district's periods. Rows
// without a canonical district or state are left out.
func (t *Table) DistrictSummaries() []DistrictSummary {
	groups := make(map[regionKey][]models.RegionMetricsRow)
	var order []regionKey
	for r := range t.All() {
		if !r.Key.Resolved() || !r.Key.HasDistrict() {
			continue
		}
		k := regionKey{r.Key.State, r.Key.District}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	slices.SortFunc(order, func(a, b regionKey) int {
		return cmp.Or(strings.Compare(a.state, b.state), strings.Compare(a.district, b.district))
	})

	out := make([]DistrictSummary, 0, len(order))
	for _, k := range order {
		out = append(out, summarizeDistrict(k, groups[k]))
	}
	return out
}

func summarizeDistrict(k regionKey, rows []models.RegionMetricsRow) DistrictSummary {
	s := DistrictSummary{State: k.state, District: k.district, Periods: len(rows)}

	var holders, ratios, demo, bio, compliance, growth []float64
	for _, r := range rows {
		holders = append(holders, float64(r.TotalHolders))
		ratios = append(ratios, r.UpdateRatio)
		demo = append(demo, r.DemoUpdateRatio)
		bio = append(bio, r.BioUpdateRatio)
		compliance = append(compliance, r.BiometricCompliance)
		if r.GrowthRate != nil {
			growth = append(growth, *r.GrowthRate)
		}
		s.TotalUpdates += r.TotalUpdates
		s.DemographicUpdates += r.DemographicUpdates
		s.BiometricUpdates += r.BiometricUpdates
	}

	s.MeanHolders = stats.Mean(holders)
	s.UpdateRatio = stats.Mean(ratios)
	if s.UpdateRatio > SuspectRatio {
		s.UpdateRatio = stats.Clamp(stats.SafeDiv(float64(s.TotalUpdates), s.MeanHolders), 0, RecomputedRatioCap)
	}
	s.UpdateRatio = stats.Clamp(s.UpdateRatio, 0, DisplayRatioCap)
	s.DemoUpdateRatio = stats.Clamp(stats.Mean(demo), 0, DisplayRatioCap)
	s.BioUpdateRatio = stats.Clamp(stats.Mean(bio), 0, DisplayRatioCap)
	s.BiometricCompliance = stats.Mean(compliance)
	if len(growth) > 0 {
		g := stats.Mean(growth)
		s.MeanGrowthRate = &g
	}
	return s
}

// StateSummaries aggregates each resolved state per period
func (t *Table) StateSummaries() []StateSummary {
	type stateKey struct {
		state  string
		period models.Period
	}
	groups := make(map[stateKey]*StateSummary)
	var order []stateKey

	for r := range t.All() {
		if !r.Key.Resolved() {
			continue
		}
		k := stateKey{r.Key.State, r.Key.Period}
		s, ok := groups[k]
		if !ok {
			s = &StateSummary{State: k.state, Period: k.period}
			groups[k] = s
			order = append(order, k)
		}
		if r.Key.HasDistrict() {
			s.Districts++
		}
		s.TotalHolders += r.TotalHolders
		s.TotalUpdates += r.TotalUpdates
		s.DemographicUpdates += r.DemographicUpdates
		s.BiometricUpdates += r.BiometricUpdates
	}

	slices.SortFunc(order, func(a, b stateKey) int {
		return cmp.Or(strings.Compare(a.state, b.state), cmp.Compare(a.period.Index(), b.period.Index()))
	})

	out := make([]StateSummary, 0, len(order))
	for _, k := range order {
		s := groups[k]
		s.UpdateRatio = stats.Clamp(stats.SafeDiv(float64(s.TotalUpdates), float64(s.TotalHolders)), 0, DisplayRatioCap)
		s.BiometricCompliance = stats.SafeDiv(float64(s.BiometricUpdates), float64(s.TotalUpdates))
		out = append(out, *s)
	}
	return out
}

// National totals one period across all rows
func (t *Table) National(p models.Period) NationalTotals {
	n := NationalTotals{Period: p}
	var bio int64
	for _, r := range t.ForPeriod(p) {
		n.Regions++
		n.TotalHolders += r.TotalHolders
		n.TotalUpdates += r.TotalUpdates
		bio += r.BiometricUpdates
		if !r.Key.Resolved() {
			n.UnresolvedHolders += r.TotalHolders
		}
	}
	n.UpdateRatio = stats.SafeDiv(float64(n.TotalUpdates), float64(n.TotalHolders))
	n.BiometricCompliance = stats.SafeDiv(float64(bio), float64(n.TotalUpdates))
	return n
}

// Compare looks up two rows and reports their score differences (a minus b)
func (t *Table) Compare(a, b models.CanonicalKey) (Comparison, error) {
	rowA, ok := t.Get(a)
	if !ok {
		return Comparison{}, fmt.Errorf("failed to compare %s: %w", a, ErrRowNotFound)
	}
	rowB, ok := t.Get(b)
	if !ok {
		return Comparison{}, fmt.Errorf("failed to compare %s: %w", b, ErrRowNotFound)
	}

	c := Comparison{
		A:             rowA,
		B:             rowB,
		ActivityDelta: rowA.ActivityScore - rowB.ActivityScore,
		QualityDelta:  rowA.QualityScore - rowB.QualityScore,
	}
	if rowA.GrowthRate != nil && rowB.GrowthRate != nil {
		d := *rowA.GrowthRate - *rowB.GrowthRate
		c.GrowthDelta = &d
	}
	return c, nil
}
