package models

// UnresolvedState is the bucket for records whose state matched no canonical name.
// Rows in this bucket count toward national totals but never form an anomaly cohort.
const UnresolvedState = "Unresolved"

// CanonicalKey is the join and group key used by every stage after normalization.
// District is empty when no confident district match exists.
type CanonicalKey struct {
	Period   Period `json:"period"`
	State    string `json:"state"`
	District string `json:"district,omitempty"`
}

// Resolved reports whether the state part of the key is a canonical state
func (k CanonicalKey) Resolved() bool {
	return k.State != "" && k.State != UnresolvedState
}

// HasDistrict reports whether the key carries a canonical district
func (k CanonicalKey) HasDistrict() bool {
	return k.District != ""
}

// Less orders keys by period, state, then district
func (k CanonicalKey) Less(o CanonicalKey) bool {
	if k.Period != o.Period {
		return k.Period.Before(o.Period)
	}
	if k.State != o.State {
		return k.State < o.State
	}
	return k.District < o.District
}

func (k CanonicalKey) String() string {
	district := k.District
	if district == "" {
		district = "-"
	}
	return k.Period.String() + "/" + k.State + "/" + district
}

// SourceSet records which source families contributed to a merged row
type SourceSet uint8

const (
	SourceEnrolment SourceSet = 1 << iota
	SourceDemographic
	SourceBiometric
)

// SourceFor maps a category to its bit
func SourceFor(c Category) SourceSet {
	switch c {
	case CategoryEnrolment:
		return SourceEnrolment
	case CategoryDemographic:
		return SourceDemographic
	case CategoryBiometric:
		return SourceBiometric
	}
	return 0
}

// Has reports whether the family c was observed
func (s SourceSet) Has(c Category) bool {
	bit := SourceFor(c)
	return bit != 0 && s&bit != 0
}

// SourceCounts holds summed counts for one family, per age band
type SourceCounts struct {
	Bands map[string]int64 `json:"bands,omitempty"`
	Total int64            `json:"total"`
}

// Band returns the count for an age band, zero when absent
func (c SourceCounts) Band(band string) int64 {
	return c.Bands[band]
}

// MergedRow is one reconciled region-period before metrics are derived
type MergedRow struct {
	Key         CanonicalKey `json:"key"`
	Enrolment   SourceCounts `json:"enrolment"`
	Demographic SourceCounts `json:"demographic"`
	Biometric   SourceCounts `json:"biometric"`
	Sources     SourceSet    `json:"sources"`
}

// RegionMetricsRow holds the derived KPIs of one region-period
type RegionMetricsRow struct {
	Key CanonicalKey `json:"key"`

	// Counts
	TotalHolders       int64 `json:"total_holders" db:"total_holders"`
	TotalUpdates       int64 `json:"total_updates" db:"total_updates"`
	DemographicUpdates int64 `json:"demographic_updates" db:"demographic_updates"`
	BiometricUpdates   int64 `json:"biometric_updates" db:"biometric_updates"`

	// Ratios
	UpdateRatio         float64 `json:"update_ratio" db:"update_ratio"`
	BiometricCompliance float64 `json:"biometric_compliance" db:"biometric_compliance"` // unclipped, may exceed 1
	DemoUpdateRatio     float64 `json:"demo_update_ratio" db:"demo_update_ratio"`
	BioUpdateRatio      float64 `json:"bio_update_ratio" db:"bio_update_ratio"`

	// Comparative scores in [0, 1]
	ActivityScore float64 `json:"activity_score" db:"activity_score"`
	QualityScore  float64 `json:"quality_score" db:"quality_score"`

	// GrowthRate is nil when the previous period has no enrolment data
	GrowthRate *float64 `json:"growth_rate" db:"growth_rate"`
}

// Severity is the label assigned by anomaly classification
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for "most severe wins" aggregation
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	}
	return 0
}

// AnomalyRecord is the classification of one metrics row, referenced by key
type AnomalyRecord struct {
	Key      CanonicalKey `json:"key"`
	Severity Severity     `json:"severity" db:"severity"`
	Score    float64      `json:"anomaly_score" db:"anomaly_score"`
	Rule     string       `json:"triggering_rule" db:"triggering_rule"`
	Note     string       `json:"note,omitempty" db:"note"`
}

// LatLng is a plain degree pair used in API payloads
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundaryRef points at a boundary geometry without carrying it
type BoundaryRef struct {
	ID       string  `json:"id"`
	State    string  `json:"state"`
	District string  `json:"district,omitempty"`
	Centroid LatLng  `json:"centroid"`
	AreaKm2  float64 `json:"area_km2"`
	Geohash  string  `json:"geohash"`
}

// BoundaryMatch aligns a metrics row to a boundary; Boundary is nil when unmatched
type BoundaryMatch struct {
	Key        CanonicalKey `json:"key"`
	Boundary   *BoundaryRef `json:"boundary"`
	Confidence float64      `json:"match_confidence"`
}
