package anomaly

import (
	"cmp"
	"slices"
	"strings"

	"github.com/jengzang/region-insights-go/internal/models"
)

// Cohort identifies a state-period group
type Cohort struct {
	State  string        `json:"state"`
	Period models.Period `json:"period"`
	Size   int           `json:"size"`
}

func sortCohorts(cs []Cohort) {
	slices.SortFunc(cs, func(a, b Cohort) int {
		return cmp.Or(cmp.Compare(a.Period.Index(), b.Period.Index()), strings.Compare(a.State, b.State))
	})
}

// Summary counts records per severity and per triggering rule
type Summary struct {
	Total    int            `json:"total"`
	Normal   int            `json:"normal"`
	Warning  int            `json:"warning"`
	Critical int            `json:"critical"`
	ByRule   map[string]int `json:"by_rule"`
}

// Result holds one record per metrics row, in the metrics table's order
type Result struct {
	Records []models.AnomalyRecord `json:"records"`
	// Degenerate lists cohorts too small for the statistical rules
	Degenerate []Cohort `json:"degenerate_cohorts"`

	index map[models.CanonicalKey]int
}

func newResult(records []models.AnomalyRecord, degenerate []Cohort) *Result {
	index := make(map[models.CanonicalKey]int, len(records))
	for i, r := range records {
		index[r.Key] = i
	}
	return &Result{Records: records, Degenerate: degenerate, index: index}
}

// NewResult rebuilds a result from stored records
func NewResult(records []models.AnomalyRecord) *Result {
	return newResult(slices.Clone(records), nil)
}

// Get returns the record for key
func (r *Result) Get(key models.CanonicalKey) (models.AnomalyRecord, bool) {
	i, ok := r.index[key]
	if !ok {
		return models.AnomalyRecord{}, false
	}
	return r.Records[i], true
}

// Summary counts severities
func (r *Result) Summary() Summary {
	s := Summary{Total: len(r.Records), ByRule: make(map[string]int)}
	for _, rec := range r.Records {
		switch rec.Severity {
		case models.SeverityCritical:
			s.Critical++
		case models.SeverityWarning:
			s.Warning++
		default:
			s.Normal++
		}
		s.ByRule[rec.Rule]++
	}
	return s
}

// Top returns the n highest-scoring records, ties broken by key order
func (r *Result) Top(n int) []models.AnomalyRecord {
	if n <= 0 {
		return nil
	}
	sorted := slices.Clone(r.Records)
	slices.SortStableFunc(sorted, func(a, b models.AnomalyRecord) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		switch {
		case a.Key.Less(b.Key):
			return -1
		case b.Key.Less(a.Key):
			return 1
		}
		return 0
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// BySeverity filters records with the given label
func (r *Result) BySeverity(sev models.Severity) []models.AnomalyRecord {
	var out []models.AnomalyRecord
	for _, rec := range r.Records {
		if rec.Severity == sev {
			out = append(out, rec)
		}
	}
	return out
}
