package metrics

import (
	"iter"
	"slices"

	"github.com/jengzang/region-insights-go/internal/models"
)

// Table holds computed metrics rows ordered by period, state, district.
// The zero value is an uncomputed table.
type Table struct {
	rows     []models.RegionMetricsRow
	index    map[models.CanonicalKey]int
	computed bool
}

func newTable(rows []models.RegionMetricsRow) *Table {
	slices.SortStableFunc(rows, func(a, b models.RegionMetricsRow) int {
		switch {
		case a.Key.Less(b.Key):
			return -1
		case b.Key.Less(a.Key):
			return 1
		}
		return 0
	})

	index := make(map[models.CanonicalKey]int, len(rows))
	for i, r := range rows {
		index[r.Key] = i
	}
	return &Table{rows: rows, index: index, computed: true}
}

// FromRows wraps already-derived rows, e.g. rows reloaded from a snapshot
func FromRows(rows ...models.RegionMetricsRow) *Table {
	return newTable(slices.Clone(rows))
}

// Computed reports whether the table was produced by Compute or FromRows
func (t *Table) Computed() bool {
	return t != nil && t.computed
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Rows returns a copy of the rows
func (t *Table) Rows() []models.RegionMetricsRow {
	if t == nil {
		return nil
	}
	return slices.Clone(t.rows)
}

// All iterates the rows in key order
func (t *Table) All() iter.Seq[models.RegionMetricsRow] {
	return func(yield func(models.RegionMetricsRow) bool) {
		if t == nil {
			return
		}
		for _, r := range t.rows {
			if !yield(r) {
				return
			}
		}
	}
}

// Get looks up the row for key
func (t *Table) Get(key models.CanonicalKey) (models.RegionMetricsRow, bool) {
	if t == nil {
		return models.RegionMetricsRow{}, false
	}
	i, ok := t.index[key]
	if !ok {
		return models.RegionMetricsRow{}, false
	}
	return t.rows[i], true
}

// Periods lists distinct periods in ascending order
func (t *Table) Periods() []models.Period {
	if t == nil {
		return nil
	}
	var periods []models.Period
	for _, r := range t.rows {
		if n := len(periods); n == 0 || periods[n-1] != r.Key.Period {
			periods = append(periods, r.Key.Period)
		}
	}
	return periods
}

// LatestPeriod returns the most recent period, false for an empty table
func (t *Table) LatestPeriod() (models.Period, bool) {
	if t.Len() == 0 {
		return models.Period{}, false
	}
	return t.rows[len(t.rows)-1].Key.Period, true
}

// ForPeriod returns the rows of one period
func (t *Table) ForPeriod(p models.Period) []models.RegionMetricsRow {
	var out []models.RegionMetricsRow
	for r := range t.All() {
		if r.Key.Period == p {
			out = append(out, r)
		}
	}
	return out
}

// Series returns one region's rows in period order
func (t *Table) Series(state, district string) []models.RegionMetricsRow {
	var out []models.RegionMetricsRow
	for r := range t.All() {
		if r.Key.State == state && r.Key.District == district {
			out = append(out, r)
		}
	}
	return out
}
