package merge

import (
	"iter"
	"maps"
	"slices"

	"github.com/jengzang/region-insights-go/internal/models"
)

// Table is the reconciled outer join of the three source families.
// Rows are ordered by period, state, district and never change after construction.
type Table struct {
	rows  []models.MergedRow
	index map[models.CanonicalKey]int
}

// NewTable builds a table from rows, summing rows that share a key
func NewTable(rows ...models.MergedRow) *Table {
	byKey := make(map[models.CanonicalKey]*models.MergedRow, len(rows))
	for _, r := range rows {
		existing, ok := byKey[r.Key]
		if !ok {
			row := models.MergedRow{Key: r.Key, Sources: r.Sources}
			existing = &row
			byKey[r.Key] = existing
		} else {
			existing.Sources |= r.Sources
		}
		addCounts(&existing.Enrolment, r.Enrolment)
		addCounts(&existing.Demographic, r.Demographic)
		addCounts(&existing.Biometric, r.Biometric)
	}
	return fromMap(byKey)
}

func fromMap(byKey map[models.CanonicalKey]*models.MergedRow) *Table {
	keys := slices.Collect(maps.Keys(byKey))
	slices.SortFunc(keys, compareKeys)

	t := &Table{
		rows:  make([]models.MergedRow, len(keys)),
		index: make(map[models.CanonicalKey]int, len(keys)),
	}
	for i, k := range keys {
		t.rows[i] = *byKey[k]
		t.index[k] = i
	}
	return t
}

func compareKeys(a, b models.CanonicalKey) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}

func addCounts(dst *models.SourceCounts, src models.SourceCounts) {
	if len(src.Bands) > 0 && dst.Bands == nil {
		dst.Bands = make(map[string]int64, len(src.Bands))
	}
	for band, n := range src.Bands {
		dst.Bands[band] += n
	}
	dst.Total += src.Total
}

// Len returns the number of merged rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Rows returns a copy of the ordered rows
func (t *Table) Rows() []models.MergedRow {
	if t == nil {
		return nil
	}
	return slices.Clone(t.rows)
}

// All iterates the rows in key order
func (t *Table) All() iter.Seq[models.MergedRow] {
	return func(yield func(models.MergedRow) bool) {
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

// Get looks up a row by key
func (t *Table) Get(key models.CanonicalKey) (models.MergedRow, bool) {
	if t == nil {
		return models.MergedRow{}, false
	}
	i, ok := t.index[key]
	if !ok {
		return models.MergedRow{}, false
	}
	return t.rows[i], true
}

// Periods lists the distinct periods in ascending order
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
