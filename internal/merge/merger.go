package merge

import (
	"cmp"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/region-insights-go/internal/models"
	"github.com/jengzang/region-insights-go/internal/normalize"
)

// AllBands is the band recorded for records that carry no age breakdown
const AllBands = "all"

// Diagnostics reports data quality conditions seen while merging.
// Nothing here is an error: affected records are either bucketed or skipped.
type Diagnostics struct {
	Ingested             map[models.Category]int `json:"ingested"`
	Skipped              map[models.Category]int `json:"skipped"`
	UnresolvedStates     int                     `json:"unresolved_states"`
	UnresolvedDistricts  int                     `json:"unresolved_districts"`
	FuzzyMatches         int                     `json:"fuzzy_matches"`
	PassthroughDistricts int                     `json:"passthrough_districts"`
	// ConsolidatedDistricts counts passthrough spellings folded into a more frequent variant
	ConsolidatedDistricts int `json:"consolidated_districts"`
	// UnresolvedNames counts records per unresolved raw name, keyed "state:<raw>" or "district:<state>/<raw>"
	UnresolvedNames map[string]int `json:"unresolved_names,omitempty"`
}

func newDiagnostics() Diagnostics {
	return Diagnostics{
		Ingested:        make(map[models.Category]int),
		Skipped:         make(map[models.Category]int),
		UnresolvedNames: make(map[string]int),
	}
}

func (d *Diagnostics) absorb(o Diagnostics) {
	for c, n := range o.Ingested {
		d.Ingested[c] += n
	}
	for c, n := range o.Skipped {
		d.Skipped[c] += n
	}
	for name, n := range o.UnresolvedNames {
		d.UnresolvedNames[name] += n
	}
	d.UnresolvedStates += o.UnresolvedStates
	d.UnresolvedDistricts += o.UnresolvedDistricts
	d.FuzzyMatches += o.FuzzyMatches
	d.PassthroughDistricts += o.PassthroughDistricts
}

// TotalSkipped sums malformed records across families
func (d Diagnostics) TotalSkipped() int {
	total := 0
	for _, n := range d.Skipped {
		total += n
	}
	return total
}

// Merger groups each source family by canonical key and outer-joins the results
type Merger struct {
	normalizer *normalize.Normalizer
	logger     *slog.Logger
}

// NewMerger creates a Merger; a nil logger falls back to slog.Default
func NewMerger(n *normalize.Normalizer, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{normalizer: n, logger: logger.With("component", "merge")}
}

type familyResult struct {
	counts map[models.CanonicalKey]*models.SourceCounts
	diag   Diagnostics
	// passthrough counts records per (state, district) accepted unlisted
	passthrough map[[2]string]int
}

// Merge reconciles the three families. Keys present in any family appear
// once in the output with absent families at zero. A nil source is empty.
func (m *Merger) Merge(enrolment, demographic, biometric iter.Seq[models.RawRecord]) (*Table, Diagnostics) {
	sources := map[models.Category]iter.Seq[models.RawRecord]{
		models.CategoryEnrolment:   enrolment,
		models.CategoryDemographic: demographic,
		models.CategoryBiometric:   biometric,
	}

	results := make([]familyResult, len(models.Categories))
	var g errgroup.Group
	for i, category := range models.Categories {
		g.Go(func() error {
			results[i] = m.group(category, sources[category])
			return nil
		})
	}
	// grouping never fails; Wait is the join point
	_ = g.Wait()

	diag := newDiagnostics()
	joined := make(map[models.CanonicalKey]*models.MergedRow)
	passthrough := make(map[[2]string]int)
	for i, category := range models.Categories {
		res := results[i]
		diag.absorb(res.diag)
		for name, n := range res.passthrough {
			passthrough[name] += n
		}

		for key, counts := range res.counts {
			row, ok := joined[key]
			if !ok {
				row = &models.MergedRow{Key: key}
				joined[key] = row
			}
			row.Sources |= models.SourceFor(category)
			switch category {
			case models.CategoryEnrolment:
				row.Enrolment = *counts
			case models.CategoryDemographic:
				row.Demographic = *counts
			case models.CategoryBiometric:
				row.Biometric = *counts
			}
		}
	}

	var table *Table
	if remap := m.consolidate(passthrough); len(remap) > 0 {
		diag.ConsolidatedDistricts = len(remap)
		rows := make([]models.MergedRow, 0, len(joined))
		for _, row := range joined {
			if target, ok := remap[[2]string{row.Key.State, row.Key.District}]; ok {
				row.Key.District = target
			}
			rows = append(rows, *row)
		}
		table = NewTable(rows...)
	} else {
		table = fromMap(joined)
	}

	m.logger.Info("merged sources",
		"rows", table.Len(),
		"ingested", diag.Ingested,
		"skipped", diag.TotalSkipped(),
		"unresolved_states", diag.UnresolvedStates,
		"unresolved_districts", diag.UnresolvedDistricts,
		"fuzzy_matches", diag.FuzzyMatches,
		"passthrough_districts", diag.PassthroughDistricts,
		"consolidated_districts", diag.ConsolidatedDistricts,
	)
	return table, diag
}

// consolidate maps rarer passthrough spellings in a state onto the most
// frequent variant they approximately match
func (m *Merger) consolidate(passthrough map[[2]string]int) map[[2]string]string {
	byState := make(map[string][]string)
	for name := range passthrough {
		byState[name[0]] = append(byState[name[0]], name[1])
	}

	remap := make(map[[2]string]string)
	for state, names := range byState {
		if len(names) < 2 {
			continue
		}
		slices.SortFunc(names, func(a, b string) int {
			if c := cmp.Compare(passthrough[[2]string{state, b}], passthrough[[2]string{state, a}]); c != 0 {
				return c
			}
			return strings.Compare(a, b)
		})
		for variant, target := range m.normalizer.Consolidate(names) {
			remap[[2]string{state, variant}] = target
			m.logger.Debug("consolidated passthrough district", "state", state, "variant", variant, "district", target)
		}
	}
	return remap
}

// group sums one family per canonical key. It runs on its own goroutine and
// only shares the read-only normalizer with the other families.
func (m *Merger) group(category models.Category, source iter.Seq[models.RawRecord]) familyResult {
	res := familyResult{
		counts:      make(map[models.CanonicalKey]*models.SourceCounts),
		diag:        newDiagnostics(),
		passthrough: make(map[[2]string]int),
	}
	if source == nil {
		return res
	}

	resolver := newResolver(m.normalizer, res.passthrough)
	for rec := range source {
		if !wellFormed(rec, category) {
			res.diag.Skipped[category]++
			continue
		}
		res.diag.Ingested[category]++

		key := resolver.key(rec, &res.diag)
		counts, ok := res.counts[key]
		if !ok {
			counts = &models.SourceCounts{Bands: make(map[string]int64)}
			res.counts[key] = counts
		}
		band := rec.AgeBand
		if band == "" {
			band = AllBands
		}
		counts.Bands[band] += rec.Count
		counts.Total += rec.Count
	}

	if n := res.diag.Skipped[category]; n > 0 {
		m.logger.Warn("skipped malformed records", "category", category, "count", n)
	}
	return res
}

func wellFormed(rec models.RawRecord, category models.Category) bool {
	return !rec.Date.IsZero() &&
		strings.TrimSpace(rec.StateRaw) != "" &&
		rec.Count >= 0 &&
		rec.Category == category
}

// resolver memoizes name lookups for a single goroutine
type resolver struct {
	normalizer  *normalize.Normalizer
	states      map[string]normalize.Match
	districts   map[[2]string]normalize.Match
	passthrough map[[2]string]int
}

func newResolver(n *normalize.Normalizer, passthrough map[[2]string]int) *resolver {
	return &resolver{
		normalizer:  n,
		states:      make(map[string]normalize.Match),
		districts:   make(map[[2]string]normalize.Match),
		passthrough: passthrough,
	}
}

func (r *resolver) key(rec models.RawRecord, diag *Diagnostics) models.CanonicalKey {
	key := models.CanonicalKey{Period: models.PeriodOf(rec.Date), State: models.UnresolvedState}

	state, ok := r.states[rec.StateRaw]
	if !ok {
		state = r.normalizer.State(rec.StateRaw)
		r.states[rec.StateRaw] = state
	}
	if !state.Resolved() {
		diag.UnresolvedStates++
		diag.UnresolvedNames["state:"+strings.TrimSpace(rec.StateRaw)]++
		return key
	}
	key.State = state.Name
	if state.Method == normalize.MethodFuzzy {
		diag.FuzzyMatches++
	}

	if strings.TrimSpace(rec.DistrictRaw) == "" {
		diag.UnresolvedDistricts++
		return key
	}

	lookup := [2]string{state.Name, rec.DistrictRaw}
	district, ok := r.districts[lookup]
	if !ok {
		district = r.normalizer.District(rec.DistrictRaw, state.Name)
		r.districts[lookup] = district
	}
	switch {
	case !district.Resolved():
		diag.UnresolvedDistricts++
		diag.UnresolvedNames["district:"+state.Name+"/"+strings.TrimSpace(rec.DistrictRaw)]++
	case district.Method == normalize.MethodFuzzy:
		diag.FuzzyMatches++
	case district.Method == normalize.MethodPassthrough:
		diag.PassthroughDistricts++
		r.passthrough[[2]string{state.Name, district.Name}]++
	}
	key.District = district.Name
	return key
}

// UnresolvedNameList returns the unresolved raw names ordered by record count, most frequent first
func (d Diagnostics) UnresolvedNameList() []string {
	names := slices.Collect(maps.Keys(d.UnresolvedNames))
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(d.UnresolvedNames[b], d.UnresolvedNames[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return names
}
