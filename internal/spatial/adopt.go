package spatial

import (
	"maps"
	"slices"
	"strings"

	"github.com/jengzang/region-insights-go/internal/normalize"
)

// AdoptBoundaryDistricts extends the open states of n's gazetteer with the
// district names a boundary file uses. Only names the normalizer would pass
// through are adopted; names it already resolves keep their canonical form.
// It returns the extended gazetteer and the number of names adopted.
func AdoptBoundaryDistricts(n *normalize.Normalizer, boundaries []BoundaryRecord) (*normalize.Gazetteer, int, error) {
	g := n.Gazetteer()

	byState := make(map[string][]string)
	for _, rec := range boundaries {
		name := strings.TrimSpace(rec.DistrictName)
		if name == "" {
			continue
		}
		state := n.State(rec.StateName)
		if !state.Resolved() || !g.IsOpen(state.Name) {
			continue
		}
		if n.District(name, state.Name).Method != normalize.MethodPassthrough {
			continue
		}
		byState[state.Name] = append(byState[state.Name], name)
	}

	adopted := 0
	for _, state := range slices.Sorted(maps.Keys(byState)) {
		before := len(g.KnownDistricts(state))
		next, err := g.WithDistricts(state, byState[state]...)
		if err != nil {
			return nil, 0, err
		}
		adopted += len(next.KnownDistricts(state)) - before
		g = next
	}
	return g, adopted, nil
}
