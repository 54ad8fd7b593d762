package normalize

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed data/india.yaml
var defaultGazetteerYAML []byte

// GazetteerFile is the on-disk shape of a region name table
type GazetteerFile struct {
	Country  string       `yaml:"country"`
	Rejected []string     `yaml:"rejected,omitempty"`
	States   []StateEntry `yaml:"states"`
}

// StateEntry describes one canonical state, its aliases and district table.
// A state with no districts is open. KnownDistricts only applies to open
// states: those names are matched exactly and approximately, but the list is
// not exhaustive so other names still pass through.
type StateEntry struct {
	Name            string            `yaml:"name"`
	Aliases         []string          `yaml:"aliases,omitempty"`
	Districts       []string          `yaml:"districts,omitempty"`
	KnownDistricts  []string          `yaml:"known_districts,omitempty"`
	DistrictAliases map[string]string `yaml:"district_aliases,omitempty"`
}

type districtTable struct {
	keys       map[string]string // folded key -> canonical district
	names      []string          // listed canonical districts, sorted; empty when open
	candidates []string          // fuzzy candidates, sorted
}

// Gazetteer is the read-only lookup structure built from a GazetteerFile
type Gazetteer struct {
	file      GazetteerFile
	states    []string
	stateKeys map[string]string
	districts map[string]*districtTable
	rejected  map[string]struct{}
}

// NewGazetteer indexes a name table. Conflicting aliases fail here rather than at lookup time.
func NewGazetteer(f GazetteerFile) (*Gazetteer, error) {
	g := &Gazetteer{
		file:      f,
		stateKeys: make(map[string]string),
		districts: make(map[string]*districtTable),
		rejected:  make(map[string]struct{}),
	}

	for _, r := range f.Rejected {
		g.rejected[foldKey(r)] = struct{}{}
	}

	for _, st := range f.States {
		if foldKey(st.Name) == "" {
			return nil, fmt.Errorf("state entry with empty name")
		}
		if _, dup := g.districts[st.Name]; dup {
			return nil, fmt.Errorf("duplicate state %q", st.Name)
		}
		g.states = append(g.states, st.Name)

		if err := addKey(g.stateKeys, st.Name, st.Name); err != nil {
			return nil, fmt.Errorf("state %q: %w", st.Name, err)
		}
		for _, alias := range st.Aliases {
			if err := addKey(g.stateKeys, alias, st.Name); err != nil {
				return nil, fmt.Errorf("state %q: %w", st.Name, err)
			}
		}

		table, err := buildDistrictTable(st)
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", st.Name, err)
		}
		g.districts[st.Name] = table
	}
	sort.Strings(g.states)

	return g, nil
}

func buildDistrictTable(st StateEntry) (*districtTable, error) {
	t := &districtTable{keys: make(map[string]string)}
	listed := make(map[string]bool, len(st.Districts))

	for _, d := range st.Districts {
		if err := addKey(t.keys, d, d); err != nil {
			return nil, err
		}
		if !listed[d] {
			listed[d] = true
			t.names = append(t.names, d)
		}
	}
	sort.Strings(t.names)

	if len(t.names) > 0 && len(st.KnownDistricts) > 0 {
		return nil, fmt.Errorf("known_districts is only valid for a state without districts")
	}
	candidates := make(map[string]bool)
	for _, d := range st.KnownDistricts {
		if err := addKey(t.keys, d, d); err != nil {
			return nil, err
		}
		candidates[d] = true
	}

	aliases := make([]string, 0, len(st.DistrictAliases))
	for alias := range st.DistrictAliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		target := st.DistrictAliases[alias]
		if len(t.names) > 0 && !listed[target] {
			return nil, fmt.Errorf("district alias %q targets unlisted district %q", alias, target)
		}
		if err := addKey(t.keys, target, target); err != nil {
			return nil, err
		}
		if err := addKey(t.keys, alias, target); err != nil {
			return nil, err
		}
		candidates[target] = true
	}

	if len(t.names) > 0 {
		t.candidates = t.names
	} else {
		t.candidates = slices.Sorted(maps.Keys(candidates))
	}
	return t, nil
}

func addKey(m map[string]string, raw, canonical string) error {
	key := foldKey(raw)
	if key == "" {
		return fmt.Errorf("alias %q folds to an empty key", raw)
	}
	if existing, ok := m[key]; ok && existing != canonical {
		return fmt.Errorf("alias %q maps to both %q and %q", raw, existing, canonical)
	}
	m[key] = canonical
	return nil
}

// ParseGazetteer decodes a YAML name table
func ParseGazetteer(data []byte) (*Gazetteer, error) {
	var f GazetteerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse gazetteer: %w", err)
	}
	return NewGazetteer(f)
}

// LoadGazetteer reads a YAML name table from disk
func LoadGazetteer(path string) (*Gazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gazetteer: %w", err)
	}
	return ParseGazetteer(data)
}

// DefaultGazetteer returns the embedded India tables
func DefaultGazetteer() (*Gazetteer, error) {
	return ParseGazetteer(defaultGazetteerYAML)
}

// WithDistricts returns a copy of g where state additionally knows the given
// districts. A closed state lists them; an open state stays open and adds them
// to its known names. Names already known to the state (directly or by alias)
// are not duplicated.
func (g *Gazetteer) WithDistricts(state string, names ...string) (*Gazetteer, error) {
	f := g.file
	f.States = make([]StateEntry, len(g.file.States))
	copy(f.States, g.file.States)

	for i, st := range f.States {
		if st.Name != state {
			continue
		}

		known := g.districts[state].keys
		added := make(map[string]bool)
		var extra []string
		for _, name := range names {
			key := foldKey(name)
			if key == "" || added[key] {
				continue
			}
			if _, ok := known[key]; ok {
				continue
			}
			added[key] = true
			extra = append(extra, name)
		}

		if len(st.Districts) > 0 {
			st.Districts = append(slices.Clone(st.Districts), extra...)
		} else {
			st.KnownDistricts = append(slices.Clone(st.KnownDistricts), extra...)
		}
		f.States[i] = st
		return NewGazetteer(f)
	}

	return nil, fmt.Errorf("unknown state %q", state)
}

// Country names the region set
func (g *Gazetteer) Country() string {
	return g.file.Country
}

// States returns the canonical state names, sorted
func (g *Gazetteer) States() []string {
	return append([]string(nil), g.states...)
}

// HasState reports whether name is a canonical state
func (g *Gazetteer) HasState(name string) bool {
	_, ok := g.districts[name]
	return ok
}

// Districts returns the listed districts of a state; empty for open states
func (g *Gazetteer) Districts(state string) []string {
	t, ok := g.districts[state]
	if !ok {
		return nil
	}
	return append([]string(nil), t.names...)
}

// KnownDistricts returns the canonical names an open state can match against,
// its known districts and alias targets; for a closed state it equals Districts
func (g *Gazetteer) KnownDistricts(state string) []string {
	t, ok := g.districts[state]
	if !ok {
		return nil
	}
	return slices.Clone(t.candidates)
}

// IsOpen reports whether a state lists no districts
func (g *Gazetteer) IsOpen(state string) bool {
	t, ok := g.districts[state]
	return ok && len(t.names) == 0
}
