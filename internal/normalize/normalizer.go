package normalize

import (
	"fmt"
)

// Kind selects the name table a lookup runs against
type Kind string

const (
	KindState    Kind = "state"
	KindDistrict Kind = "district"
)

// Method records how a name was resolved
type Method string

const (
	MethodExact       Method = "exact"
	MethodAlias       Method = "alias"
	MethodFuzzy       Method = "fuzzy"
	MethodPassthrough Method = "passthrough"
	MethodRejected    Method = "rejected"
	MethodNone        Method = "none"
)

// PassthroughConfidence is reported for district names accepted as-is in open states
const PassthroughConfidence = 0.5

// Match is the outcome of one normalization. Name is empty when unresolved.
type Match struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
}

// Resolved reports whether a canonical name was found
func (m Match) Resolved() bool {
	return m.Name != ""
}

// Options tunes the approximate matching step
type Options struct {
	// Threshold is the minimum similarity for a fuzzy match
	Threshold float64
	// AllowUnlistedDistricts lets open states pass district names through title-cased
	AllowUnlistedDistricts bool
	// Similarity defaults to TokenSetRatio
	Similarity Similarity
}

// DefaultOptions returns the production matching options
func DefaultOptions() Options {
	return Options{
		Threshold:              0.85,
		AllowUnlistedDistricts: true,
		Similarity:             TokenSetRatio{},
	}
}

// Normalizer maps raw state and district strings onto canonical names.
// It never mutates its tables and is safe for concurrent use.
type Normalizer struct {
	gazetteer *Gazetteer
	opts      Options
}

// New creates a Normalizer over an injected gazetteer
func New(g *Gazetteer, opts Options) (*Normalizer, error) {
	if g == nil {
		return nil, fmt.Errorf("gazetteer is required")
	}
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("fuzzy threshold must be in (0, 1], got %v", opts.Threshold)
	}
	if opts.Similarity == nil {
		opts.Similarity = TokenSetRatio{}
	}
	return &Normalizer{gazetteer: g, opts: opts}, nil
}

// Gazetteer exposes the tables the normalizer was built with
func (n *Normalizer) Gazetteer() *Gazetteer {
	return n.gazetteer
}

// Normalize resolves raw against the state table, or against the district
// table of stateContext. District lookups need a canonical state context.
func (n *Normalizer) Normalize(raw string, kind Kind, stateContext string) Match {
	key := foldKey(raw)
	if key == "" {
		return Match{Method: MethodNone}
	}
	if _, rejected := n.gazetteer.rejected[key]; rejected {
		return Match{Method: MethodRejected}
	}

	switch kind {
	case KindState:
		return n.lookup(key, n.gazetteer.stateKeys, n.gazetteer.states)
	case KindDistrict:
		table, ok := n.gazetteer.districts[stateContext]
		if !ok {
			return Match{Method: MethodNone}
		}
		if len(table.names) == 0 {
			if m := n.lookup(key, table.keys, table.candidates); m.Resolved() {
				return m
			}
			if n.opts.AllowUnlistedDistricts {
				return Match{Name: titleName(raw), Confidence: PassthroughConfidence, Method: MethodPassthrough}
			}
			return Match{Method: MethodNone}
		}
		return n.lookup(key, table.keys, table.names)
	}
	return Match{Method: MethodNone}
}

// State is shorthand for Normalize(raw, KindState, "")
func (n *Normalizer) State(raw string) Match {
	return n.Normalize(raw, KindState, "")
}

// District is shorthand for Normalize(raw, KindDistrict, state)
func (n *Normalizer) District(raw, state string) Match {
	return n.Normalize(raw, KindDistrict, state)
}

// Consolidate folds spelling variants together. names are in priority order;
// a name that approximately matches exactly one higher-ranked name maps onto
// it, the rest stand for themselves and are left out of the result.
func (n *Normalizer) Consolidate(names []string) map[string]string {
	remap := make(map[string]string)
	var kept []string
	for _, name := range names {
		key := foldKey(name)
		if key == "" {
			continue
		}
		if m := n.lookup(key, nil, kept); m.Resolved() {
			if m.Name != name {
				remap[name] = m.Name
			}
			continue
		}
		kept = append(kept, name)
	}
	return remap
}

func (n *Normalizer) lookup(key string, keys map[string]string, candidates []string) Match {
	if canonical, ok := keys[key]; ok {
		return exactMatch(key, canonical)
	}

	best, bestScore, tied := "", 0.0, false
	for _, candidate := range candidates {
		score := n.opts.Similarity.Score(key, candidate)
		switch {
		case score > bestScore:
			best, bestScore, tied = candidate, score, false
		case score == bestScore && candidate != best:
			tied = true
		}
	}

	if best == "" || bestScore < n.opts.Threshold || tied {
		return Match{Confidence: bestScore, Method: MethodNone}
	}
	return Match{Name: best, Confidence: bestScore, Method: MethodFuzzy}
}

func exactMatch(key, canonical string) Match {
	method := MethodAlias
	if foldKey(canonical) == key {
		method = MethodExact
	}
	return Match{Name: canonical, Confidence: 1, Method: method}
}
