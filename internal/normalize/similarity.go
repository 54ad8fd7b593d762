package normalize

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity scores two names in [0, 1], 1 meaning identical
type Similarity interface {
	Score(a, b string) float64
}

// TokenSetRatio compares names as token sets so word order and repeated
// words do not matter. The shared tokens are compared against each side's
// full token list and the best Levenshtein ratio wins. When one side's tokens
// are a strict subset of the other's, only the two full sorted token lists
// are compared, so a single shared word cannot score as an identical name.
type TokenSetRatio struct{}

// Score implements Similarity
func (TokenSetRatio) Score(a, b string) float64 {
	ta, tb := tokenSet(foldKey(a)), tokenSet(foldKey(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var inter, onlyA, onlyB []string
	for tok := range ta {
		if tb[tok] {
			inter = append(inter, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tb {
		if !ta[tok] {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	t0 := strings.Join(inter, " ")
	t1 := joinNonEmpty(t0, strings.Join(onlyA, " "))
	t2 := joinNonEmpty(t0, strings.Join(onlyB, " "))

	if len(onlyA) == 0 || len(onlyB) == 0 {
		return levenshteinRatio(t1, t2)
	}
	return max(levenshteinRatio(t0, t1), levenshteinRatio(t0, t2), levenshteinRatio(t1, t2))
}

func tokenSet(key string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(key) {
		set[tok] = true
	}
	return set
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

// levenshteinRatio is 1 - distance/longer length; an empty side scores 0
func levenshteinRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
