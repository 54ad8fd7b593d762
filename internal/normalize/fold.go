package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldKey reduces a raw name to its lookup key: case-folded, diacritics
// stripped, "&" spelled out, dots and "*" markers dropped, other
// punctuation turned into spaces and whitespace collapsed.
func foldKey(raw string) string {
	// transformers and casers carry state, so they are built per call
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(stripMarks, raw)
	if err != nil {
		s = raw
	}
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '&':
			b.WriteString(" and ")
		case r == '.' || r == '*':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// titleName renders an unlisted name for display, e.g. "NORTH  WEST*" -> "North West"
func titleName(raw string) string {
	cleaned := strings.TrimRight(strings.TrimSpace(raw), "* ")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return cases.Title(language.English).String(cleaned)
}
