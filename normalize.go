package factsync

import (
	"strings"
	"unicode"
)

const (
	// KeyDelimiter joins identity components into a composite key
	KeyDelimiter = "||"

	// MissingComponent stands in for any absent or blank identity component
	MissingComponent = "<NA>"
)

// normalizeComponent prepares one identity component for a composite key.
//
// Normalizations performed:
// - Non-breaking and other Unicode spaces → trimmed like ASCII spaces
// - Zero-width characters (BOM, ZWSP...) → removed
// - Blank → MissingComponent
// - '\' and '|' → backslash-escaped, so KeyDelimiter never occurs inside a component
func normalizeComponent(s string) string {
	s = removeInvisibleChars(s)
	s = strings.TrimFunc(s, unicode.IsSpace)
	if s == "" {
		return MissingComponent
	}
	if strings.ContainsAny(s, `\|`) {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `|`, `\|`)
	}
	return s
}

// removeInvisibleChars drops zero-width and format characters that sometimes
// survive copy/paste of tickers and labels into CSV files
func removeInvisibleChars(s string) string {
	if strings.IndexFunc(s, isInvisible) < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isInvisible(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isInvisible(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u180E':
		return true
	}
	return unicode.Is(unicode.Cf, r)
}

// CleanText trims surrounding whitespace (including NBSP) and invisible
// characters from a free-text field read at the retrieval or CSV boundary
func CleanText(s string) string {
	return strings.TrimFunc(removeInvisibleChars(s), unicode.IsSpace)
}

// normalizeFiscalYear renders a fiscal year key component
func normalizeFiscalYear(fy FiscalYear) string {
	if !fy.Valid {
		return MissingComponent
	}
	return fy.String()
}

// normalizeDate renders a filing date key component
func normalizeDate(f Fact) string {
	if !f.HasFilingDate() {
		return MissingComponent
	}
	return f.FilingDateString()
}
