package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// normalizeSnippet applies NFKC and collapses every whitespace run to a
// single space, so formatting differences between scanners disappear.
func normalizeSnippet(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// tokenSet splits a normalized snippet into identifier and number tokens.
func tokenSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[strings.ToLower(f)] = struct{}{}
	}
	return set
}

// overlap is the Jaccard index of two token sets. Two empty sets overlap
// fully.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
