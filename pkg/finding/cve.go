package finding

import (
	"strings"

	"github.com/scanforge/scanforge/pkg/regexcache"
)

const cvePattern = `(?i)\bCVE-\d{4}-\d{4,7}\b`

// ExtractCVEs pulls CVE identifiers out of free text, upper-cased and
// deduplicated in order of first appearance.
func ExtractCVEs(texts ...string) []string {
	re := regexcache.MustGet(cvePattern)
	seen := make(map[string]bool)
	var out []string
	for _, t := range texts {
		for _, m := range re.FindAllString(t, -1) {
			id := strings.ToUpper(m)
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// IsCVE reports whether id is a well-formed CVE identifier.
func IsCVE(id string) bool {
	loc := regexcache.MustGet(cvePattern).FindStringIndex(id)
	return loc != nil && loc[0] == 0 && loc[1] == len(id)
}
