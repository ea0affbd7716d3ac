package adapter

import (
	"strings"

	"github.com/scanforge/scanforge/pkg/finding"
)

// keywordCategories is checked in order; the first keyword found in any
// of the inspected texts picks the category.
var keywordCategories = []struct {
	keyword  string
	category string
}{
	{"sql", finding.CategorySQLInjection},
	{"xss", finding.CategoryXSS},
	{"cross-site", finding.CategoryXSS},
	{"cross site", finding.CategoryXSS},
	{"command-injection", finding.CategoryCommandInjection},
	{"command injection", finding.CategoryCommandInjection},
	{"os-command", finding.CategoryCommandInjection},
	{"subprocess", finding.CategoryCommandInjection},
	{"dangerous-system-call", finding.CategoryCommandInjection},
	{"path-traversal", finding.CategoryPathTraversal},
	{"path traversal", finding.CategoryPathTraversal},
	{"directory traversal", finding.CategoryPathTraversal},
	{"hardcoded", finding.CategoryHardcodedSecret},
	{"secret", finding.CategoryHardcodedSecret},
	{"password", finding.CategoryHardcodedSecret},
	{"deserializ", finding.CategoryDeserialization},
	{"pickle", finding.CategoryDeserialization},
	{"crypto", finding.CategoryInsecureCrypto},
	{"weak-hash", finding.CategoryInsecureCrypto},
	{"md5", finding.CategoryInsecureCrypto},
	{"sha1", finding.CategoryInsecureCrypto},
	{"misconfig", finding.CategoryMisconfiguration},
}

// CategoryFromText infers a category from rule ids, tags or titles.
func CategoryFromText(texts ...string) string {
	lowered := make([]string, len(texts))
	for i, t := range texts {
		lowered[i] = strings.ToLower(t)
	}
	for _, kc := range keywordCategories {
		for _, t := range lowered {
			if strings.Contains(t, kc.keyword) {
				return kc.category
			}
		}
	}
	return finding.CategoryOther
}
