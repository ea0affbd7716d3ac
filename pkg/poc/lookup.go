package poc

import (
	"strings"

	"github.com/scanforge/scanforge/pkg/finding"
)

// Kind is one template family.
type Kind struct {
	Template string // file under templates/poc, without .tmpl
	Payload  string // default probe
}

var (
	sqli      = Kind{Template: "sqli.py", Payload: "' OR '1'='1"}
	xss       = Kind{Template: "xss.html", Payload: "<script>alert(document.domain)</script>"}
	cmdi      = Kind{Template: "cmdi.sh", Payload: "; id"}
	traversal = Kind{Template: "traversal.py", Payload: "../../../../../../etc/passwd"}
)

// categoryKinds maps normalized category names to template families.
var categoryKinds = map[string]Kind{
	"sql-injection":         sqli,
	"sqli":                  sqli,
	"xss":                   xss,
	"cross-site-scripting":  xss,
	"command-injection":     cmdi,
	"os-command-injection":  cmdi,
	"rce":                   cmdi,
	"remote-code-execution": cmdi,
	"path-traversal":        traversal,
	"directory-traversal":   traversal,
	"local-file-inclusion":  traversal,
}

// cweKinds is the fallback when the category is unknown.
var cweKinds = map[string]Kind{
	"CWE-89": sqli,
	"CWE-79": xss,
	"CWE-77": cmdi,
	"CWE-78": cmdi,
	"CWE-94": cmdi,
	"CWE-22": traversal,
	"CWE-23": traversal,
}

func normalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "-", " ", "-").Replace(s)
}

// Lookup picks the template family for f by category, then by CWE.
func Lookup(f finding.Finding) (Kind, bool) {
	if k, ok := categoryKinds[normalizeCategory(f.Category)]; ok {
		return k, true
	}
	for _, cwe := range f.CWEIDs {
		id, _, _ := strings.Cut(cwe, ":")
		if k, ok := cweKinds[strings.ToUpper(strings.TrimSpace(id))]; ok {
			return k, true
		}
	}
	return Kind{}, false
}
