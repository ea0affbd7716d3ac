package finding

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Finding is one issue reported by one scanner, normalized into the
// common shape. Treat it as a value: copy it, never edit a shared one.
type Finding struct {
	ID        string   `json:"id"`
	Scanner   string   `json:"scanner"`
	Kind      Kind     `json:"kind"`
	RuleID    string   `json:"rule_id"`
	Category  string   `json:"category"`
	Severity  Severity `json:"severity"`
	Title     string   `json:"title,omitempty"`
	Message   string   `json:"message,omitempty"`
	FilePath  string   `json:"file_path"`
	LineStart int      `json:"line_start"`
	LineEnd   int      `json:"line_end"`
	Snippet   string   `json:"code_snippet,omitempty"`

	// Confidence is the scanner's own confidence, when it reports one.
	Confidence string `json:"confidence,omitempty"`

	CVEIDs []string `json:"cve_ids"`
	CWEIDs []string `json:"cwe_ids,omitempty"`

	// Dependency findings carry the vulnerable package coordinates.
	PackageName      string `json:"package_name,omitempty"`
	InstalledVersion string `json:"installed_version,omitempty"`
	FixedVersion     string `json:"fixed_version,omitempty"`

	// RawFields keeps scanner-specific data the common shape has no slot for.
	RawFields map[string]any `json:"raw_scanner_fields,omitempty"`
}

// Fingerprint returns the stable id for a finding:
// <scanner>-<rule>-<first 8 hex of murmur3(file:line)>.
func Fingerprint(scanner, ruleID, filePath string, line int) string {
	h1, _ := murmur3.Sum128([]byte(filePath + ":" + strconv.Itoa(line)))
	return fmt.Sprintf("%s-%s-%08x", scanner, ruleID, uint32(h1>>32))
}

// Normalize fills derived fields and canonicalizes sets. It returns a copy;
// the receiver is left untouched.
func (f Finding) Normalize() Finding {
	out := f.Clone()
	out.Category = strings.ToLower(strings.TrimSpace(out.Category))
	if out.Category == "" {
		out.Category = CategoryOther
	}
	if !out.Severity.IsValid() {
		sev, _ := ParseSeverity(string(out.Severity))
		out.Severity = sev
	}
	if out.Kind == "" {
		out.Kind = KindCode
	}
	if out.LineEnd < out.LineStart {
		out.LineEnd = out.LineStart
	}
	out.CVEIDs = canonicalSet(out.CVEIDs, strings.ToUpper)
	out.CWEIDs = canonicalSet(out.CWEIDs, strings.ToUpper)
	if out.ID == "" {
		out.ID = Fingerprint(out.Scanner, out.RuleID, out.FilePath, out.LineStart)
	}
	return out
}

// Validate reports the first structural problem with f.
func (f Finding) Validate() error {
	if f.Scanner == "" {
		return ErrMissingScanner
	}
	if !f.Severity.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidSeverity, f.Severity)
	}
	if f.LineStart < 0 || f.LineEnd < f.LineStart {
		return fmt.Errorf("%w: %d-%d", ErrInvalidLocation, f.LineStart, f.LineEnd)
	}
	return nil
}

// Clone returns a deep copy so the result shares no slices or maps with f.
func (f Finding) Clone() Finding {
	out := f
	out.CVEIDs = slices.Clone(f.CVEIDs)
	out.CWEIDs = slices.Clone(f.CWEIDs)
	if f.RawFields != nil {
		out.RawFields = maps.Clone(f.RawFields)
	}
	return out
}

// HasCVE reports whether the finding references any CVE.
func (f Finding) HasCVE() bool {
	return len(f.CVEIDs) > 0
}

func canonicalSet(in []string, norm func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = norm(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
