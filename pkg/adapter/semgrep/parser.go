package semgrep

import (
	"strings"

	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/jsonutil"
	"github.com/scanforge/scanforge/pkg/regexcache"
)

type report struct {
	Results []jsonutil.RawMessage `json:"results"`
}

type position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

type result struct {
	CheckID string   `json:"check_id"`
	Path    string   `json:"path"`
	Start   position `json:"start"`
	End     position `json:"end"`
	Extra   struct {
		Message  string         `json:"message"`
		Severity string         `json:"severity"`
		Lines    string         `json:"lines"`
		Metadata map[string]any `json:"metadata"`
	} `json:"extra"`
}

// severity applies semgrep's three-level scale, falling back to the
// generic parser for the newer CRITICAL/HIGH/MEDIUM/LOW labels.
func severity(s string) finding.Severity {
	switch strings.ToUpper(s) {
	case "ERROR":
		return finding.High
	case "WARNING":
		return finding.Medium
	case "INFO":
		return finding.Low
	}
	sev, _ := finding.ParseSeverity(s)
	return sev
}

// Parse converts semgrep JSON into findings.
func Parse(data []byte, root string) ([]finding.Finding, error) {
	var rep report
	if err := jsonutil.UnmarshalLenient(data, &rep); err != nil {
		return nil, adapter.Undecodable(Name, err)
	}
	c := adapter.NewCollector(Name)
	adapter.DecodeEach(c, rep.Results, func(r result) []finding.Finding {
		return []finding.Finding{convert(r, root)}
	})
	return c.Result()
}

func convert(r result, root string) finding.Finding {
	meta := r.Extra.Metadata
	cwes := stringsOf(meta["cwe"])
	classes := stringsOf(meta["vulnerability_class"])

	texts := append([]string{r.CheckID}, classes...)
	texts = append(texts, cwes...)

	snippet := r.Extra.Lines
	if snippet == "requires login" {
		snippet = ""
	}

	return finding.Finding{
		Scanner:    Name,
		Kind:       finding.KindCode,
		RuleID:     r.CheckID,
		Category:   adapter.CategoryFromText(texts...),
		Severity:   severity(r.Extra.Severity),
		Title:      lastSegment(r.CheckID),
		Message:    r.Extra.Message,
		FilePath:   adapter.CleanPath(root, r.Path),
		LineStart:  r.Start.Line,
		LineEnd:    r.End.Line,
		Snippet:    adapter.Snippet(snippet, defaults.SnippetMaxLen),
		Confidence: strings.ToLower(firstString(meta["confidence"])),
		CVEIDs:     finding.ExtractCVEs(append(stringsOf(meta["cve"]), r.Extra.Message)...),
		CWEIDs:     cweIDs(cwes),
		RawFields:  map[string]any{"metadata": meta},
	}
}

// stringsOf accepts a metadata value that is either a string or a list.
func stringsOf(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func firstString(v any) string {
	if s := stringsOf(v); len(s) > 0 {
		return s[0]
	}
	return ""
}

// cweIDs reduces "CWE-89: Improper Neutralization..." to "CWE-89".
func cweIDs(in []string) []string {
	re := regexcache.MustGet(`(?i)CWE-\d+`)
	var out []string
	for _, s := range in {
		if m := re.FindString(s); m != "" {
			out = append(out, strings.ToUpper(m))
		}
	}
	return out
}

func lastSegment(id string) string {
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		return id[i+1:]
	}
	return id
}
