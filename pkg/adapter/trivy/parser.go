package trivy

import (
	"fmt"
	"strings"

	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/jsonutil"
)

type report struct {
	ArtifactName string   `json:"ArtifactName"`
	Results      []result `json:"Results"`
}

// result is one scanned target: a lockfile, a config file, or an image
// layer's package database. The per-class lists stay raw so one bad
// entry drops only itself.
type result struct {
	Target            string                `json:"Target"`
	Class             string                `json:"Class"`
	Type              string                `json:"Type"`
	Vulnerabilities   []jsonutil.RawMessage `json:"Vulnerabilities"`
	Secrets           []jsonutil.RawMessage `json:"Secrets"`
	Misconfigurations []jsonutil.RawMessage `json:"Misconfigurations"`
}

type vulnerability struct {
	VulnerabilityID  string   `json:"VulnerabilityID"`
	PkgName          string   `json:"PkgName"`
	InstalledVersion string   `json:"InstalledVersion"`
	FixedVersion     string   `json:"FixedVersion"`
	Severity         string   `json:"Severity"`
	Title            string   `json:"Title"`
	Description      string   `json:"Description"`
	PrimaryURL       string   `json:"PrimaryURL"`
	CweIDs           []string `json:"CweIDs"`
}

type secret struct {
	RuleID    string `json:"RuleID"`
	Category  string `json:"Category"`
	Severity  string `json:"Severity"`
	Title     string `json:"Title"`
	StartLine int    `json:"StartLine"`
	EndLine   int    `json:"EndLine"`
	Match     string `json:"Match"`
}

type misconfiguration struct {
	ID            string `json:"ID"`
	AVDID         string `json:"AVDID"`
	Title         string `json:"Title"`
	Message       string `json:"Message"`
	Resolution    string `json:"Resolution"`
	Severity      string `json:"Severity"`
	Status        string `json:"Status"`
	CauseMetadata struct {
		StartLine int `json:"StartLine"`
		EndLine   int `json:"EndLine"`
	} `json:"CauseMetadata"`
}

// Parse converts a trivy JSON report. kind is applied to vulnerability
// findings; secrets and misconfigurations carry their own kinds.
func Parse(data []byte, scanner string, kind finding.Kind, root string) ([]finding.Finding, error) {
	var rep report
	if err := jsonutil.UnmarshalLenient(data, &rep); err != nil {
		return nil, adapter.Undecodable(scanner, err)
	}
	c := adapter.NewCollector(scanner)
	for _, r := range rep.Results {
		path := r.Target
		if kind != finding.KindContainer {
			path = adapter.CleanPath(root, r.Target)
		}
		adapter.DecodeEach(c, r.Vulnerabilities, func(v vulnerability) []finding.Finding {
			return []finding.Finding{fromVulnerability(v, scanner, kind, path, r.Type)}
		})
		adapter.DecodeEach(c, r.Secrets, func(s secret) []finding.Finding {
			return []finding.Finding{fromSecret(s, scanner, path)}
		})
		adapter.DecodeEach(c, r.Misconfigurations, func(m misconfiguration) []finding.Finding {
			if strings.EqualFold(m.Status, "PASS") {
				return nil
			}
			return []finding.Finding{fromMisconfiguration(m, scanner, path)}
		})
	}
	return c.Result()
}

func fromVulnerability(v vulnerability, scanner string, kind finding.Kind, path, pkgType string) finding.Finding {
	sev, _ := finding.ParseSeverity(v.Severity)
	title := v.Title
	if title == "" {
		title = fmt.Sprintf("%s in %s", v.VulnerabilityID, v.PkgName)
	}
	return finding.Finding{
		Scanner:          scanner,
		Kind:             kind,
		RuleID:           v.VulnerabilityID,
		Category:         finding.CategoryVulnerableDep,
		Severity:         sev,
		Title:            title,
		Message:          v.Description,
		FilePath:         path,
		CVEIDs:           finding.ExtractCVEs(v.VulnerabilityID),
		CWEIDs:           v.CweIDs,
		PackageName:      v.PkgName,
		InstalledVersion: v.InstalledVersion,
		FixedVersion:     v.FixedVersion,
		RawFields: map[string]any{
			"package_type": pkgType,
			"primary_url":  v.PrimaryURL,
		},
	}
}

func fromSecret(s secret, scanner, path string) finding.Finding {
	sev, _ := finding.ParseSeverity(s.Severity)
	return finding.Finding{
		Scanner:   scanner,
		Kind:      finding.KindSecret,
		RuleID:    s.RuleID,
		Category:  finding.CategoryHardcodedSecret,
		Severity:  sev,
		Title:     s.Title,
		FilePath:  path,
		LineStart: s.StartLine,
		LineEnd:   s.EndLine,
		Snippet:   adapter.Snippet(s.Match, defaults.SnippetMaxLen),
		RawFields: map[string]any{"secret_category": s.Category},
	}
}

func fromMisconfiguration(m misconfiguration, scanner, path string) finding.Finding {
	sev, _ := finding.ParseSeverity(m.Severity)
	id := m.AVDID
	if id == "" {
		id = m.ID
	}
	return finding.Finding{
		Scanner:   scanner,
		Kind:      finding.KindConfig,
		RuleID:    id,
		Category:  finding.CategoryMisconfiguration,
		Severity:  sev,
		Title:     m.Title,
		Message:   m.Message,
		FilePath:  path,
		LineStart: m.CauseMetadata.StartLine,
		LineEnd:   m.CauseMetadata.EndLine,
		RawFields: map[string]any{"resolution": m.Resolution},
	}
}
