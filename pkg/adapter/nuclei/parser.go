package nuclei

import (
	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/jsonutil"
)

type event struct {
	TemplateID string `json:"template-id"`
	Type       string `json:"type"`
	Host       string `json:"host"`
	MatchedAt  string `json:"matched-at"`
	Matcher    string `json:"matcher-name"`
	Info       struct {
		Name           string   `json:"name"`
		Severity       string   `json:"severity"`
		Description    string   `json:"description"`
		Tags           []string `json:"tags"`
		Classification struct {
			CVEID []string `json:"cve-id"`
			CWEID []string `json:"cwe-id"`
		} `json:"classification"`
	} `json:"info"`
}

// Parse converts nuclei JSONL output. Each line is an independent event.
func Parse(data []byte) ([]finding.Finding, error) {
	events, bad := jsonutil.DecodeLines[event](data)
	c := adapter.NewCollector(Name)
	for _, ev := range events {
		c.Add(convert(ev))
	}
	for _, le := range bad {
		c.Fail(le)
	}
	return c.Result()
}

func convert(ev event) finding.Finding {
	sev, _ := finding.ParseSeverity(ev.Info.Severity)
	texts := append([]string{ev.TemplateID}, ev.Info.Tags...)
	location := ev.MatchedAt
	if location == "" {
		location = ev.Host
	}
	return finding.Finding{
		Scanner:  Name,
		Kind:     finding.KindDynamic,
		RuleID:   ev.TemplateID,
		Category: adapter.CategoryFromText(texts...),
		Severity: sev,
		Title:    ev.Info.Name,
		Message:  ev.Info.Description,
		FilePath: location,
		CVEIDs:   finding.ExtractCVEs(append(ev.Info.Classification.CVEID, ev.TemplateID)...),
		CWEIDs:   ev.Info.Classification.CWEID,
		RawFields: map[string]any{
			"type":         ev.Type,
			"matcher_name": ev.Matcher,
			"tags":         ev.Info.Tags,
		},
	}
}
