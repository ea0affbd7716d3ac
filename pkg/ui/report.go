package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/scanforge/scanforge/pkg/enrich"
	"github.com/scanforge/scanforge/pkg/pipeline"
	"github.com/scanforge/scanforge/pkg/poc"
	"github.com/scanforge/scanforge/pkg/priority"
	"github.com/scanforge/scanforge/pkg/strutil"
)

// maxTitle bounds the title column so wide findings do not wrap the table.
const maxTitle = 60

var titleCase = cases.Title(language.English)

// TierTitle renders a tier for humans: "Critical", "Dismissed".
func TierTitle(t priority.Tier) string {
	return titleCase.String(string(t))
}

// RenderReport writes the scanner status table, the findings table and the
// per-tier summary.
func RenderReport(w io.Writer, r pipeline.Report) error {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("scanforge "+r.Target) + "\n")
	b.WriteString(MutedStyle.Render(fmt.Sprintf("run %s  %dms  dedup=%s", r.RunID, r.DurationMS, r.DedupStrategy)) + "\n")

	b.WriteString(SectionStyle.Render("Scanners") + "\n")
	b.WriteString(scannerTable(r).Render() + "\n")
	if len(r.DegradedEnrichers) > 0 {
		b.WriteString(WarnStyle.Render(Icon("⚠ ", "! ")+"degraded enrichers: "+strings.Join(r.DegradedEnrichers, ", ")) + "\n")
	}

	b.WriteString(SectionStyle.Render(fmt.Sprintf("Findings (%d, %d raw)", r.Summary.Findings, r.Summary.RawFindings)) + "\n")
	if len(r.Findings) == 0 {
		b.WriteString(MutedStyle.Render("no findings") + "\n")
	} else {
		b.WriteString(findingTable(r).Render() + "\n")
	}

	b.WriteString(SectionStyle.Render("Summary") + "\n")
	b.WriteString(summaryLine(r.Summary) + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func scannerTable(r pipeline.Report) *table.Table {
	statuses := r.Scanners
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(BorderStyle).
		Headers("SCANNER", "STATUS", "FINDINGS", "DURATION", "ERROR").
		Rows(rowsOf(len(statuses), func(i int) []string {
			s := statuses[i]
			status := string(s.Status)
			if s.Partial {
				status += " (partial)"
			}
			return []string{s.Name, status, strconv.Itoa(s.Findings), fmt.Sprintf("%dms", s.DurationMS), SanitizeString(s.Error)}
		})...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle
			}
			if col == 1 && row >= 0 && row < len(statuses) {
				return StatusStyle(statuses[row].Status).Padding(0, 1)
			}
			return CellStyle
		})
}

func findingTable(r pipeline.Report) *table.Table {
	frs := r.Findings
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(BorderStyle).
		Headers("TIER", "SCORE", "ID", "LOCATION", "TITLE", "SIGNALS").
		Rows(rowsOf(len(frs), func(i int) []string {
			fr := frs[i]
			f := fr.Finding
			title := f.Title
			if title == "" {
				title = f.RuleID
			}
			return []string{
				TierTitle(fr.Priority.Tier),
				strconv.FormatFloat(fr.Priority.Score, 'f', 1, 64),
				f.ID,
				fmt.Sprintf("%s:%d", f.FilePath, f.LineStart),
				strutil.Truncate(SanitizeString(title), maxTitle),
				signals(fr),
			}
		})...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle
			}
			if col == 0 && row >= 0 && row < len(frs) {
				return TierStyle(frs[row].Priority.Tier).Padding(0, 1)
			}
			return CellStyle
		})
}

// signals summarizes the enrichment that moved a finding's tier.
func signals(fr pipeline.FindingReport) string {
	var parts []string
	e := fr.Enrichment
	if e.KEV.Status == enrich.KEVInCatalog {
		parts = append(parts, "KEV")
	}
	if score, ok := e.EPSSScore(); ok {
		parts = append(parts, "EPSS "+strconv.FormatFloat(score, 'f', 2, 64))
	}
	switch e.Reachable {
	case enrich.Reachable:
		parts = append(parts, "reachable")
	case enrich.Unreachable:
		parts = append(parts, "unreachable")
	}
	if e.IsFalsePositive() {
		parts = append(parts, "fp:"+e.FalsePositive.Rule)
	}
	if n := len(fr.Duplicates); n > 0 {
		parts = append(parts, fmt.Sprintf("+%d dup", n))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func summaryLine(s pipeline.Summary) string {
	parts := make([]string, 0, len(priority.Tiers))
	for _, t := range priority.Tiers {
		parts = append(parts, TierStyle(t).Render(fmt.Sprintf("%s %d", TierTitle(t), s.ByTier[t])))
	}
	line := strings.Join(parts, "  ")
	if s.FalsePositives > 0 {
		line += MutedStyle.Render(fmt.Sprintf("  (%d likely false positive)", s.FalsePositives))
	}
	return line
}

// RenderArtifact writes a PoC outcome followed by its content.
func RenderArtifact(w io.Writer, a poc.Artifact) error {
	var b strings.Builder
	accepted := a.State == poc.StateAccepted

	head := fmt.Sprintf("%s %s", a.FindingID, a.State)
	if a.Template != "" {
		head += " (" + a.Template + ")"
	}
	b.WriteString(OutcomeStyle(accepted, a.Warnings).Render(head) + "\n")
	if a.Reason != "" {
		b.WriteString(MutedStyle.Render(SanitizeString(a.Reason)) + "\n")
	}
	for _, s := range a.Substitutions {
		b.WriteString(WarnStyle.Render(fmt.Sprintf("%s line %d: substituted %s", Icon("↻", "~"), s.Line, s.Rule)) + "\n")
	}
	for _, h := range a.Warnings {
		b.WriteString(WarnStyle.Render(fmt.Sprintf("%s line %d: %s", Icon("⚠", "!"), h.Line, h.Rule)) + "\n")
	}
	if accepted {
		b.WriteString("\n" + a.Content)
		if !strings.HasSuffix(a.Content, "\n") {
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func rowsOf(n int, row func(int) []string) [][]string {
	out := make([][]string, n)
	for i := range n {
		out[i] = row(i)
	}
	return out
}
