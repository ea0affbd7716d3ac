package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/scanforge/scanforge/pkg/compare"
	"github.com/scanforge/scanforge/pkg/priority"
	"github.com/scanforge/scanforge/pkg/strutil"
)

// RenderComparison writes a baseline diff: verdict, then each non-empty
// change list.
func RenderComparison(w io.Writer, r compare.Result) error {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(fmt.Sprintf("compare %s %s %s", r.BeforeRunID, Icon("→", "->"), r.AfterRunID)) + "\n")
	b.WriteString(verdictStyle(r.Verdict).Render(r.Verdict) +
		MutedStyle.Render(fmt.Sprintf("  %d unchanged", r.Unchanged)) + "\n")

	section := func(title string, n int) {
		b.WriteString(SectionStyle.Render(fmt.Sprintf("%s (%d)", title, n)) + "\n")
	}
	line := func(e compare.Entry, from priority.Tier) {
		tier := TierStyle(e.Tier).Render(fmt.Sprintf("%-9s", TierTitle(e.Tier)))
		if from != "" {
			tier = TierStyle(from).Render(TierTitle(from)) + " " + Icon("→", "->") + " " + tier
		}
		fmt.Fprintf(&b, "  %s  %s  %s  %s\n", tier, e.ID, e.Location,
			MutedStyle.Render(strutil.Truncate(SanitizeString(e.Title), maxTitle)))
	}

	if len(r.New) > 0 {
		section("New", len(r.New))
		for _, e := range r.New {
			line(e, "")
		}
	}
	if len(r.Escalated) > 0 {
		section("Escalated", len(r.Escalated))
		for _, c := range r.Escalated {
			line(c.Entry, c.From)
		}
	}
	if len(r.Lowered) > 0 {
		section("Lowered", len(r.Lowered))
		for _, c := range r.Lowered {
			line(c.Entry, c.From)
		}
	}
	if len(r.Fixed) > 0 {
		section("Fixed", len(r.Fixed))
		for _, e := range r.Fixed {
			line(e, "")
		}
	}

	var deltas []string
	for _, t := range priority.Tiers {
		if d, ok := r.TierDeltas[t]; ok {
			deltas = append(deltas, TierStyle(t).Render(fmt.Sprintf("%s %+d", TierTitle(t), d)))
		}
	}
	if len(deltas) > 0 {
		b.WriteString(SectionStyle.Render("Tier deltas") + "\n" + strings.Join(deltas, "  ") + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func verdictStyle(v string) lipgloss.Style {
	switch v {
	case compare.Regressed:
		return ErrorStyle
	case compare.Improved:
		return lipgloss.NewStyle().Foreground(Success).Bold(true)
	default:
		return MutedStyle
	}
}
