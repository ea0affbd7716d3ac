package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/priority"
	"github.com/scanforge/scanforge/pkg/safety"
)

// Palette.
var (
	Primary = lipgloss.Color("#7D56F4")
	Muted   = lipgloss.Color("#6B7280")

	Critical = lipgloss.Color("#FF0000")
	High     = lipgloss.Color("#FF6B6B")
	Medium   = lipgloss.Color("#FFD93D")
	Low      = lipgloss.Color("#6BCB77")

	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Error   = lipgloss.Color("#FF3838")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(Primary).
			Padding(0, 1)

	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			MarginTop(1)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().Padding(0, 1)

	MutedStyle = lipgloss.NewStyle().Foreground(Muted)

	WarnStyle = lipgloss.NewStyle().Foreground(Warning).Bold(true)

	ErrorStyle = lipgloss.NewStyle().Foreground(Error).Bold(true)

	BorderStyle = lipgloss.NewStyle().Foreground(Muted)
)

// TierStyle colors a priority tier.
func TierStyle(t priority.Tier) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch t {
	case priority.Critical:
		return base.Foreground(Critical)
	case priority.High:
		return base.Foreground(High)
	case priority.Medium:
		return base.Foreground(Medium)
	case priority.Low:
		return base.Foreground(Low)
	default:
		return lipgloss.NewStyle().Foreground(Muted)
	}
}

// StatusStyle colors a scanner status.
func StatusStyle(s adapter.Status) lipgloss.Style {
	switch s {
	case adapter.StatusOK:
		return lipgloss.NewStyle().Foreground(Success)
	case adapter.StatusTimeout, adapter.StatusNotInstalled:
		return WarnStyle
	default:
		return ErrorStyle
	}
}

// OutcomeStyle colors a PoC outcome.
func OutcomeStyle(accepted bool, warnings []safety.Hit) lipgloss.Style {
	switch {
	case !accepted:
		return ErrorStyle
	case len(warnings) > 0:
		return WarnStyle
	default:
		return lipgloss.NewStyle().Foreground(Success).Bold(true)
	}
}
