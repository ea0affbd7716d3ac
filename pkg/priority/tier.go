package priority

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scanforge/scanforge/pkg/finding"
)

// Tier is the action bucket a finding lands in.
type Tier string

const (
	Critical  Tier = "critical"
	High      Tier = "high"
	Medium    Tier = "medium"
	Low       Tier = "low"
	Dismissed Tier = "dismissed"
)

// Tiers lists every tier from most to least urgent.
var Tiers = []Tier{Critical, High, Medium, Low, Dismissed}

// ErrUnknownTier is returned by ParseTier.
var ErrUnknownTier = errors.New("priority: unknown tier")

// ParseTier accepts a tier name in any case.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if t.Rank() < 0 {
		return "", fmt.Errorf("%w %q (want one of %s)", ErrUnknownTier, s, tierNames())
	}
	return t, nil
}

func tierNames() string {
	names := make([]string, len(Tiers))
	for i, t := range Tiers {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// Rank orders tiers: dismissed 0 through critical 4, -1 when invalid.
func (t Tier) Rank() int {
	switch t {
	case Critical:
		return 4
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	case Dismissed:
		return 0
	}
	return -1
}

// AtLeast reports whether t is as urgent as o or more.
func (t Tier) AtLeast(o Tier) bool { return t.Rank() >= o.Rank() }

// Raise moves one tier up, stopping at critical. Dismissed stays put.
func (t Tier) Raise() Tier {
	switch t {
	case High:
		return Critical
	case Medium:
		return High
	case Low:
		return Medium
	}
	return t
}

// Lower moves one tier down, stopping at low. Dismissed stays put.
func (t Tier) Lower() Tier {
	switch t {
	case Critical:
		return High
	case High:
		return Medium
	case Medium:
		return Low
	}
	return t
}

// Baseline maps a severity to its starting tier; info starts at low.
func Baseline(s finding.Severity) Tier {
	switch s {
	case finding.Critical:
		return Critical
	case finding.High:
		return High
	case finding.Medium:
		return Medium
	}
	return Low
}
