// Package priority turns a finding and its enrichment into a score and a
// tier. Rules apply in a fixed order and every one that fires is recorded,
// so a tier can always be explained.
package priority

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/enrich"
	"github.com/scanforge/scanforge/pkg/finding"
)

// Rule names as recorded in RuleApplication.
const (
	RuleKEV           = "kev"
	RuleEPSS          = "epss"
	RuleReachability  = "reachability"
	RuleFalsePositive = "false_positive"
)

// RuleApplication records one rule that fired.
type RuleApplication struct {
	Rule   string `json:"rule"`
	From   Tier   `json:"from"`
	To     Tier   `json:"to"`
	Reason string `json:"reason"`
}

// Score is the prioritization of one finding.
type Score struct {
	Score    float64           `json:"score"`
	Tier     Tier              `json:"tier"`
	Baseline Tier              `json:"baseline_tier"`
	Applied  []RuleApplication `json:"applied_rules"`
}

// Config holds the tunable weights.
type Config struct {
	// EPSSThreshold raises a tier when the EPSS probability exceeds it.
	EPSSThreshold float64 `yaml:"epss_threshold"`

	// EPSSWeight scales the probability into score points.
	EPSSWeight float64 `yaml:"epss_weight"`

	// UnreachablePenalty is subtracted for dependencies that are never called.
	UnreachablePenalty float64 `yaml:"unreachable_penalty"`
}

// DefaultConfig returns the standard weights.
func DefaultConfig() Config {
	return Config{
		EPSSThreshold:      defaults.EPSSEscalationThreshold,
		EPSSWeight:         defaults.PriorityEPSSWeight,
		UnreachablePenalty: defaults.PriorityUnreachablePenalty,
	}
}

// Validate checks the weights are in range.
func (c Config) Validate() error {
	if c.EPSSThreshold < 0 || c.EPSSThreshold > 1 {
		return fmt.Errorf("priority: epss_threshold %v outside [0,1]", c.EPSSThreshold)
	}
	if c.EPSSWeight < 0 {
		return fmt.Errorf("priority: epss_weight %v is negative", c.EPSSWeight)
	}
	if c.UnreachablePenalty < 0 {
		return fmt.Errorf("priority: unreachable_penalty %v is negative", c.UnreachablePenalty)
	}
	return nil
}

// Base severity scores.
var severityScores = map[finding.Severity]float64{
	finding.Critical: 90,
	finding.High:     70,
	finding.Medium:   50,
	finding.Low:      30,
	finding.Info:     10,
}

// Prioritize scores f. It is pure: equal inputs give equal outputs.
//
// Tier rules, in order: KEV listing sets critical; EPSS above the
// threshold raises one tier; an unreachable dependency lowers one tier;
// a false positive is dismissed. Score: severity base, floored at 100 for
// KEV, plus weight*EPSS, minus the unreachable penalty, zero for false
// positives, clamped to [0,100].
func Prioritize(f finding.Finding, e enrich.Enrichment, cfg Config) Score {
	base := Baseline(f.Severity)
	s := Score{Tier: base, Baseline: base}
	score := severityScores[f.Severity]

	apply := func(rule string, to Tier, reason string) {
		s.Applied = append(s.Applied, RuleApplication{Rule: rule, From: s.Tier, To: to, Reason: reason})
		s.Tier = to
	}

	if e.KEV.Status == enrich.KEVInCatalog {
		apply(RuleKEV, Critical, fmt.Sprintf("%s is in the CISA KEV catalog", kevID(f, e)))
		score = math.Max(score, defaults.PriorityKEVFloor)
	}

	if epss, ok := e.EPSSScore(); ok {
		if epss > cfg.EPSSThreshold {
			apply(RuleEPSS, s.Tier.Raise(),
				fmt.Sprintf("EPSS %.3f above %.2f", epss, cfg.EPSSThreshold))
		}
		score += cfg.EPSSWeight * epss
	}

	if e.Reachable == enrich.Unreachable {
		apply(RuleReachability, s.Tier.Lower(), "vulnerable package is not called")
		score -= cfg.UnreachablePenalty
	}

	if e.IsFalsePositive() {
		apply(RuleFalsePositive, Dismissed, "likely false positive: "+e.FalsePositive.Reason)
		score = 0
	}

	s.Score = round2(clamp(score, 0, defaults.PriorityMaxScore))
	return s
}

func kevID(f finding.Finding, e enrich.Enrichment) string {
	if e.KEV.CVE != "" {
		return e.KEV.CVE
	}
	if len(f.CVEIDs) > 0 {
		return f.CVEIDs[0]
	}
	return "finding"
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Compare orders by urgency: tier, then score, both descending. Ties are
// left to the caller.
func Compare(a, b Score) int {
	if c := cmp.Compare(b.Tier.Rank(), a.Tier.Rank()); c != 0 {
		return c
	}
	return cmp.Compare(b.Score, a.Score)
}

// CountByTier tallies scores per tier, every tier present.
func CountByTier(scores []Score) map[Tier]int {
	out := make(map[Tier]int, len(Tiers))
	for _, t := range Tiers {
		out[t] = 0
	}
	for _, s := range scores {
		out[s.Tier]++
	}
	return out
}

// Highest returns the most urgent tier in scores, or "" when empty.
func Highest(scores []Score) Tier {
	if len(scores) == 0 {
		return ""
	}
	return slices.MinFunc(scores, Compare).Tier
}
