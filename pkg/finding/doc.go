// Package finding provides the canonical finding model shared by every
// scanner adapter and every downstream stage.
//
// A Finding is produced once by an adapter and never mutated afterwards.
// Stages that need to annotate a finding (enrichment, prioritization) carry
// their data alongside it instead of editing it.
//
// Usage:
//
//	f := finding.Finding{
//	    Scanner:  "bandit",
//	    RuleID:   "B608",
//	    Category: finding.CategorySQLInjection,
//	    Severity: finding.High,
//	    FilePath: "app.py",
//	    LineStart: 10,
//	}
//	f = f.Normalize()
package finding
