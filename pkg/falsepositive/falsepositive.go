// Package falsepositive flags findings that are probably not real
// issues: test code, sanitized input, mock data and text that never
// executes. Flagged findings stay in the report; the prioritizer
// dismisses them.
package falsepositive

import (
	"context"
	"log/slog"
	"sync"

	"github.com/scanforge/scanforge/pkg/enrich"
	"github.com/scanforge/scanforge/pkg/finding"
)

// Name is the enricher name used in degraded lists.
const Name = "false_positive"

// Verdict is the outcome for one finding.
type Verdict struct {
	Flag    bool
	Rule    string
	Reason  string
	Field   Field
	Pattern string
}

// Stats counts verdicts since the detector was created.
type Stats struct {
	TotalRules int            `json:"total_rules"`
	Checked    int            `json:"checked"`
	Flagged    int            `json:"flagged"`
	ByRule     map[string]int `json:"by_rule"`
}

// Detector applies an ordered rule table. It is safe for concurrent use.
type Detector struct {
	rules  []Rule
	logger *slog.Logger

	mu      sync.Mutex
	checked int
	byRule  map[string]int
}

// Options configures a Detector.
type Options struct {
	// Rules replaces the built-in table; nil means DefaultRules.
	Rules []Rule

	// UserFile, when set, is loaded and overlaid on Rules via Extend.
	UserFile string

	Logger *slog.Logger
}

// NewDetector builds a detector. It fails only on a bad user file.
func NewDetector(opts Options) (*Detector, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	if opts.UserFile != "" {
		user, err := LoadRules(opts.UserFile)
		if err != nil {
			return nil, err
		}
		rules = Extend(rules, user)
		opts.Logger.Debug("false-positive rules extended",
			slog.String("file", opts.UserFile),
			slog.Int("user_rules", len(user)))
	}
	return &Detector{
		rules:  rules,
		logger: opts.Logger,
		byRule: make(map[string]int),
	}, nil
}

// Rules returns the active rule ids in evaluation order.
func (d *Detector) Rules() []string {
	ids := make([]string, 0, len(d.rules))
	for _, r := range d.rules {
		if !r.Disabled {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Check runs the table over f; the first matching rule wins.
func (d *Detector) Check(f finding.Finding) Verdict {
	v := Verdict{}
	for i := range d.rules {
		r := &d.rules[i]
		if m := r.Matches(f); m != nil {
			v = Verdict{Flag: true, Rule: r.ID, Reason: r.Reason, Field: m.Field, Pattern: m.Pattern}
			break
		}
	}

	d.mu.Lock()
	d.checked++
	if v.Flag {
		d.byRule[v.Rule]++
	}
	d.mu.Unlock()
	return v
}

// Stats returns a snapshot of the counters.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{TotalRules: len(d.Rules()), Checked: d.checked, ByRule: make(map[string]int, len(d.byRule))}
	for id, n := range d.byRule {
		s.ByRule[id] = n
		s.Flagged += n
	}
	return s
}

// Name implements enrich.Enricher.
func (d *Detector) Name() string { return Name }

// Enrich implements enrich.Enricher. Every finding gets a verdict,
// flagged or not; the detector has no failure mode.
func (d *Detector) Enrich(_ context.Context, f finding.Finding) (enrich.Enrichment, error) {
	v := d.Check(f)
	if v.Flag {
		d.logger.Debug("likely false positive",
			slog.String("finding", f.ID),
			slog.String("rule", v.Rule),
			slog.String("field", string(v.Field)))
	}
	return enrich.Enrichment{FalsePositive: &enrich.FalsePositive{
		Flag:   v.Flag,
		Reason: v.Reason,
		Rule:   v.Rule,
	}}, nil
}
