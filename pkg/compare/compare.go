// Package compare diffs two scanforge reports so a CI run can be gated
// on what changed since a baseline instead of on everything present.
//
// Findings are matched by id. Ids are fingerprints of scanner, rule and
// location, and a canonical finding also answers to the ids of its
// duplicates, so a finding that a different scanner wins in the newer run
// still matches.
package compare

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/scanforge/scanforge/pkg/pipeline"
	"github.com/scanforge/scanforge/pkg/priority"
)

// ErrNotReport is returned when a JSON file is not a scanforge report.
var ErrNotReport = errors.New("compare: not a scanforge report")

// Verdicts.
const (
	Improved  = "improved"
	Regressed = "regressed"
	Unchanged = "unchanged"
)

// Entry is one finding in a diff.
type Entry struct {
	ID       string        `json:"id"`
	Title    string        `json:"title,omitempty"`
	Location string        `json:"location"`
	Scanner  string        `json:"scanner"`
	Tier     priority.Tier `json:"tier"`
}

// Change is a matched finding whose tier moved.
type Change struct {
	Entry
	From priority.Tier `json:"from"`
}

// Result holds the full comparison output.
type Result struct {
	BeforeRunID string                `json:"before_run_id"`
	AfterRunID  string                `json:"after_run_id"`
	New         []Entry               `json:"new"`
	Fixed       []Entry               `json:"fixed"`
	Escalated   []Change              `json:"escalated"`
	Lowered     []Change              `json:"lowered"`
	Unchanged   int                   `json:"unchanged"`
	TierDeltas  map[priority.Tier]int `json:"tier_deltas"`
	Verdict     string                `json:"verdict"`
}

// LoadReport reads a report written by 'scanforge scan'.
func LoadReport(path string) (pipeline.Report, error) {
	r, err := pipeline.ReadReportFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return pipeline.Report{}, err
	}
	if err != nil {
		return pipeline.Report{}, fmt.Errorf("%w: %w", ErrNotReport, err)
	}
	if r.RunID == "" {
		return pipeline.Report{}, fmt.Errorf("%w: %s has no run_id", ErrNotReport, path)
	}
	return r, nil
}

// Compare diffs after against the before baseline.
func Compare(before, after pipeline.Report) Result {
	r := Result{
		BeforeRunID: before.RunID,
		AfterRunID:  after.RunID,
		New:         []Entry{},
		Fixed:       []Entry{},
		Escalated:   []Change{},
		Lowered:     []Change{},
		TierDeltas:  make(map[priority.Tier]int),
	}

	index := make(map[string]int)
	for i, fr := range before.Findings {
		for _, id := range ids(fr) {
			if _, taken := index[id]; !taken {
				index[id] = i
			}
		}
		r.TierDeltas[fr.Priority.Tier]--
	}

	matched := make([]bool, len(before.Findings))
	for _, fr := range after.Findings {
		r.TierDeltas[fr.Priority.Tier]++
		e := entry(fr)
		i, ok := lookup(index, fr)
		if !ok {
			r.New = append(r.New, e)
			continue
		}
		matched[i] = true
		from := before.Findings[i].Priority.Tier
		switch to := fr.Priority.Tier; {
		case to.Rank() > from.Rank():
			r.Escalated = append(r.Escalated, Change{Entry: e, From: from})
		case to.Rank() < from.Rank():
			r.Lowered = append(r.Lowered, Change{Entry: e, From: from})
		default:
			r.Unchanged++
		}
	}
	for i, fr := range before.Findings {
		if !matched[i] {
			r.Fixed = append(r.Fixed, entry(fr))
		}
	}
	for t, d := range r.TierDeltas {
		if d == 0 {
			delete(r.TierDeltas, t)
		}
	}

	slices.SortFunc(r.New, byUrgency)
	slices.SortFunc(r.Fixed, byUrgency)
	slices.SortFunc(r.Escalated, func(a, b Change) int { return byUrgency(a.Entry, b.Entry) })
	slices.SortFunc(r.Lowered, func(a, b Change) int { return byUrgency(a.Entry, b.Entry) })

	r.Verdict = r.verdict()
	return r
}

// NewAtLeast counts new and escalated findings at tier t or above.
func (r Result) NewAtLeast(t priority.Tier) int {
	n := 0
	for _, e := range r.New {
		if e.Tier.AtLeast(t) {
			n++
		}
	}
	for _, c := range r.Escalated {
		if c.Tier.AtLeast(t) {
			n++
		}
	}
	return n
}

// verdict: any new actionable finding or escalation regresses; otherwise
// fixing or lowering anything actionable improves.
func (r Result) verdict() string {
	actionable := func(t priority.Tier) bool { return t != priority.Dismissed }
	if len(r.Escalated) > 0 || slices.ContainsFunc(r.New, func(e Entry) bool { return actionable(e.Tier) }) {
		return Regressed
	}
	if len(r.Lowered) > 0 || slices.ContainsFunc(r.Fixed, func(e Entry) bool { return actionable(e.Tier) }) {
		return Improved
	}
	return Unchanged
}

func ids(fr pipeline.FindingReport) []string {
	out := make([]string, 0, 1+len(fr.Duplicates))
	out = append(out, fr.Finding.ID)
	for _, d := range fr.Duplicates {
		out = append(out, d.ID)
	}
	return out
}

func lookup(index map[string]int, fr pipeline.FindingReport) (int, bool) {
	for _, id := range ids(fr) {
		if i, ok := index[id]; ok {
			return i, true
		}
	}
	return 0, false
}

func entry(fr pipeline.FindingReport) Entry {
	f := fr.Finding
	title := f.Title
	if title == "" {
		title = f.RuleID
	}
	return Entry{
		ID:       f.ID,
		Title:    title,
		Location: fmt.Sprintf("%s:%d", f.FilePath, f.LineStart),
		Scanner:  f.Scanner,
		Tier:     fr.Priority.Tier,
	}
}

func byUrgency(a, b Entry) int {
	if c := cmp.Compare(b.Tier.Rank(), a.Tier.Rank()); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
