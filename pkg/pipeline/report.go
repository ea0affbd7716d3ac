package pipeline

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/dedup"
	"github.com/scanforge/scanforge/pkg/enrich"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/jsonutil"
	"github.com/scanforge/scanforge/pkg/orchestrator"
	"github.com/scanforge/scanforge/pkg/priority"
)

// Report is the result of one run. Fields are only ever added.
type Report struct {
	RunID             string                `json:"run_id"`
	Target            string                `json:"target"`
	StartedAt         time.Time             `json:"started_at"`
	DurationMS        int64                 `json:"duration_ms"`
	DedupStrategy     dedup.Strategy        `json:"dedup_strategy"`
	Scanners          []orchestrator.Status `json:"scanners"`
	DegradedEnrichers []string              `json:"degraded_enrichers"`
	Findings          []FindingReport       `json:"findings"`
	Summary           Summary               `json:"summary"`
}

// FindingReport is one deduplicated issue with its signals and priority.
type FindingReport struct {
	Finding    finding.Finding   `json:"finding"`
	Duplicates []dedup.Duplicate `json:"duplicates"`
	Scanners   []string          `json:"scanners"`
	Enrichment enrich.Enrichment `json:"enrichment"`
	Priority   priority.Score    `json:"priority"`
}

// Summary holds the run totals.
type Summary struct {
	RawFindings    int                    `json:"raw_findings"`
	Findings       int                    `json:"findings"`
	FalsePositives int                    `json:"false_positives"`
	Highest        priority.Tier          `json:"highest_tier,omitempty"`
	ByTier         map[priority.Tier]int  `json:"by_tier"`
	ByScanner      map[string]int         `json:"by_scanner"`
	ByStatus       map[adapter.Status]int `json:"by_status"`
}

func summarize(raw int, statuses []orchestrator.Status, frs []FindingReport) Summary {
	s := Summary{
		RawFindings: raw,
		Findings:    len(frs),
		ByScanner:   make(map[string]int),
		ByStatus:    make(map[adapter.Status]int),
	}
	scores := make([]priority.Score, len(frs))
	for i, fr := range frs {
		scores[i] = fr.Priority
		if fr.Enrichment.IsFalsePositive() {
			s.FalsePositives++
		}
	}
	s.ByTier = priority.CountByTier(scores)
	s.Highest = priority.Highest(scores)
	for _, st := range statuses {
		s.ByScanner[st.Name] = st.Findings
		s.ByStatus[st.Status]++
	}
	return s
}

// Find returns the finding with id, matching canonical ids first and
// then the ids of merged duplicates.
func (r Report) Find(id string) (FindingReport, bool) {
	for _, fr := range r.Findings {
		if fr.Finding.ID == id {
			return fr, true
		}
	}
	for _, fr := range r.Findings {
		for _, d := range fr.Duplicates {
			if d.ID == id {
				return fr, true
			}
		}
	}
	return FindingReport{}, false
}

// Reaches reports whether any finding is at tier t or above.
func (r Report) Reaches(t priority.Tier) bool {
	for _, fr := range r.Findings {
		if fr.Priority.Tier.AtLeast(t) {
			return true
		}
	}
	return false
}

// Write encodes r as indented JSON.
func (r Report) Write(w io.Writer) error {
	return jsonutil.Encode(w, r, "  ")
}

// ReadReport decodes a report written by Write.
func ReadReport(rd io.Reader) (Report, error) {
	var r Report
	if err := jsonutil.Decode(rd, &r); err != nil {
		return Report{}, fmt.Errorf("pipeline: decode report: %w", err)
	}
	return r, nil
}

// ReadReportFile reads a report from path.
func ReadReportFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("pipeline: %w", err)
	}
	defer f.Close()
	return ReadReport(f)
}
