package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/compare"
	"github.com/scanforge/scanforge/pkg/dedup"
	"github.com/scanforge/scanforge/pkg/enrich"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/orchestrator"
	"github.com/scanforge/scanforge/pkg/pipeline"
	"github.com/scanforge/scanforge/pkg/poc"
	"github.com/scanforge/scanforge/pkg/priority"
	"github.com/scanforge/scanforge/pkg/safety"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

func sampleReport() pipeline.Report {
	return pipeline.Report{
		RunID:         "run-1",
		Target:        "./app",
		DurationMS:    1234,
		DedupStrategy: dedup.Fuzzy,
		Scanners: []orchestrator.Status{
			{Name: "bandit", Status: adapter.StatusOK, Findings: 2, DurationMS: 900},
			{Name: "semgrep", Status: adapter.StatusTimeout, DurationMS: 1000, Error: "deadline\x1b[31m exceeded"},
		},
		DegradedEnrichers: []string{"kev"},
		Findings: []pipeline.FindingReport{
			{
				Finding:    finding.Finding{ID: "bandit-B608-1a2b3c4d", RuleID: "B608", Title: "SQL injection", FilePath: "app/db.py", LineStart: 10},
				Duplicates: []dedup.Duplicate{{Finding: finding.Finding{ID: "semgrep-sqli-00000000"}}},
				Enrichment: enrich.Enrichment{
					KEV:       enrich.KEV{Status: enrich.KEVInCatalog},
					EPSS:      &enrich.EPSS{CVE: "CVE-2021-44228", Score: 0.97},
					Reachable: enrich.Reachable,
				},
				Priority: priority.Score{Score: 97.5, Tier: priority.Critical},
			},
			{
				Finding:    finding.Finding{ID: "trivy-CVE-2020-1-deadbeef", RuleID: "CVE-2020-1", FilePath: "tests/fixture.py", LineStart: 3},
				Enrichment: enrich.Enrichment{FalsePositive: &enrich.FalsePositive{Flag: true, Rule: "test-path"}},
				Priority:   priority.Score{Score: 0, Tier: priority.Dismissed},
			},
		},
		Summary: pipeline.Summary{
			RawFindings:    3,
			Findings:       2,
			FalsePositives: 1,
			ByTier:         map[priority.Tier]int{priority.Critical: 1, priority.Dismissed: 1},
		},
	}
}

func TestRenderReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, sampleReport()))
	out := buf.String()

	for _, want := range []string{
		"scanforge ./app",
		"dedup=fuzzy",
		"bandit", "semgrep", "timeout",
		"degraded enrichers: kev",
		"Findings (2, 3 raw)",
		"Critical", "97.5", "app/db.py:10", "SQL injection",
		"KEV", "EPSS 0.97", "reachable", "+1 dup",
		"fp:test-path",
		"Critical 1", "High 0", "Dismissed 1",
		"(1 likely false positive)",
	} {
		assert.Contains(t, out, want)
	}
	// Untitled findings fall back to the rule id.
	assert.Contains(t, out, "CVE-2020-1")
	assert.NotContains(t, out, "\x1b", "scanner text must not inject escape sequences")
}

func TestRenderReport_NoFindings(t *testing.T) {
	r := sampleReport()
	r.Findings = nil
	r.DegradedEnrichers = nil
	r.Summary = pipeline.Summary{}

	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, r))
	assert.Contains(t, buf.String(), "no findings")
	assert.NotContains(t, buf.String(), "degraded enrichers")
}

func TestTierTitle(t *testing.T) {
	assert.Equal(t, "Critical", TierTitle(priority.Critical))
	assert.Equal(t, "Dismissed", TierTitle(priority.Dismissed))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "a b c", SanitizeString("a\nb\tc"))
	assert.Equal(t, "red", SanitizeString("\x1bred\x07"))
}

func TestRenderArtifact(t *testing.T) {
	tests := []struct {
		name    string
		art     poc.Artifact
		want    []string
		notWant []string
	}{
		{
			name: "accepted",
			art: poc.Artifact{
				FindingID:     "f1",
				State:         poc.StateAccepted,
				Template:      "sqli.py",
				Content:       "print('ok')",
				Substitutions: []safety.Substitution{{Rule: "drop-table", Line: 4}},
				Warnings:      []safety.Hit{{Rule: "eval", Line: 7}},
			},
			want: []string{"f1 accepted (sqli.py)", "line 4: substituted drop-table", "line 7: eval", "print('ok')"},
		},
		{
			name:    "rejected",
			art:     poc.Artifact{FindingID: "f2", State: poc.StateRejected, Reason: "denylisted content", Content: "rm -rf /"},
			want:    []string{"f2 rejected", "denylisted content"},
			notWant: []string{"rm -rf"},
		},
		{
			name: "unsupported",
			art:  poc.Artifact{FindingID: "f3", State: poc.StateUnsupported, Reason: "no template for category secrets"},
			want: []string{"f3 unsupported", "no template"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, RenderArtifact(&buf, tt.art))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, buf.String(), w)
			}
		})
	}
}

func TestConfigureColor_NonTerminal(t *testing.T) {
	defer lipgloss.SetColorProfile(termenv.Ascii)
	ConfigureColor(&bytes.Buffer{}, false)
	assert.Equal(t, termenv.Ascii, lipgloss.ColorProfile())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

func TestRenderComparison(t *testing.T) {
	r := compare.Result{
		BeforeRunID: "r1",
		AfterRunID:  "r2",
		New:         []compare.Entry{{ID: "n1", Location: "a.py:1", Title: "SQL injection", Tier: priority.High}},
		Escalated:   []compare.Change{{Entry: compare.Entry{ID: "e1", Location: "b.py:2", Tier: priority.Critical}, From: priority.Medium}},
		Fixed:       []compare.Entry{{ID: "f1", Location: "c.py:3", Tier: priority.Low}},
		Unchanged:   4,
		TierDeltas:  map[priority.Tier]int{priority.High: 1, priority.Low: -1},
		Verdict:     compare.Regressed,
	}
	var buf bytes.Buffer
	require.NoError(t, RenderComparison(&buf, r))
	out := buf.String()

	for _, want := range []string{
		"compare r1", "r2",
		"regressed", "4 unchanged",
		"New (1)", "n1", "a.py:1", "SQL injection",
		"Escalated (1)", "Medium", "e1",
		"Fixed (1)", "f1",
		"High +1", "Low -1",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Lowered")
}
