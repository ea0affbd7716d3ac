package compare

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/scanforge/pkg/dedup"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/pipeline"
	"github.com/scanforge/scanforge/pkg/priority"
)

func fr(id string, tier priority.Tier, dups ...string) pipeline.FindingReport {
	r := pipeline.FindingReport{
		Finding:  finding.Finding{ID: id, Scanner: "bandit", RuleID: "B608", FilePath: "app/db.py", LineStart: 10},
		Priority: priority.Score{Tier: tier},
	}
	for _, d := range dups {
		r.Duplicates = append(r.Duplicates, dedup.Duplicate{Finding: finding.Finding{ID: d}, DuplicateOf: id})
	}
	return r
}

func report(runID string, frs ...pipeline.FindingReport) pipeline.Report {
	return pipeline.Report{RunID: runID, Findings: frs}
}

func TestCompare(t *testing.T) {
	before := report("r1",
		fr("a", priority.High),
		fr("b", priority.Medium),
		fr("c", priority.Low),
		fr("d", priority.Critical),
	)
	after := report("r2",
		fr("a", priority.High),      // unchanged
		fr("b", priority.Critical),  // escalated
		fr("c", priority.Dismissed), // lowered
		fr("e", priority.High),      // new
	)

	r := Compare(before, after)

	assert.Equal(t, "r1", r.BeforeRunID)
	assert.Equal(t, "r2", r.AfterRunID)
	assert.Equal(t, 1, r.Unchanged)
	require.Len(t, r.New, 1)
	assert.Equal(t, "e", r.New[0].ID)
	assert.Equal(t, "app/db.py:10", r.New[0].Location)
	assert.Equal(t, "B608", r.New[0].Title)
	require.Len(t, r.Fixed, 1)
	assert.Equal(t, "d", r.Fixed[0].ID)
	require.Len(t, r.Escalated, 1)
	assert.Equal(t, priority.Medium, r.Escalated[0].From)
	assert.Equal(t, priority.Critical, r.Escalated[0].Tier)
	require.Len(t, r.Lowered, 1)
	assert.Equal(t, "c", r.Lowered[0].ID)

	assert.Equal(t, map[priority.Tier]int{
		priority.High:      1,
		priority.Medium:    -1,
		priority.Low:       -1,
		priority.Dismissed: 1,
	}, r.TierDeltas, "critical nets to zero and is dropped")
	assert.Equal(t, Regressed, r.Verdict)

	assert.Equal(t, 2, r.NewAtLeast(priority.High))
	assert.Equal(t, 1, r.NewAtLeast(priority.Critical))
}

func TestCompare_MatchesThroughDuplicates(t *testing.T) {
	// Same issue; the other scanner won the election in the newer run.
	before := report("r1", fr("bandit-x", priority.High, "semgrep-y"))
	after := report("r2", fr("semgrep-y", priority.High, "bandit-x"))

	r := Compare(before, after)
	assert.Empty(t, r.New)
	assert.Empty(t, r.Fixed)
	assert.Equal(t, 1, r.Unchanged)
	assert.Equal(t, Unchanged, r.Verdict)
}

func TestCompare_Verdicts(t *testing.T) {
	tests := []struct {
		name          string
		before, after pipeline.Report
		want          string
	}{
		{"identical", report("1", fr("a", priority.High)), report("2", fr("a", priority.High)), Unchanged},
		{"fixed", report("1", fr("a", priority.High)), report("2"), Improved},
		{"lowered", report("1", fr("a", priority.High)), report("2", fr("a", priority.Low)), Improved},
		{"new", report("1"), report("2", fr("a", priority.Low)), Regressed},
		{"new but dismissed", report("1"), report("2", fr("a", priority.Dismissed)), Unchanged},
		{"dismissed one gone", report("1", fr("a", priority.Dismissed)), report("2"), Unchanged},
		{"both empty", report("1"), report("2"), Unchanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.before, tt.after).Verdict)
		})
	}
}

func TestCompare_SortedByUrgency(t *testing.T) {
	r := Compare(report("1"), report("2",
		fr("z", priority.Low),
		fr("b", priority.Critical),
		fr("a", priority.Critical),
		fr("m", priority.Medium),
	))
	var got []string
	for _, e := range r.New {
		got = append(got, e.ID)
	}
	assert.Equal(t, []string{"a", "b", "m", "z"}, got)
}

func TestLoadReport(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	f, err := os.Create(good)
	require.NoError(t, err)
	require.NoError(t, report("run-1", fr("a", priority.High)).Write(f))
	require.NoError(t, f.Close())

	r, err := LoadReport(good)
	require.NoError(t, err)
	assert.Equal(t, "run-1", r.RunID)

	other := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(other, []byte(`{"target": "x"}`), 0o600))
	_, err = LoadReport(other)
	assert.ErrorIs(t, err, ErrNotReport)

	_, err = LoadReport(filepath.Join(dir, "absent.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
