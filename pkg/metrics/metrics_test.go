package metrics

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveAdapter("bandit", "ok", time.Second, 3)
		r.CacheLookup("kev", CacheHit)
		r.CacheRefreshFailed("kev")
		r.EnricherDegraded("kev")
		r.ObserveDedup(10, 4)
		r.SetTiers(map[string]int{"high": 1})
		r.ObserveRun(time.Second)
		r.PoCOutcome("accepted")
		require.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	})
}

// scrape renders the recorder in the text exposition format.
func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorder_Counts(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	r.ObserveAdapter("bandit", "ok", 2*time.Second, 3)
	r.ObserveAdapter("bandit", "ok", time.Second, 2)
	r.ObserveAdapter("semgrep", "timeout", time.Minute, 0)
	r.CacheLookup("kev", CacheHit)
	r.CacheLookup("kev", CacheStale)
	r.EnricherDegraded("epss")

	out := scrape(t, r)
	assert.Contains(t, out, `scanforge_adapter_runs_total{scanner="bandit",status="ok"} 2`)
	assert.Contains(t, out, `scanforge_adapter_findings_total{scanner="bandit"} 5`)
	assert.Contains(t, out, `scanforge_adapter_runs_total{scanner="semgrep",status="timeout"} 1`)
	assert.Contains(t, out, `scanforge_cache_requests_total{feed="kev",result="stale"} 1`)
	assert.Contains(t, out, `scanforge_enricher_degraded_total{enricher="epss"} 1`)
}

func TestRecorder_SetTiersReplaces(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	r.SetTiers(map[string]int{"critical": 2, "low": 5})
	r.SetTiers(map[string]int{"high": 1})
	out := scrape(t, r)
	assert.Contains(t, out, `scanforge_findings_by_tier{tier="high"} 1`)
	assert.NotContains(t, out, `tier="critical"`)
}

func TestRecorder_Handler(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	r.ObserveDedup(10, 4)

	assert.Contains(t, scrape(t, r), "scanforge_dedup_groups 4")
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	r.PoCOutcome("rejected")

	path := filepath.Join(t.TempDir(), "scanforge.prom")
	require.NoError(t, r.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `scanforge_poc_outcomes_total{outcome="rejected"} 1`)
}
