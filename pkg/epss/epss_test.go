package epss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/scanforge/scanforge/pkg/enrich"
	"github.com/scanforge/scanforge/pkg/feedcache"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/retry"
)

// api serves scores for the CVEs in known and records each request's ids.
type api struct {
	srv   *httptest.Server
	known map[string]string
	down  atomic.Bool

	mu      sync.Mutex
	batches [][]string
}

func newAPI(t *testing.T, known map[string]string) *api {
	t.Helper()
	a := &api{known: known}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("cve"), ",")
		a.mu.Lock()
		a.batches = append(a.batches, ids)
		a.mu.Unlock()
		if a.down.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var rows []string
		for _, id := range ids {
			if s, ok := a.known[id]; ok {
				rows = append(rows, fmt.Sprintf(`{"cve":%q,"epss":%q,"percentile":"0.99000","date":"2026-03-01"}`, id, s))
			}
		}
		fmt.Fprintf(w, `{"status":"OK","status-code":200,"version":"1.0","total":%d,"data":[%s]}`,
			len(rows), strings.Join(rows, ","))
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *api) requests() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.batches)
}

func newEnricher(a *api, cache *feedcache.Cache[*Score], batch int) *Enricher {
	return New(Options{
		URL:       a.srv.URL,
		BatchSize: batch,
		Limiter:   rate.NewLimiter(rate.Inf, 1),
		Client:    a.srv.Client(),
		Retry:     retry.Config{MaxAttempts: 2, InitDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Cache:     cache,
	})
}

func dep(ids ...string) finding.Finding {
	return finding.Finding{
		Scanner: "trivy", RuleID: "r", Kind: finding.KindDependency, Severity: finding.High, CVEIDs: ids,
	}.Normalize()
}

func TestEnrich_HighestScoreWins(t *testing.T) {
	a := newAPI(t, map[string]string{"CVE-2021-44228": "0.97565", "CVE-2021-45046": "0.91000"})
	e := newEnricher(a, nil, 0)
	f := dep("CVE-2021-45046", "CVE-2021-44228")
	require.NoError(t, e.Prepare(context.Background(), []finding.Finding{f}))

	got, err := e.Enrich(context.Background(), f)
	require.NoError(t, err)
	require.NotNil(t, got.EPSS)
	assert.Equal(t, "CVE-2021-44228", got.EPSS.CVE)
	assert.InDelta(t, 0.97565, got.EPSS.Score, 1e-9)
	assert.InDelta(t, 0.99, got.EPSS.Percentile, 1e-9)
	assert.Equal(t, 1, a.requests(), "enrich reads what prepare fetched")
}

func TestPrepare_Batches(t *testing.T) {
	a := newAPI(t, map[string]string{})
	e := newEnricher(a, nil, 100)
	var fs []finding.Finding
	for i := 0; i < 250; i++ {
		fs = append(fs, dep(fmt.Sprintf("CVE-2024-%05d", i)))
	}
	fs = append(fs, dep("CVE-2024-00001")) // duplicate id
	require.NoError(t, e.Prepare(context.Background(), fs))

	a.mu.Lock()
	defer a.mu.Unlock()
	require.Len(t, a.batches, 3)
	total := 0
	for _, b := range a.batches {
		assert.LessOrEqual(t, len(b), 100)
		total += len(b)
	}
	assert.Equal(t, 250, total)
}

func TestEnrich_UnknownCVEIsNoScoreNotFailure(t *testing.T) {
	a := newAPI(t, map[string]string{})
	e := newEnricher(a, nil, 0)
	f := dep("CVE-2099-0001")
	require.NoError(t, e.Prepare(context.Background(), []finding.Finding{f}))

	got, err := e.Enrich(context.Background(), f)
	require.NoError(t, err)
	assert.Nil(t, got.EPSS)

	// Cached as null: a second pass does not ask again.
	require.NoError(t, e.Prepare(context.Background(), []finding.Finding{f}))
	assert.Equal(t, 1, a.requests())
}

func TestEnrich_NoCVE(t *testing.T) {
	a := newAPI(t, nil)
	e := newEnricher(a, nil, 0)
	got, err := e.Enrich(context.Background(), dep())
	require.NoError(t, err)
	assert.Nil(t, got.EPSS)
	assert.Zero(t, a.requests())
}

func TestEnrich_APIDownIsUnavailable(t *testing.T) {
	a := newAPI(t, map[string]string{"CVE-2021-44228": "0.9"})
	a.down.Store(true)
	e := newEnricher(a, nil, 0)
	f := dep("CVE-2021-44228")

	assert.Error(t, e.Prepare(context.Background(), []finding.Finding{f}))
	n := a.requests()

	_, err := e.Enrich(context.Background(), f)
	var ue *enrich.UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, Name, ue.Enricher)
	assert.Equal(t, n, a.requests(), "failed ids are not retried within the pass")
}

func TestEnrich_StaleWithinGraceAfterFailure(t *testing.T) {
	a := newAPI(t, map[string]string{"CVE-2021-44228": "0.5"})
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cache := feedcache.New[*Score](feedcache.Options{
		Name: Name, TTL: time.Hour, StaleGrace: time.Hour, Now: func() time.Time { return now },
	})
	e := newEnricher(a, cache, 0)
	f := dep("CVE-2021-44228")
	require.NoError(t, e.Prepare(context.Background(), []finding.Finding{f}))

	now = now.Add(90 * time.Minute)
	a.down.Store(true)
	assert.Error(t, e.Prepare(context.Background(), []finding.Finding{f}))

	got, err := e.Enrich(context.Background(), f)
	require.NoError(t, err)
	require.NotNil(t, got.EPSS)
	assert.InDelta(t, 0.5, got.EPSS.Score, 1e-9)

	now = now.Add(time.Hour)
	_, err = e.Enrich(context.Background(), f)
	assert.ErrorIs(t, err, feedcache.ErrUnavailable)
}

func TestEnrich_WithoutPrepareFetchesSingly(t *testing.T) {
	a := newAPI(t, map[string]string{"CVE-2023-4966": "0.96"})
	e := newEnricher(a, nil, 0)
	got, err := e.Enrich(context.Background(), dep("cve-2023-4966"))
	require.NoError(t, err)
	require.NotNil(t, got.EPSS)
	assert.Equal(t, 1, a.requests())
}

func TestRowScore(t *testing.T) {
	s, err := row{CVE: "cve-1", EPSS: "0.12", Percentile: "0.5"}.score()
	require.NoError(t, err)
	assert.Equal(t, "CVE-1", s.CVE)

	_, err = row{CVE: "x", EPSS: "n/a", Percentile: "0"}.score()
	assert.Error(t, err)
}
