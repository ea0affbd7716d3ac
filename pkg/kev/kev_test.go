package kev

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/scanforge/pkg/enrich"
	"github.com/scanforge/scanforge/pkg/feedcache"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/retry"
)

type feed struct {
	srv   *httptest.Server
	calls atomic.Int32
	down  atomic.Bool
}

func newFeed(t *testing.T) *feed {
	t.Helper()
	body, err := os.ReadFile("testdata/catalog.json")
	require.NoError(t, err)
	f := &feed{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if f.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 2, InitDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func newEnricher(f *feed, cache *feedcache.Cache[Catalog]) *Enricher {
	return New(Options{URL: f.srv.URL, Client: f.srv.Client(), Retry: fastRetry(), Cache: cache})
}

func withCVE(ids ...string) finding.Finding {
	return finding.Finding{Scanner: "trivy", RuleID: "x", Severity: finding.High, CVEIDs: ids}.Normalize()
}

func TestEnrich_InCatalog(t *testing.T) {
	f := newFeed(t)
	e := newEnricher(f, nil)
	require.NoError(t, e.Prepare(context.Background(), nil))

	got, err := e.Enrich(context.Background(), withCVE("cve-2021-44228"))
	require.NoError(t, err)
	assert.Equal(t, enrich.KEVInCatalog, got.KEV.Status)
	assert.Equal(t, "Apache", got.KEV.VendorProject)
	assert.Equal(t, "2021-12-24", got.KEV.DueDate)
	assert.Equal(t, "Known", got.KEV.RansomwareUse)
}

func TestEnrich_NotInCatalog(t *testing.T) {
	f := newFeed(t)
	e := newEnricher(f, nil)
	got, err := e.Enrich(context.Background(), withCVE("CVE-2020-0001"))
	require.NoError(t, err)
	assert.Equal(t, enrich.KEVNotInCatalog, got.KEV.Status)
}

func TestEnrich_NoCVESkipsFeed(t *testing.T) {
	f := newFeed(t)
	e := newEnricher(f, nil)
	got, err := e.Enrich(context.Background(), withCVE())
	require.NoError(t, err)
	assert.Equal(t, enrich.KEVNotInCatalog, got.KEV.Status)
	assert.Zero(t, f.calls.Load())
}

func TestEnrich_FreshCacheNoNetwork(t *testing.T) {
	f := newFeed(t)
	e := newEnricher(f, nil)
	for i := 0; i < 5; i++ {
		_, err := e.Enrich(context.Background(), withCVE("CVE-2023-4966"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestEnrich_FeedDownIsUnavailable(t *testing.T) {
	f := newFeed(t)
	f.down.Store(true)
	e := newEnricher(f, nil)

	assert.Error(t, e.Prepare(context.Background(), nil))
	callsAfterPrepare := f.calls.Load()

	for i := 0; i < 3; i++ {
		_, err := e.Enrich(context.Background(), withCVE("CVE-2021-44228"))
		var ue *enrich.UnavailableError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, Name, ue.Enricher)
		assert.ErrorIs(t, err, feedcache.ErrUnavailable)
	}
	assert.Equal(t, callsAfterPrepare, f.calls.Load(), "no retries after a failed prepare")
}

func TestEnrich_StaleBeyondTTLAndRefreshFails(t *testing.T) {
	f := newFeed(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cache := feedcache.New[Catalog](feedcache.Options{Name: Name, TTL: 24 * time.Hour, Now: clock})
	e := newEnricher(f, cache)

	require.NoError(t, e.Prepare(context.Background(), nil))
	got, err := e.Enrich(context.Background(), withCVE("CVE-2021-44228"))
	require.NoError(t, err)
	assert.Equal(t, enrich.KEVInCatalog, got.KEV.Status)

	now = now.Add(25 * time.Hour)
	f.down.Store(true)
	assert.Error(t, e.Prepare(context.Background(), nil))
	_, err = e.Enrich(context.Background(), withCVE("CVE-2021-44228"))
	assert.ErrorIs(t, err, feedcache.ErrUnavailable, "stale beyond TTL with a failed refresh reads as unknown")
}

func TestEnrich_StaleInsideGraceServes(t *testing.T) {
	f := newFeed(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cache := feedcache.New[Catalog](feedcache.Options{
		Name: Name, TTL: 24 * time.Hour, StaleGrace: 24 * time.Hour,
		Now: func() time.Time { return now },
	})
	e := newEnricher(f, cache)
	require.NoError(t, e.Prepare(context.Background(), nil))

	now = now.Add(30 * time.Hour)
	f.down.Store(true)
	require.NoError(t, e.Prepare(context.Background(), nil))
	got, err := e.Enrich(context.Background(), withCVE("CVE-2021-44228"))
	require.NoError(t, err)
	assert.Equal(t, enrich.KEVInCatalog, got.KEV.Status)
}

func TestCatalogIndex(t *testing.T) {
	idx := Catalog{Vulnerabilities: []Vulnerability{{CVEID: " cve-2024-1 "}}}.Index()
	_, ok := idx["CVE-2024-1"]
	assert.True(t, ok)
}
