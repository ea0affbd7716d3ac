// Package kev checks findings against the CISA Known Exploited
// Vulnerabilities catalog. The whole catalog is fetched in one request
// and cached under a single key.
package kev

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/enrich"
	"github.com/scanforge/scanforge/pkg/feedcache"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/httpclient"
	"github.com/scanforge/scanforge/pkg/retry"
)

// Name is the enricher name used in degraded lists.
const Name = "kev"

// catalogKey is the single cache key the catalog lives under.
const catalogKey = "catalog"

// Vulnerability is one catalog entry, in the feed's own field names.
type Vulnerability struct {
	CVEID                      string   `json:"cveID"`
	VendorProject              string   `json:"vendorProject"`
	Product                    string   `json:"product"`
	VulnerabilityName          string   `json:"vulnerabilityName"`
	DateAdded                  string   `json:"dateAdded"`
	ShortDescription           string   `json:"shortDescription"`
	RequiredAction             string   `json:"requiredAction"`
	DueDate                    string   `json:"dueDate"`
	KnownRansomwareCampaignUse string   `json:"knownRansomwareCampaignUse"`
	Notes                      string   `json:"notes"`
	CWEs                       []string `json:"cwes"`
}

// Catalog is the KEV feed document.
type Catalog struct {
	Title           string          `json:"title"`
	CatalogVersion  string          `json:"catalogVersion"`
	DateReleased    string          `json:"dateReleased"`
	Count           int             `json:"count"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// Index maps upper-case CVE ids to their entries.
func (c Catalog) Index() map[string]Vulnerability {
	idx := make(map[string]Vulnerability, len(c.Vulnerabilities))
	for _, v := range c.Vulnerabilities {
		idx[strings.ToUpper(strings.TrimSpace(v.CVEID))] = v
	}
	return idx
}

// Options configures the enricher.
type Options struct {
	// URL overrides the feed location.
	URL string

	Client *http.Client
	Retry  retry.Config
	Cache  *feedcache.Cache[Catalog]
	Logger *slog.Logger
}

// Enricher sets enrich.Enrichment.KEV.
type Enricher struct {
	url    string
	client *http.Client
	retry  retry.Config
	cache  *feedcache.Cache[Catalog]
	logger *slog.Logger

	mu      sync.Mutex
	index   map[string]Vulnerability
	version time.Time
	offline bool
}

// New creates an enricher. A nil cache gets a memory-only one.
func New(opts Options) *Enricher {
	if opts.URL == "" {
		opts.URL = defaults.KEVFeedURL
	}
	if opts.Client == nil {
		opts.Client, _ = httpclient.New(httpclient.DefaultConfig())
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.FeedConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Cache == nil {
		opts.Cache = feedcache.New[Catalog](feedcache.Options{Name: Name, Logger: opts.Logger})
	}
	return &Enricher{
		url:    opts.URL,
		client: opts.Client,
		retry:  opts.Retry,
		cache:  opts.Cache,
		logger: opts.Logger,
	}
}

func (e *Enricher) Name() string { return Name }

// Fetch downloads the catalog.
func (e *Enricher) Fetch(ctx context.Context) (Catalog, error) {
	var cat Catalog
	if err := httpclient.GetJSON(ctx, e.client, e.url, e.retry, defaults.BufferFeed, &cat); err != nil {
		return Catalog{}, fmt.Errorf("kev: fetch catalog: %w", err)
	}
	return cat, nil
}

// Prepare loads the catalog once for the pass. When the refresh fails,
// the Enrich calls of the same pass only consult the cache and never
// retry the network.
func (e *Enricher) Prepare(ctx context.Context, _ []finding.Finding) error {
	e.mu.Lock()
	e.offline = false
	e.mu.Unlock()

	_, state, err := e.catalog(ctx)

	e.mu.Lock()
	e.offline = err != nil || state == feedcache.Stale
	e.mu.Unlock()
	return err
}

// catalog returns the CVE index, reading through the cache. The index is
// rebuilt only when the cache hands back a different fetch.
func (e *Enricher) catalog(ctx context.Context) (map[string]Vulnerability, feedcache.State, error) {
	e.mu.Lock()
	offline := e.offline
	e.mu.Unlock()

	var (
		lk  feedcache.Lookup[Catalog]
		err error
	)
	if offline {
		lk, err = e.cache.Lookup(catalogKey)
	} else {
		lk, err = e.cache.Get(ctx, catalogKey, func(ctx context.Context, _ string) (Catalog, error) {
			return e.Fetch(ctx)
		})
	}
	if err != nil {
		return nil, feedcache.Missing, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index == nil || !lk.FetchedAt.Equal(e.version) {
		e.index = lk.Value.Index()
		e.version = lk.FetchedAt
		e.logger.Debug("kev catalog loaded",
			slog.String("version", lk.Value.CatalogVersion),
			slog.Int("entries", len(e.index)),
			slog.String("state", lk.State.String()))
	}
	return e.index, lk.State, nil
}

// Enrich reports whether any CVE on f is in the catalog. Findings without
// CVE ids cannot be listed and are not_in_catalog without a lookup.
func (e *Enricher) Enrich(ctx context.Context, f finding.Finding) (enrich.Enrichment, error) {
	if !f.HasCVE() {
		return enrich.Enrichment{KEV: enrich.KEV{Status: enrich.KEVNotInCatalog}}, nil
	}
	idx, _, err := e.catalog(ctx)
	if err != nil {
		return enrich.Enrichment{}, enrich.Unavailable(Name, err)
	}
	for _, cve := range f.CVEIDs {
		if v, ok := idx[strings.ToUpper(cve)]; ok {
			return enrich.Enrichment{KEV: enrich.KEV{
				Status:            enrich.KEVInCatalog,
				CVE:               v.CVEID,
				VendorProject:     v.VendorProject,
				Product:           v.Product,
				VulnerabilityName: v.VulnerabilityName,
				DateAdded:         v.DateAdded,
				DueDate:           v.DueDate,
				RequiredAction:    v.RequiredAction,
				RansomwareUse:     v.KnownRansomwareCampaignUse,
			}}, nil
		}
	}
	return enrich.Enrichment{KEV: enrich.KEV{Status: enrich.KEVNotInCatalog}}, nil
}
