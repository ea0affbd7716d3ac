// Package epss attaches FIRST.org Exploit Prediction Scoring System
// scores to findings. All CVE ids of a pass are fetched in batches during
// Prepare and cached per CVE; Enrich then reads the cache.
package epss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/enrich"
	"github.com/scanforge/scanforge/pkg/feedcache"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/httpclient"
	"github.com/scanforge/scanforge/pkg/retry"
)

// Name is the enricher name used in degraded lists.
const Name = "epss"

// Score is one CVE's score. The cache stores a nil *Score for CVEs the
// API does not know, so they are not asked for again until the TTL ends.
type Score struct {
	CVE        string  `json:"cve"`
	EPSS       float64 `json:"epss"`
	Percentile float64 `json:"percentile"`
	Date       string  `json:"date,omitempty"`
}

type response struct {
	Status     string `json:"status"`
	StatusCode int    `json:"status-code"`
	Total      int    `json:"total"`
	Data       []row  `json:"data"`
}

// row is the wire form; the API encodes numbers as strings.
type row struct {
	CVE        string `json:"cve"`
	EPSS       string `json:"epss"`
	Percentile string `json:"percentile"`
	Date       string `json:"date"`
}

func (r row) score() (Score, error) {
	s := Score{CVE: strings.ToUpper(r.CVE), Date: r.Date}
	var err error
	if s.EPSS, err = strconv.ParseFloat(r.EPSS, 64); err != nil {
		return Score{}, fmt.Errorf("epss: %s: score %q: %w", r.CVE, r.EPSS, err)
	}
	if s.Percentile, err = strconv.ParseFloat(r.Percentile, 64); err != nil {
		return Score{}, fmt.Errorf("epss: %s: percentile %q: %w", r.CVE, r.Percentile, err)
	}
	return s, nil
}

// Options configures the enricher.
type Options struct {
	// URL overrides the API endpoint.
	URL string

	// BatchSize caps CVE ids per request (default 100).
	BatchSize int

	// Limiter paces requests (default 2/s).
	Limiter *rate.Limiter

	Client *http.Client
	Retry  retry.Config
	Cache  *feedcache.Cache[*Score]
	Logger *slog.Logger
}

// Enricher sets enrich.Enrichment.EPSS.
type Enricher struct {
	url     string
	batch   int
	limiter *rate.Limiter
	client  *http.Client
	retry   retry.Config
	cache   *feedcache.Cache[*Score]
	logger  *slog.Logger

	mu     sync.Mutex
	failed map[string]bool // CVEs whose refresh failed this pass
}

// New creates an enricher. A nil cache gets a memory-only one.
func New(opts Options) *Enricher {
	if opts.URL == "" {
		opts.URL = defaults.EPSSAPIURL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.EPSSBatchSize
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Limit(defaults.EPSSRequestsPerSecond), 1)
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
		opts.Cache = feedcache.New[*Score](feedcache.Options{Name: Name, Logger: opts.Logger})
	}
	return &Enricher{
		url:     opts.URL,
		batch:   opts.BatchSize,
		limiter: opts.Limiter,
		client:  opts.Client,
		retry:   opts.Retry,
		cache:   opts.Cache,
		logger:  opts.Logger,
		failed:  make(map[string]bool),
	}
}

func (e *Enricher) Name() string { return Name }

// FetchBatch asks the API for up to BatchSize CVE ids. CVEs missing from
// the response map to nil.
func (e *Enricher) FetchBatch(ctx context.Context, cves []string) (map[string]*Score, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u, err := url.Parse(e.url)
	if err != nil {
		return nil, fmt.Errorf("epss: %w", err)
	}
	q := u.Query()
	q.Set("cve", strings.Join(cves, ","))
	u.RawQuery = q.Encode()

	var resp response
	if err := httpclient.GetJSON(ctx, e.client, u.String(), e.retry, defaults.BufferFeed, &resp); err != nil {
		return nil, fmt.Errorf("epss: fetch %d ids: %w", len(cves), err)
	}

	out := make(map[string]*Score, len(cves))
	for _, id := range cves {
		out[id] = nil
	}
	for _, r := range resp.Data {
		s, err := r.score()
		if err != nil {
			e.logger.Warn("skipping malformed epss row", slog.String("error", err.Error()))
			continue
		}
		out[s.CVE] = &s
	}
	return out, nil
}

// Prepare refreshes every CVE of the pass that is not fresh in the cache.
// Batches that fail leave their CVEs to the cache alone for the rest of
// the pass.
func (e *Enricher) Prepare(ctx context.Context, fs []finding.Finding) error {
	e.mu.Lock()
	clear(e.failed)
	e.mu.Unlock()

	var todo []string
	for _, id := range cveSet(fs) {
		if _, st := e.cache.Peek(id); st != feedcache.Fresh {
			todo = append(todo, id)
		}
	}
	if len(todo) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaults.EPSSRequestsPerSecond)
	for batch := range slices.Chunk(todo, e.batch) {
		g.Go(func() error {
			scores, err := e.FetchBatch(gctx, batch)
			if err != nil {
				e.markFailed(batch)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			for id, s := range scores {
				e.cache.Put(id, s)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := e.cache.Save(); err != nil {
		e.logger.Warn("epss cache not persisted", slog.String("error", err.Error()))
	}
	if len(errs) > 0 {
		e.logger.Warn("epss refresh failed, using cached scores where possible",
			slog.Int("batches_failed", len(errs)),
			slog.Int("cves", len(todo)))
		return errors.Join(errs...)
	}
	return nil
}

func (e *Enricher) markFailed(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		e.failed[id] = true
	}
}

func (e *Enricher) isFailed(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failed[id]
}

// lookup reads one CVE through the cache, without the network when its
// batch already failed this pass.
func (e *Enricher) lookup(ctx context.Context, id string) (*Score, error) {
	var (
		lk  feedcache.Lookup[*Score]
		err error
	)
	if e.isFailed(id) {
		lk, err = e.cache.Lookup(id)
	} else {
		lk, err = e.cache.Get(ctx, id, func(ctx context.Context, key string) (*Score, error) {
			scores, err := e.FetchBatch(ctx, []string{key})
			if err != nil {
				return nil, err
			}
			return scores[key], nil
		})
	}
	return lk.Value, err
}

// Enrich reports the highest score among f's CVEs. A finding without
// CVEs, or whose CVEs have no score, gets no EPSS field and no error.
func (e *Enricher) Enrich(ctx context.Context, f finding.Finding) (enrich.Enrichment, error) {
	var (
		best *Score
		errs []error
	)
	for _, id := range f.CVEIDs {
		s, err := e.lookup(ctx, strings.ToUpper(id))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if s != nil && (best == nil || s.EPSS > best.EPSS) {
			best = s
		}
	}
	if best == nil && len(errs) > 0 {
		return enrich.Enrichment{}, enrich.Unavailable(Name, errors.Join(errs...))
	}
	if best == nil {
		return enrich.Enrichment{}, nil
	}
	return enrich.Enrichment{EPSS: &enrich.EPSS{
		CVE:        best.CVE,
		Score:      best.EPSS,
		Percentile: best.Percentile,
		Date:       best.Date,
	}}, nil
}

// cveSet returns the distinct upper-case CVE ids across fs, sorted.
func cveSet(fs []finding.Finding) []string {
	var ids []string
	for _, f := range fs {
		for _, id := range f.CVEIDs {
			ids = append(ids, strings.ToUpper(id))
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
