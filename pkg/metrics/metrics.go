// Package metrics exposes pipeline metrics for Prometheus: scanner
// outcomes and durations, feed cache behaviour, enricher degradation,
// dedup effect and the final tier distribution.
//
// A nil *Recorder is valid and records nothing, so components can take
// one unconditionally.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/duration"
)

// Cache lookup outcomes used as the "result" label.
const (
	CacheHit     = "hit"
	CacheStale   = "stale"
	CacheMiss    = "miss"
	CacheRefresh = "refresh"
)

// Recorder owns a private registry and every collector scanforge emits.
type Recorder struct {
	registry *prometheus.Registry

	adapterRuns     *prometheus.CounterVec
	adapterDuration *prometheus.HistogramVec
	adapterFindings *prometheus.CounterVec

	cacheRequests  *prometheus.CounterVec
	cacheFailures  *prometheus.CounterVec
	enrichDegraded *prometheus.CounterVec

	dedupInput  prometheus.Gauge
	dedupGroups prometheus.Gauge
	tiers       *prometheus.GaugeVec
	runDuration prometheus.Gauge
	pocOutcomes *prometheus.CounterVec

	mu     sync.Mutex
	server *http.Server
}

// New creates a Recorder with all collectors registered.
func New() (*Recorder, error) {
	ns := defaults.MetricsNamespace
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		adapterRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "adapter_runs_total",
			Help: "Scanner executions by final status",
		}, []string{"scanner", "status"}),
		adapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "adapter_duration_seconds",
			Help:    "Wall time of one scanner execution",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"scanner"}),
		adapterFindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "adapter_findings_total",
			Help: "Findings reported per scanner before dedup",
		}, []string{"scanner"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_requests_total",
			Help: "Feed cache lookups by outcome",
		}, []string{"feed", "result"}),
		cacheFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_refresh_failures_total",
			Help: "Feed refreshes that failed",
		}, []string{"feed"}),
		enrichDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "enricher_degraded_total",
			Help: "Findings an enricher could not enrich",
		}, []string{"enricher"}),
		dedupInput: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "dedup_input_findings",
			Help: "Findings entering deduplication in the last run",
		}),
		dedupGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "dedup_groups",
			Help: "Groups left after deduplication in the last run",
		}),
		tiers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "findings_by_tier",
			Help: "Prioritized findings per tier in the last run",
		}, []string{"tier"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "run_duration_seconds",
			Help: "Duration of the last run",
		}),
		pocOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "poc_outcomes_total",
			Help: "PoC generation outcomes",
		}, []string{"outcome"}),
	}

	collectors := []prometheus.Collector{
		r.adapterRuns, r.adapterDuration, r.adapterFindings,
		r.cacheRequests, r.cacheFailures, r.enrichDegraded,
		r.dedupInput, r.dedupGroups, r.tiers, r.runDuration, r.pocOutcomes,
	}
	for _, c := range collectors {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return r, nil
}

// Registry exposes the underlying registry as a Gatherer.
func (r *Recorder) Registry() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// ObserveAdapter records one finished scanner execution.
func (r *Recorder) ObserveAdapter(scanner, status string, d time.Duration, findings int) {
	if r == nil {
		return
	}
	r.adapterRuns.WithLabelValues(scanner, status).Inc()
	r.adapterDuration.WithLabelValues(scanner).Observe(d.Seconds())
	r.adapterFindings.WithLabelValues(scanner).Add(float64(findings))
}

// CacheLookup counts a feed cache lookup outcome.
func (r *Recorder) CacheLookup(feed, result string) {
	if r == nil {
		return
	}
	r.cacheRequests.WithLabelValues(feed, result).Inc()
}

// CacheRefreshFailed counts a failed feed refresh.
func (r *Recorder) CacheRefreshFailed(feed string) {
	if r == nil {
		return
	}
	r.cacheFailures.WithLabelValues(feed).Inc()
}

// EnricherDegraded counts a finding an enricher could not serve.
func (r *Recorder) EnricherDegraded(enricher string) {
	if r == nil {
		return
	}
	r.enrichDegraded.WithLabelValues(enricher).Inc()
}

// ObserveDedup records the dedup input size and resulting group count.
func (r *Recorder) ObserveDedup(input, groups int) {
	if r == nil {
		return
	}
	r.dedupInput.Set(float64(input))
	r.dedupGroups.Set(float64(groups))
}

// SetTiers replaces the tier distribution gauge.
func (r *Recorder) SetTiers(counts map[string]int) {
	if r == nil {
		return
	}
	r.tiers.Reset()
	for tier, n := range counts {
		r.tiers.WithLabelValues(tier).Set(float64(n))
	}
}

// ObserveRun records the duration of a whole run.
func (r *Recorder) ObserveRun(d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.Set(d.Seconds())
}

// PoCOutcome counts a PoC generation result.
func (r *Recorder) PoCOutcome(outcome string) {
	if r == nil {
		return
	}
	r.pocOutcomes.WithLabelValues(outcome).Inc()
}

// Serve starts a /metrics listener on addr in the background. Errors
// after startup are logged, not returned.
func (r *Recorder) Serve(addr string, logger *slog.Logger) error {
	if r == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.server != nil {
		return errors.New("metrics: server already running")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	r.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  duration.MetricsReadTimeout,
		WriteTimeout: duration.MetricsWriteTimeout,
	}
	srv := r.server
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Handler returns the /metrics handler without starting a server.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry(), promhttp.HandlerOpts{})
}

// WriteTextfile dumps the current metrics in the node_exporter textfile
// format, for CI systems that collect files rather than scrape.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

// Close stops the metrics server if one is running.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	srv := r.server
	r.server = nil
	r.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
