// Package pipeline runs one scan end to end: adapters, deduplication,
// enrichment and prioritization, producing a Report. Every run builds its
// own state; nothing is shared between runs except the on-disk feed
// cache.
package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/adapter/builtin"
	"github.com/scanforge/scanforge/pkg/config"
	"github.com/scanforge/scanforge/pkg/dedup"
	"github.com/scanforge/scanforge/pkg/enrich"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/metrics"
	"github.com/scanforge/scanforge/pkg/orchestrator"
	"github.com/scanforge/scanforge/pkg/priority"
	"github.com/scanforge/scanforge/pkg/tracing"
)

// Options wires a run.
type Options struct {
	Config config.Config

	// Registry supplies adapters; nil uses the built-in table.
	Registry *adapter.Registry

	// Enrichers replaces the configured set when non-nil.
	Enrichers []enrich.Enricher

	Logger  *slog.Logger
	Metrics *metrics.Recorder

	// OnStatus is called as each scanner finishes.
	OnStatus func(orchestrator.Status)
}

// Run scans target. Configuration problems and a run in which every
// scanner failed are returned as errors; in the latter case the report
// still carries the scanner statuses.
func Run(ctx context.Context, target adapter.Target, opts Options) (rep Report, err error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}

	registry := opts.Registry
	if registry == nil {
		registry = builtin.Registry()
	}
	adapters, err := registry.Select(cfg.Scan.Scanners)
	if err != nil {
		return Report{}, fmt.Errorf("%w: scan.scanners: %w", config.ErrInvalidConfig, err)
	}

	enrichers := opts.Enrichers
	if enrichers == nil {
		enrichers, err = Enrichers(cfg, target.Path, log, opts.Metrics)
		if err != nil {
			return Report{}, err
		}
	}
	ep, err := enrich.NewPipeline(enrichers, enrich.Options{
		Concurrency: cfg.Enrich.Concurrency,
		Logger:      log,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return Report{}, err
	}

	start := time.Now()
	rep = Report{
		RunID:         uuid.NewString(),
		Target:        target.String(),
		StartedAt:     start.UTC(),
		DedupStrategy: cfg.Dedup.Strategy,
	}
	log = log.With(slog.String("run_id", rep.RunID))

	tracer := tracing.Tracer("pipeline")
	ctx, span := tracing.Start(ctx, tracer, "pipeline.run",
		attribute.String("run_id", rep.RunID),
		attribute.String("target", rep.Target))
	defer func() {
		d := time.Since(start)
		rep.DurationMS = d.Milliseconds()
		opts.Metrics.ObserveRun(d)
		tracing.End(span, err)
	}()

	log.Info("scan started",
		slog.String("target", rep.Target),
		slog.Int("scanners", len(adapters)))

	res, err := orchestrator.Run(ctx, adapters, target, orchestrator.Options{
		MaxConcurrency: cfg.Scan.MaxConcurrency,
		AdapterTimeout: cfg.Scan.AdapterTimeout.Std(),
		RunDeadline:    cfg.Scan.RunDeadline.Std(),
		Configs:        cfg.Scan.Adapters,
		Logger:         log,
		Metrics:        opts.Metrics,
		Tracer:         tracing.Tracer("orchestrator"),
		OnStatus:       opts.OnStatus,
	})
	rep.Scanners = res.Statuses
	if err != nil {
		rep.Summary = summarize(0, rep.Scanners, nil)
		return rep, err
	}

	raw := make([]finding.Finding, len(res.Findings))
	for i, f := range res.Findings {
		raw[i] = f.Normalize()
	}

	_, dspan := tracing.Start(ctx, tracer, "pipeline.dedup",
		attribute.String("strategy", string(cfg.Dedup.Strategy)),
		attribute.Int("input", len(raw)))
	groups, err := dedup.Deduplicate(raw, cfg.Dedup)
	tracing.End(dspan, err)
	if err != nil {
		return rep, err
	}
	opts.Metrics.ObserveDedup(len(raw), len(groups))
	log.Info("findings deduplicated",
		slog.Int("raw", len(raw)),
		slog.Int("groups", len(groups)))

	ectx, espan := tracing.Start(ctx, tracer, "pipeline.enrich",
		attribute.StringSlice("enrichers", ep.Names()),
		attribute.Int("findings", len(groups)))
	er := ep.Run(ectx, dedup.Canonicals(groups))
	espan.SetAttributes(attribute.StringSlice("degraded", er.Degraded))
	tracing.End(espan, nil)
	rep.DegradedEnrichers = er.Degraded

	_, pspan := tracing.Start(ctx, tracer, "pipeline.prioritize")
	rep.Findings = make([]FindingReport, len(groups))
	for i, g := range groups {
		rep.Findings[i] = FindingReport{
			Finding:    g.Canonical,
			Duplicates: g.Duplicates,
			Scanners:   g.Scanners,
			Enrichment: er.Enrichments[i],
			Priority:   priority.Prioritize(g.Canonical, er.Enrichments[i], cfg.Priority),
		}
	}
	slices.SortStableFunc(rep.Findings, func(a, b FindingReport) int {
		if c := priority.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.Finding.ID, b.Finding.ID)
	})
	tracing.End(pspan, nil)

	rep.Summary = summarize(len(raw), rep.Scanners, rep.Findings)
	tiers := make(map[string]int, len(rep.Summary.ByTier))
	for t, n := range rep.Summary.ByTier {
		tiers[string(t)] = n
	}
	opts.Metrics.SetTiers(tiers)

	log.Info("scan finished",
		slog.Int("findings", len(rep.Findings)),
		slog.String("highest_tier", string(rep.Summary.Highest)),
		slog.Any("degraded_enrichers", rep.DegradedEnrichers))
	return rep, nil
}
