// Package enrich runs enrichers over findings and merges their partial
// results. Enricher failures degrade single fields to unknown; they never
// fail the pipeline.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/metrics"
	"github.com/scanforge/scanforge/pkg/workerpool"
)

// Enricher adds signals to one finding. It returns a partial Enrichment
// holding only the fields it owns.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, f finding.Finding) (Enrichment, error)
}

// Preparer is implemented by enrichers that batch network work once per
// pass, before any Enrich call.
type Preparer interface {
	Prepare(ctx context.Context, fs []finding.Finding) error
}

// Options tunes a Pipeline.
type Options struct {
	Concurrency int
	Logger      *slog.Logger
	Metrics     *metrics.Recorder
}

// Pipeline applies a fixed set of enrichers.
type Pipeline struct {
	enrichers   []Enricher
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Recorder
}

// NewPipeline builds a pipeline. Enricher names must be unique.
func NewPipeline(enrichers []Enricher, opts Options) (*Pipeline, error) {
	seen := make(map[string]bool, len(enrichers))
	for _, e := range enrichers {
		if seen[e.Name()] {
			return nil, fmt.Errorf("enrich: duplicate enricher %q", e.Name())
		}
		seen[e.Name()] = true
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.ConcurrencyEnrich
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		enrichers:   enrichers,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}, nil
}

// Names returns the enricher names in execution order.
func (p *Pipeline) Names() []string {
	out := make([]string, len(p.enrichers))
	for i, e := range p.enrichers {
		out[i] = e.Name()
	}
	return out
}

// Result holds one Enrichment per input finding, in input order, and the
// run-level set of degraded enrichers.
type Result struct {
	Enrichments []Enrichment
	Degraded    []string
}

// Run enriches fs. It never fails: every problem ends up in Degraded.
func (p *Pipeline) Run(ctx context.Context, fs []finding.Finding) Result {
	p.prepare(ctx, fs)

	pool := workerpool.New(p.concurrency).WithLogger(p.logger)
	defer pool.Close()

	type outcome struct {
		e    Enrichment
		done bool
	}
	outcomes := workerpool.Map(ctx, pool, fs, func(ctx context.Context, f finding.Finding) outcome {
		return outcome{e: p.enrichOne(ctx, f), done: true}
	})

	res := Result{Enrichments: make([]Enrichment, len(fs))}
	runDegraded := make(map[string]bool)
	for i, o := range outcomes {
		e := o.e
		if !o.done {
			// Skipped because ctx ended before the worker picked it up.
			e.Degraded = p.Names()
		}
		e.Finalize()
		for _, name := range e.Degraded {
			runDegraded[name] = true
		}
		res.Enrichments[i] = e
	}
	for name := range runDegraded {
		res.Degraded = append(res.Degraded, name)
	}
	slices.Sort(res.Degraded)
	if len(res.Degraded) > 0 {
		p.logger.Warn("enrichment degraded", slog.Any("enrichers", res.Degraded))
	}
	return res
}

// prepare runs every Preparer concurrently. Failures are logged; the
// Enrich calls that follow decide what is still usable.
func (p *Pipeline) prepare(ctx context.Context, fs []finding.Finding) {
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range p.enrichers {
		pr, ok := e.(Preparer)
		if !ok {
			continue
		}
		name := e.Name()
		g.Go(func() error {
			if err := pr.Prepare(gctx, fs); err != nil {
				p.logger.Warn("enricher prepare failed",
					slog.String("enricher", name),
					slog.String("error", err.Error()))
			}
			// Errors are not returned so siblings are never cancelled.
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) enrichOne(ctx context.Context, f finding.Finding) Enrichment {
	var merged Enrichment
	for _, e := range p.enrichers {
		part, err := p.call(ctx, e, f)
		if err != nil {
			var ue *UnavailableError
			if !errors.As(err, &ue) {
				ue = &UnavailableError{Enricher: e.Name(), Err: err}
			}
			p.logger.Debug("enricher unavailable for finding",
				slog.String("enricher", e.Name()),
				slog.String("finding", f.ID),
				slog.String("error", ue.Error()))
			p.metrics.EnricherDegraded(e.Name())
			merged.Degraded = append(merged.Degraded, e.Name())
			continue
		}
		merged.Merge(part)
	}
	return merged
}

// call invokes one enricher, turning a panic into an error.
func (p *Pipeline) call(ctx context.Context, e Enricher, f finding.Finding) (part Enrichment, err error) {
	defer func() {
		if r := recover(); r != nil {
			part, err = Enrichment{}, &UnavailableError{Enricher: e.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := ctx.Err(); err != nil {
		return Enrichment{}, err
	}
	return e.Enrich(ctx, f.Clone())
}
