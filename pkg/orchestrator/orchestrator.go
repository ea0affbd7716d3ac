// Package orchestrator runs scanner adapters concurrently under a bounded
// pool, isolates their failures and collects findings plus one status
// record per adapter.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/duration"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/metrics"
	"github.com/scanforge/scanforge/pkg/tracing"
)

// Options tunes a run. Zero values take the package defaults.
type Options struct {
	// MaxConcurrency bounds how many adapters run at once.
	MaxConcurrency int

	// AdapterTimeout bounds each adapter.
	AdapterTimeout time.Duration

	// RunDeadline bounds the whole run. Adapters still running when it
	// passes are cancelled and recorded as timeout.
	RunDeadline time.Duration

	// Configs holds per-scanner options keyed by adapter name.
	Configs map[string]adapter.Config

	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Tracer  trace.Tracer

	// OnStatus is called as each adapter finishes (optional).
	OnStatus func(Status)
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = defaults.ConcurrencyAdapters
	}
	if o.AdapterTimeout <= 0 {
		o.AdapterTimeout = duration.AdapterTimeout
	}
	if o.RunDeadline <= 0 {
		o.RunDeadline = duration.RunDeadline
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Tracer == nil {
		o.Tracer = tracing.Tracer("orchestrator")
	}
	return o
}

// Status is the per-adapter record that always appears in the report.
type Status struct {
	Name       string         `json:"name"`
	Status     adapter.Status `json:"status"`
	Findings   int            `json:"findings"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Partial    bool           `json:"partial,omitempty"`
}

// OK reports whether the adapter counts as successful.
func (s Status) OK() bool { return s.Status == adapter.StatusOK }

// Result is everything a run produced.
type Result struct {
	Findings []finding.Finding
	Statuses []Status // sorted by name
}

// Run executes every adapter that supports target. It always returns the
// findings gathered so far together with all statuses; the error is
// ErrNoAdapters or ErrAllAdaptersFailed when the run as a whole failed.
func Run(ctx context.Context, adapters []adapter.Adapter, target adapter.Target, opts Options) (Result, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	runnable := make([]adapter.Adapter, 0, len(adapters))
	for _, a := range adapters {
		if a.Supports(target) {
			runnable = append(runnable, a)
			continue
		}
		log.Warn("scanner does not support target, skipping",
			slog.String("scanner", a.Name()),
			slog.String("target", target.String()))
	}
	if len(runnable) == 0 {
		return Result{}, ErrNoAdapters
	}

	ctx, span := tracing.Start(ctx, opts.Tracer, "orchestrator.run",
		attribute.String("target", target.String()),
		attribute.Int("adapters", len(runnable)))

	runCtx, cancel := context.WithTimeout(ctx, opts.RunDeadline)
	defer cancel()

	concurrency := opts.MaxConcurrency
	if concurrency > len(runnable) {
		concurrency = len(runnable)
	}
	sem := make(chan struct{}, concurrency)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = make([]Status, 0, len(runnable))
		findings []finding.Finding
	)
	record := func(st Status, fs []finding.Finding) {
		mu.Lock()
		statuses = append(statuses, st)
		findings = append(findings, fs...)
		mu.Unlock()
		if opts.OnStatus != nil {
			opts.OnStatus(st)
		}
	}

	for _, a := range runnable {
		// Acquire a slot, or give up on adapters that never got one.
		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
			record(Status{
				Name:   a.Name(),
				Status: adapter.StatusTimeout,
				Error:  fmt.Sprintf("not started before run deadline: %v", runCtx.Err()),
			}, nil)
			continue
		}
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()
			defer func() { <-sem }()
			st, fs := runOne(runCtx, a, target, opts)
			record(st, fs)
		}(a)
	}
	wg.Wait()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	res := Result{Findings: findings, Statuses: statuses}

	var err error
	if !anyOK(statuses) {
		err = ErrAllAdaptersFailed
	}
	tracing.End(span, err)
	return res, err
}

// runOne executes a single adapter under its own timeout and converts the
// outcome into a Status. Panics inside an adapter become crashed.
func runOne(ctx context.Context, a adapter.Adapter, target adapter.Target, opts Options) (st Status, fs []finding.Finding) {
	name := a.Name()
	log := opts.Logger.With(slog.String("scanner", name))
	start := time.Now()

	ctx, span := tracing.Start(ctx, opts.Tracer, "adapter.run", attribute.String("scanner", name))
	actx, cancel := context.WithTimeout(ctx, opts.AdapterTimeout)
	defer cancel()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: adapter panic: %v", name, r)
			fs = nil
			st = Status{Name: name, Status: adapter.StatusCrashed, Error: err.Error()}
		}
		st.DurationMS = time.Since(start).Milliseconds()
		st.Findings = len(fs)
		opts.Metrics.ObserveAdapter(name, string(st.Status), time.Since(start), len(fs))
		span.SetAttributes(
			attribute.String("status", string(st.Status)),
			attribute.Int("findings", len(fs)))
		tracing.End(span, err)
	}()

	log.Debug("scanner starting")
	fs, err = a.Run(actx, target, opts.Configs[name])
	st = classify(actx, name, err)
	if st.Status == adapter.StatusTimeout {
		fs = nil
	}

	switch {
	case err == nil:
		log.Info("scanner finished", slog.Int("findings", len(fs)))
	case st.OK():
		log.Warn("scanner output only partly parsed",
			slog.Int("findings", len(fs)),
			slog.String("error", err.Error()))
	default:
		log.Warn("scanner failed",
			slog.String("status", string(st.Status)),
			slog.Int("findings_kept", len(fs)),
			slog.String("error", err.Error()))
	}
	return st, fs
}

// classify maps an adapter error onto a status. A done context wins over
// whatever error the adapter returned, so a cancelled scanner always
// reads as timeout.
func classify(ctx context.Context, name string, err error) Status {
	st := Status{Name: name, Status: adapter.StatusOf(err)}
	if err == nil {
		return st
	}
	st.Error = err.Error()
	if ctx.Err() != nil {
		st.Status = adapter.StatusTimeout
		return st
	}
	var pe *adapter.PartialOutputError
	st.Partial = errors.As(err, &pe)
	return st
}

func anyOK(statuses []Status) bool {
	for _, s := range statuses {
		if s.OK() {
			return true
		}
	}
	return false
}
