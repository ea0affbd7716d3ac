package main

import (
	"context"
	"log/slog"

	"github.com/scanforge/scanforge/pkg/config"
	"github.com/scanforge/scanforge/pkg/duration"
	"github.com/scanforge/scanforge/pkg/metrics"
	"github.com/scanforge/scanforge/pkg/tracing"
)

// observability owns the per-process metrics recorder and tracer provider.
type observability struct {
	metrics  *metrics.Recorder
	tracer   *tracing.Provider
	textfile string
	log      *slog.Logger
}

// startObservability never fails the command: a collector that cannot be
// reached or a port already in use is logged and the run goes on without it.
func startObservability(ctx context.Context, cfg config.Config, log *slog.Logger) *observability {
	o := &observability{textfile: cfg.Metrics.Textfile, log: log}

	rec, err := metrics.New()
	if err != nil {
		log.Warn("metrics disabled", slog.String("error", err.Error()))
	} else {
		o.metrics = rec
	}
	if cfg.Metrics.Listen != "" {
		if err := o.metrics.Serve(cfg.Metrics.Listen, log); err != nil {
			log.Warn("metrics listener not started",
				slog.String("listen", cfg.Metrics.Listen),
				slog.String("error", err.Error()))
		} else {
			log.Info("serving metrics", slog.String("listen", cfg.Metrics.Listen))
		}
	}

	if cfg.Tracing.Enabled {
		p, err := tracing.Setup(ctx, cfg.Tracing.Options)
		if err != nil {
			log.Warn("tracing disabled", slog.String("error", err.Error()))
		} else {
			o.tracer = p
		}
	}
	return o
}

// close writes the textfile dump and flushes exporters.
func (o *observability) close() {
	if o.textfile != "" {
		if err := o.metrics.WriteTextfile(o.textfile); err != nil {
			o.log.Warn("metrics textfile not written",
				slog.String("path", o.textfile),
				slog.String("error", err.Error()))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), duration.TracingShutdown)
	defer cancel()
	if err := o.metrics.Close(ctx); err != nil {
		o.log.Debug("metrics server shutdown", slog.String("error", err.Error()))
	}
	if err := o.tracer.Shutdown(ctx); err != nil {
		o.log.Warn("trace flush failed", slog.String("error", err.Error()))
	}
}
