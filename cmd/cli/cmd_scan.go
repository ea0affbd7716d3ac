package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/cli"
	"github.com/scanforge/scanforge/pkg/config"
	"github.com/scanforge/scanforge/pkg/dedup"
	"github.com/scanforge/scanforge/pkg/duration"
	"github.com/scanforge/scanforge/pkg/orchestrator"
	"github.com/scanforge/scanforge/pkg/pipeline"
	"github.com/scanforge/scanforge/pkg/priority"
	"github.com/scanforge/scanforge/pkg/ui"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

type scanFlags struct {
	commonFlags

	target   string
	url      string
	image    string
	scanners cli.ListFlag
	dedup    string
	failOn   string
	format   string
	output   string
	offline  bool
	noColor  bool

	metricsFile   string
	metricsListen string
}

func (f *scanFlags) register(fs *flag.FlagSet) {
	f.commonFlags.register(fs)
	fs.StringVar(&f.target, "target", "", "source tree to scan")
	fs.StringVar(&f.url, "url", "", "running application URL for DAST scanners")
	fs.StringVar(&f.image, "image", "", "container image reference for image scanners")
	fs.Var(&f.scanners, "scanners", "comma-separated scanners to run (default: all that support the target)")
	fs.StringVar(&f.dedup, "dedup", "", "dedup strategy: strict, fuzzy or location")
	fs.StringVar(&f.failOn, "fail-on", "", "exit 1 when a finding reaches this tier (critical, high, medium, low, none)")
	fs.StringVar(&f.format, "format", formatJSON, "stdout format: json or table")
	fs.StringVar(&f.output, "o", "", "also write the JSON report to this file")
	fs.BoolVar(&f.offline, "offline", false, "no network for KEV/EPSS; serve the feed cache only")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colors in table output")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")
	fs.StringVar(&f.metricsListen, "metrics-listen", "", "serve /metrics on this address during the run")
}

// config applies the flags the user actually set on top of the loaded
// configuration.
func (f *scanFlags) config(set map[string]bool) (config.Config, error) {
	cfg, err := f.load()
	if err != nil {
		return config.Config{}, err
	}
	if set["scanners"] {
		cfg.Scan.Scanners = []string(f.scanners)
	}
	if set["dedup"] {
		s, err := dedup.ParseStrategy(f.dedup)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Dedup.Strategy = s
	}
	if set["fail-on"] {
		cfg.Scan.FailOn = f.failOn
	}
	if set["offline"] {
		cfg.Enrich.Offline = f.offline
	}
	if set["metrics-file"] {
		cfg.Metrics.Textfile = f.metricsFile
	}
	if set["metrics-listen"] {
		cfg.Metrics.Listen = f.metricsListen
	}
	return cfg, nil
}

func (f *scanFlags) targetSpec() (adapter.Target, error) {
	t := adapter.Target{URL: f.url, Image: f.image}
	if f.target != "" {
		abs, err := filepath.Abs(f.target)
		if err != nil {
			return t, usageErrorf("-target: %v", err)
		}
		st, err := os.Stat(abs)
		if err != nil {
			return t, fmt.Errorf("-target: %w", err)
		}
		if !st.IsDir() {
			return t, usageErrorf("-target %s is not a directory", f.target)
		}
		t.Path = abs
	}
	if t == (adapter.Target{}) {
		return t, usageErrorf("one of -target, -url or -image is required")
	}
	return t, nil
}

func (a *app) runScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	var f scanFlags
	f.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if f.format != formatJSON && f.format != formatTable {
		return usageErrorf("-format must be %s or %s, got %q", formatJSON, formatTable, f.format)
	}

	log := f.logger(a.stderr)
	cfg, err := f.config(cli.Visited(fs))
	if err != nil {
		return err
	}
	target, err := f.targetSpec()
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext(ctx, duration.ShutdownGrace, log)
	defer stop()

	obs := startObservability(ctx, cfg, log)
	defer obs.close()

	rep, runErr := pipeline.Run(ctx, target, pipeline.Options{
		Config:   cfg,
		Registry: a.registry,
		Logger:   log,
		Metrics:  obs.metrics,
		OnStatus: func(s orchestrator.Status) {
			log.Info("scanner finished",
				slog.String("scanner", s.Name),
				slog.String("status", string(s.Status)),
				slog.Int("findings", s.Findings),
				slog.Int64("duration_ms", s.DurationMS))
		},
	})
	if rep.RunID == "" {
		// Nothing ran: configuration or selection problem.
		return runErr
	}

	if f.output != "" {
		if err := writeReport(f.output, rep); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if err := a.renderReport(f, rep); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return runErr
	}

	log.Info("scan complete",
		slog.Int("findings", rep.Summary.Findings),
		slog.Int("raw_findings", rep.Summary.RawFindings),
		slog.String("highest_tier", string(rep.Summary.Highest)),
		slog.Int64("duration_ms", rep.DurationMS))

	if tier, ok := cfg.FailOnTier(); ok && rep.Reaches(tier) {
		n := countAtLeast(rep, tier)
		log.Error("policy gate failed",
			slog.String("fail_on", string(tier)),
			slog.Int("findings", n))
		return fmt.Errorf("%w: %d finding(s) at or above %s", errPolicy, n, tier)
	}
	return nil
}

func (a *app) renderReport(f scanFlags, rep pipeline.Report) error {
	if f.format == formatTable {
		ui.ConfigureColor(a.stdout, f.noColor)
		return ui.RenderReport(a.stdout, rep)
	}
	return rep.Write(a.stdout)
}

func writeReport(path string, rep pipeline.Report) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := rep.Write(out); err != nil {
		out.Close()
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return out.Close()
}

func countAtLeast(rep pipeline.Report, t priority.Tier) int {
	n := 0
	for _, fr := range rep.Findings {
		if fr.Priority.Tier.AtLeast(t) {
			n++
		}
	}
	return n
}
