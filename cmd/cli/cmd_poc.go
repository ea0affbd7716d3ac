package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/scanforge/scanforge/pkg/cli"
	"github.com/scanforge/scanforge/pkg/config"
	"github.com/scanforge/scanforge/pkg/duration"
	"github.com/scanforge/scanforge/pkg/jsonutil"
	"github.com/scanforge/scanforge/pkg/llm"
	"github.com/scanforge/scanforge/pkg/pipeline"
	"github.com/scanforge/scanforge/pkg/poc"
	"github.com/scanforge/scanforge/pkg/safety"
	"github.com/scanforge/scanforge/pkg/ui"
)

type pocFlags struct {
	commonFlags

	report      string
	id          string
	format      string
	out         string
	targetURL   string
	param       string
	method      string
	safetyRules string
	noLLM       bool
	noColor     bool
}

func (f *pocFlags) register(fs *flag.FlagSet) {
	f.commonFlags.register(fs)
	fs.StringVar(&f.report, "report", "", "JSON report written by 'scan' (- for stdin)")
	fs.StringVar(&f.id, "id", "", "finding id, canonical or duplicate")
	fs.StringVar(&f.format, "format", "text", "stdout format: text or json")
	fs.StringVar(&f.out, "out", "", "write the accepted script to this file")
	fs.StringVar(&f.targetURL, "target-url", "", "base URL the script attacks")
	fs.StringVar(&f.param, "param", "", "vulnerable parameter name")
	fs.StringVar(&f.method, "method", "", "HTTP method")
	fs.StringVar(&f.safetyRules, "safety-rules", "", "extra denylist rules (YAML)")
	fs.BoolVar(&f.noLLM, "no-llm", false, "skip LLM customization even when configured")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colors in text output")
}

func (f *pocFlags) config(set map[string]bool) (config.Config, error) {
	cfg, err := f.load()
	if err != nil {
		return config.Config{}, err
	}
	if set["target-url"] {
		cfg.PoC.TargetURL = f.targetURL
	}
	if set["param"] {
		cfg.PoC.ParamName = f.param
	}
	if set["method"] {
		cfg.PoC.Method = f.method
	}
	if set["safety-rules"] {
		cfg.PoC.SafetyRulesFile = f.safetyRules
	}
	if f.noLLM {
		cfg.LLM.Provider = llm.ProviderNone
	}
	return cfg, cfg.Validate()
}

func (a *app) runPoC(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("poc", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	var f pocFlags
	f.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	switch {
	case f.report == "":
		return usageErrorf("-report is required")
	case f.id == "":
		return usageErrorf("-id is required")
	case f.format != "text" && f.format != formatJSON:
		return usageErrorf("-format must be text or %s, got %q", formatJSON, f.format)
	}

	log := f.logger(a.stderr)
	cfg, err := f.config(cli.Visited(fs))
	if err != nil {
		return err
	}

	rep, err := readReport(f.report)
	if err != nil {
		return err
	}
	fr, ok := rep.Find(f.id)
	if !ok {
		return usageErrorf("finding %q not in report %s", f.id, f.report)
	}

	ctx, stop := cli.SignalContext(ctx, duration.ShutdownGrace, log)
	defer stop()
	obs := startObservability(ctx, cfg, log)
	defer obs.close()

	gen, err := a.generator(cfg, log, obs)
	if err != nil {
		return err
	}
	art, genErr := gen.Generate(ctx, fr.Finding)

	var violation *safety.Violation
	if genErr != nil && !errors.As(genErr, &violation) && !errors.Is(genErr, poc.ErrRender) {
		return genErr
	}
	if err := a.renderArtifact(f, art); err != nil {
		return err
	}
	if art.State != poc.StateAccepted {
		if genErr != nil {
			return fmt.Errorf("%w: %w", errRejected, genErr)
		}
		return nil
	}
	if f.out != "" {
		if err := os.WriteFile(f.out, []byte(art.Content), 0o600); err != nil {
			return fmt.Errorf("poc: %w", err)
		}
		log.Info("PoC written", slog.String("path", f.out), slog.String("template", art.Template))
	}
	return nil
}

func (a *app) generator(cfg config.Config, log *slog.Logger, obs *observability) (*poc.Generator, error) {
	newCompleter := a.newCompleter
	if newCompleter == nil {
		newCompleter = llm.New
	}
	completer, err := newCompleter(cfg.LLM)
	if err != nil {
		return nil, err
	}
	checker, err := safety.NewChecker(safety.Options{UserFile: cfg.PoC.SafetyRulesFile, Logger: log})
	if err != nil {
		return nil, err
	}
	return poc.New(poc.Options{
		Completer: completer,
		Checker:   checker,
		Defaults: poc.Params{
			TargetURL: cfg.PoC.TargetURL,
			ParamName: cfg.PoC.ParamName,
			Method:    cfg.PoC.Method,
		},
		Logger:  log,
		Metrics: obs.metrics,
	})
}

func (a *app) renderArtifact(f pocFlags, art poc.Artifact) error {
	if f.format == formatJSON {
		return jsonutil.Encode(a.stdout, art, "  ")
	}
	ui.ConfigureColor(a.stdout, f.noColor)
	return ui.RenderArtifact(a.stdout, art)
}

func readReport(path string) (pipeline.Report, error) {
	if path == "-" {
		return pipeline.ReadReport(os.Stdin)
	}
	return pipeline.ReadReportFile(path)
}
