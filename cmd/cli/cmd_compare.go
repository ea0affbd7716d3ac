package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scanforge/scanforge/pkg/cli"
	"github.com/scanforge/scanforge/pkg/compare"
	"github.com/scanforge/scanforge/pkg/jsonutil"
	"github.com/scanforge/scanforge/pkg/priority"
	"github.com/scanforge/scanforge/pkg/ui"
)

type compareFlags struct {
	before  string
	after   string
	format  string
	failOn  string
	noColor bool
	verbose bool
}

func (f *compareFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.before, "before", "", "baseline report (required)")
	fs.StringVar(&f.after, "after", "", "newer report (required)")
	fs.StringVar(&f.format, "format", formatTable, "stdout format: json or table")
	fs.StringVar(&f.failOn, "fail-on", "none", "exit 1 when a new or escalated finding reaches this tier")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colors in table output")
	fs.BoolVar(&f.verbose, "v", false, "debug logging")
}

// gate returns the tier to gate on, or ok false for none.
func (f *compareFlags) gate() (priority.Tier, bool, error) {
	if f.failOn == "" || strings.EqualFold(f.failOn, "none") {
		return "", false, nil
	}
	t, err := priority.ParseTier(f.failOn)
	if err != nil {
		return "", false, fmt.Errorf("-fail-on: %w", err)
	}
	return t, true, nil
}

func (a *app) runCompare(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	var f compareFlags
	f.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	switch {
	case f.before == "":
		return usageErrorf("-before is required")
	case f.after == "":
		return usageErrorf("-after is required")
	case f.format != formatJSON && f.format != formatTable:
		return usageErrorf("-format must be %s or %s, got %q", formatJSON, formatTable, f.format)
	}
	tier, gated, err := f.gate()
	if err != nil {
		return err
	}
	log := cli.NewLogger(a.stderr, cli.LogOptions{Verbose: f.verbose})

	before, err := compare.LoadReport(f.before)
	if err != nil {
		return err
	}
	after, err := compare.LoadReport(f.after)
	if err != nil {
		return err
	}

	res := compare.Compare(before, after)
	log.Debug("reports compared",
		slog.String("before", res.BeforeRunID),
		slog.String("after", res.AfterRunID),
		slog.String("verdict", res.Verdict))

	if f.format == formatTable {
		ui.ConfigureColor(a.stdout, f.noColor)
		err = ui.RenderComparison(a.stdout, res)
	} else {
		err = jsonutil.Encode(a.stdout, res, "  ")
	}
	if err != nil {
		return err
	}

	if !gated {
		return nil
	}
	if n := res.NewAtLeast(tier); n > 0 {
		log.Error("policy gate failed",
			slog.String("fail_on", string(tier)),
			slog.Int("new_findings", n))
		return fmt.Errorf("%w: %d new or escalated finding(s) at or above %s", errPolicy, n, tier)
	}
	return nil
}
