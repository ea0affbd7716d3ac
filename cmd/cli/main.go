// Command scanforge runs security scanners over a target, merges and
// prioritizes what they find, and renders proof-of-concept scripts for
// individual findings.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/config"
	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/llm"
)

func main() {
	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	os.Exit(a.run(context.Background(), os.Args[1:]))
}

// app carries the process streams and the seams tests replace.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// registry overrides the built-in scanner table.
	registry *adapter.Registry

	// newCompleter overrides llm.New.
	newCompleter func(llm.Config) (llm.Completer, error)
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage()
		return defaults.ExitUserError
	}

	var err error
	switch args[0] {
	case "scan":
		err = a.runScan(ctx, args[1:])
	case "poc":
		err = a.runPoC(ctx, args[1:])
	case "compare":
		err = a.runCompare(ctx, args[1:])
	case "config":
		err = a.runConfig(args[1:])
	case "presets":
		for _, name := range config.Presets() {
			fmt.Fprintln(a.stdout, name)
		}
	case "version", "-version", "--version":
		fmt.Fprintf(a.stdout, "%s %s\n", defaults.ToolName, defaults.Version)
	case "help", "-h", "--help":
		a.usage()
	default:
		err = usageErrorf("unknown command %q", args[0])
		a.usage()
	}

	code := exitCode(err)
	if err != nil && !errors.Is(err, errHelp) && code != defaults.ExitPolicyFailed {
		fmt.Fprintf(a.stderr, "%s: %v\n", defaults.ToolName, err)
	}
	return code
}

func (a *app) usage() {
	fmt.Fprintf(a.stderr, `Usage: %[1]s <command> [flags]

Commands:
  scan      run scanners, deduplicate, enrich and prioritize findings
  poc       render a proof-of-concept for one finding of a saved report
  compare   diff two saved reports and gate on new findings
  config    print the effective configuration
  presets   list bundled configuration presets
  version   print the version

Examples:
  %[1]s scan -target ./app -format table
  %[1]s scan -target ./app -preset ci -fail-on high -o report.json
  %[1]s poc -report report.json -id bandit-B608-1a2b3c4d
  %[1]s compare -before main.json -after report.json -fail-on high

Run '%[1]s <command> -h' for the flags of a command.
`, defaults.ToolName)
}
