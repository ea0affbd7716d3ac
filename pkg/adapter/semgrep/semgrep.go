// Package semgrep adapts the Semgrep multi-language SAST scanner.
package semgrep

import (
	"context"
	"path/filepath"

	"github.com/scanforge/scanforge/internal/procexec"
	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/finding"
)

// Name is the registry name of this adapter.
const Name = "semgrep"

// defaultRuleset is used when no rulesets are configured.
const defaultRuleset = "auto"

// Adapter runs `semgrep --json` inside the target directory.
type Adapter struct{}

// New returns the semgrep adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string       { return Name }
func (a *Adapter) Kind() finding.Kind { return finding.KindCode }

// Supports reports whether t has a source tree to scan.
func (a *Adapter) Supports(t adapter.Target) bool { return t.Path != "" }

// Args builds the semgrep command line. Metrics are always off.
func (a *Adapter) Args(cfg adapter.Config) []string {
	args := []string{"scan", "--json", "--quiet", "--metrics", "off"}
	rulesets := cfg.Rulesets
	if len(rulesets) == 0 {
		rulesets = []string{defaultRuleset}
	}
	for _, r := range rulesets {
		args = append(args, "--config", r)
	}
	for _, ex := range cfg.Excludes {
		args = append(args, "--exclude", ex)
	}
	args = append(args, cfg.ExtraArgs...)
	return append(args, ".")
}

// Run executes semgrep. Exit code 1 is "findings present" under --error.
func (a *Adapter) Run(ctx context.Context, t adapter.Target, cfg adapter.Config) ([]finding.Finding, error) {
	root, _ := filepath.Abs(t.Path)
	return adapter.Exec(ctx, adapter.Invocation{
		Scanner: Name,
		Cmd: procexec.Cmd{
			Name: cfg.BinaryOr("semgrep"),
			Args: a.Args(cfg),
			Dir:  t.Path,
			Env:  cfg.Env,
		},
		SuccessCodes: []int{0, 1},
		Parse: func(out []byte) ([]finding.Finding, error) {
			return Parse(out, root)
		},
	})
}
