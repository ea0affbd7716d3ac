// Package bandit adapts the Bandit Python SAST scanner.
package bandit

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/scanforge/scanforge/internal/procexec"
	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/finding"
)

// Name is the registry name of this adapter.
const Name = "bandit"

// Adapter runs `bandit -f json -ll -r .` inside the target directory.
type Adapter struct{}

// New returns the bandit adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string       { return Name }
func (a *Adapter) Kind() finding.Kind { return finding.KindCode }

// Supports reports whether t has a source tree to scan.
func (a *Adapter) Supports(t adapter.Target) bool { return t.Path != "" }

// Args builds the bandit command line. -ll drops LOW severity results.
func (a *Adapter) Args(cfg adapter.Config) []string {
	args := []string{"-f", "json", "-ll", "-q"}
	if len(cfg.Excludes) > 0 {
		args = append(args, "-x", strings.Join(cfg.Excludes, ","))
	}
	args = append(args, cfg.ExtraArgs...)
	return append(args, "-r", ".")
}

// Run executes bandit. Exit code 1 means "issues found", not failure.
func (a *Adapter) Run(ctx context.Context, t adapter.Target, cfg adapter.Config) ([]finding.Finding, error) {
	root, _ := filepath.Abs(t.Path)
	return adapter.Exec(ctx, adapter.Invocation{
		Scanner: Name,
		Cmd: procexec.Cmd{
			Name: cfg.BinaryOr("bandit"),
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
