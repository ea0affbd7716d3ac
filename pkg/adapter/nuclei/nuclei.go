// Package nuclei adapts the Nuclei template-based DAST scanner.
package nuclei

import (
	"context"
	"strings"

	"github.com/scanforge/scanforge/internal/procexec"
	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/finding"
)

// Name is the registry name of this adapter.
const Name = "nuclei"

// Adapter runs nuclei against a live URL and reads its JSONL stream.
type Adapter struct{}

// New returns the nuclei adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string       { return Name }
func (a *Adapter) Kind() finding.Kind { return finding.KindDynamic }

// Supports reports whether t names a URL. Nuclei never scans source.
func (a *Adapter) Supports(t adapter.Target) bool { return t.URL != "" }

// Args builds the nuclei command line for url.
func (a *Adapter) Args(cfg adapter.Config, url string) []string {
	args := []string{"-target", url, "-jsonl", "-silent", "-nc"}
	if len(cfg.Severities) > 0 {
		args = append(args, "-severity", strings.ToLower(strings.Join(cfg.Severities, ",")))
	}
	for _, r := range cfg.Rulesets {
		args = append(args, "-t", r)
	}
	if cfg.Offline {
		args = append(args, "-duc")
	}
	return append(args, cfg.ExtraArgs...)
}

func (a *Adapter) Run(ctx context.Context, t adapter.Target, cfg adapter.Config) ([]finding.Finding, error) {
	return adapter.Exec(ctx, adapter.Invocation{
		Scanner: Name,
		Cmd: procexec.Cmd{
			Name: cfg.BinaryOr("nuclei"),
			Args: a.Args(cfg, t.URL),
			Env:  cfg.Env,
		},
		Parse: Parse,
	})
}
