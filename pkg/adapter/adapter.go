// Package adapter defines the contract every scanner integration
// implements, the errors adapters report, and the shared subprocess
// plumbing that turns a scanner's exit status and stdout into findings.
//
// Adapters are registered in an explicit table (see adapter/builtin);
// there is no runtime discovery.
package adapter

import (
	"context"

	"github.com/scanforge/scanforge/pkg/finding"
)

// Adapter wraps one external scanner.
//
// Run must honour ctx: when it is done the scanner process is killed and
// no findings are returned. The timeout itself is owned by the caller.
// Run never panics on malformed scanner output; it returns a
// *PartialOutputError carrying whatever parsed cleanly.
type Adapter interface {
	Name() string
	Kind() finding.Kind
	Supports(t Target) bool
	Run(ctx context.Context, t Target, cfg Config) ([]finding.Finding, error)
}

// Target is what a run scans. Source scanners use Path, DAST scanners use
// URL and image scanners use Image.
type Target struct {
	Path  string `json:"path,omitempty" yaml:"path"`
	URL   string `json:"url,omitempty" yaml:"url"`
	Image string `json:"image,omitempty" yaml:"image"`
}

// String returns the most specific description of the target.
func (t Target) String() string {
	switch {
	case t.Path != "":
		return t.Path
	case t.URL != "":
		return t.URL
	default:
		return t.Image
	}
}

// Config carries per-scanner options. Fields a scanner has no use for
// are ignored.
type Config struct {
	// Binary overrides the executable name or path.
	Binary string `yaml:"binary"`

	// Excludes are paths or globs to skip.
	Excludes []string `yaml:"excludes"`

	// Severities filters at the scanner where it supports it.
	Severities []string `yaml:"severities"`

	// Rulesets selects scanner rule packs (semgrep --config).
	Rulesets []string `yaml:"rulesets"`

	// Offline disables scanner database updates.
	Offline bool `yaml:"offline"`

	// ExtraArgs are appended before the target argument.
	ExtraArgs []string `yaml:"extra_args"`

	// Env is appended to the scanner's environment.
	Env []string `yaml:"env"`
}

// BinaryOr returns cfg.Binary, or def when unset.
func (c Config) BinaryOr(def string) string {
	if c.Binary != "" {
		return c.Binary
	}
	return def
}
