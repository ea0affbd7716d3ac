// Package trivy adapts Trivy for filesystem scans (dependencies, secrets
// and misconfigurations) and container image scans.
package trivy

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/scanforge/scanforge/internal/procexec"
	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/finding"
)

// Registry names of the two adapters in this package.
const (
	Name      = "trivy"
	ImageName = "trivy-image"
)

// FS runs `trivy fs` against a source tree.
type FS struct{}

// NewFS returns the filesystem adapter.
func NewFS() *FS { return &FS{} }

func (a *FS) Name() string                     { return Name }
func (a *FS) Kind() finding.Kind               { return finding.KindDependency }
func (a *FS) Supports(t adapter.Target) bool   { return t.Path != "" }
func (a *FS) Args(cfg adapter.Config) []string { return args("fs", cfg, ".", "vuln,secret,misconfig") }

func (a *FS) Run(ctx context.Context, t adapter.Target, cfg adapter.Config) ([]finding.Finding, error) {
	root, _ := filepath.Abs(t.Path)
	return adapter.Exec(ctx, adapter.Invocation{
		Scanner: Name,
		Cmd: procexec.Cmd{
			Name: cfg.BinaryOr("trivy"),
			Args: a.Args(cfg),
			Dir:  t.Path,
			Env:  cfg.Env,
		},
		Parse: func(out []byte) ([]finding.Finding, error) {
			return Parse(out, Name, finding.KindDependency, root)
		},
	})
}

// Image runs `trivy image` against a container image reference.
type Image struct{}

// NewImage returns the image adapter.
func NewImage() *Image { return &Image{} }

func (a *Image) Name() string                   { return ImageName }
func (a *Image) Kind() finding.Kind             { return finding.KindContainer }
func (a *Image) Supports(t adapter.Target) bool { return t.Image != "" }

// Args builds the command line for image ref.
func (a *Image) Args(cfg adapter.Config, ref string) []string {
	return args("image", cfg, ref, "vuln,secret")
}

func (a *Image) Run(ctx context.Context, t adapter.Target, cfg adapter.Config) ([]finding.Finding, error) {
	return adapter.Exec(ctx, adapter.Invocation{
		Scanner: ImageName,
		Cmd: procexec.Cmd{
			Name: cfg.BinaryOr("trivy"),
			Args: a.Args(cfg, t.Image),
			Env:  cfg.Env,
		},
		Parse: func(out []byte) ([]finding.Finding, error) {
			return Parse(out, ImageName, finding.KindContainer, "")
		},
	})
}

func args(sub string, cfg adapter.Config, target, scanners string) []string {
	out := []string{sub, "--format", "json", "--quiet", "--scanners", scanners}
	if len(cfg.Severities) > 0 {
		out = append(out, "--severity", strings.ToUpper(strings.Join(cfg.Severities, ",")))
	}
	for _, ex := range cfg.Excludes {
		out = append(out, "--skip-dirs", ex)
	}
	if cfg.Offline {
		out = append(out, "--skip-db-update", "--offline-scan")
	}
	out = append(out, cfg.ExtraArgs...)
	return append(out, target)
}
