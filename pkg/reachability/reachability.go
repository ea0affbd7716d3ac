// Package reachability decides whether a vulnerable dependency is
// actually used by the scanned code: imported and called. It indexes Go
// sources with go/parser and Python sources lexically, once per target.
package reachability

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/scanforge/scanforge/pkg/enrich"
	"github.com/scanforge/scanforge/pkg/finding"
)

// Name is the enricher name used in degraded lists.
const Name = "reachability"

// maxCallSites bounds the evidence carried per finding.
const maxCallSites = 20

//go:embed modules.yaml
var modulesYAML []byte

// pythonModules maps normalized PyPI distribution names to the modules
// they install.
var pythonModules = sync.OnceValue(func() map[string][]string {
	var raw map[string][]string
	if err := yaml.Unmarshal(modulesYAML, &raw); err != nil {
		panic(fmt.Sprintf("reachability: embedded modules.yaml: %v", err))
	}
	out := make(map[string][]string, len(raw))
	for dist, mods := range raw {
		for _, m := range mods {
			out[Normalize(dist)] = append(out[Normalize(dist)], Normalize(m))
		}
	}
	return out
})

// Normalize folds case and reads "-" as "_", so PyYAML, pyyaml and
// py-yaml compare equal.
func Normalize(name string) string {
	return strings.ReplaceAll(cases.Fold().String(strings.TrimSpace(name)), "-", "_")
}

// Verdict is the outcome for one package.
type Verdict struct {
	Reachable enrich.Reachability
	Evidence  *enrich.Evidence
	Err       error // *AnalysisError behind an unknown verdict
}

// Analyze decides reachability of pkg in g. lang restricts the search to
// one language; empty searches every language present.
func Analyze(g *Graph, lang Language, pkg string) Verdict {
	langs := []Language{lang}
	if lang == "" {
		langs = g.Languages()
	}
	langs = slices.DeleteFunc(langs, func(l Language) bool { return !g.Has(l) })
	if len(langs) == 0 {
		return Verdict{Reachable: enrich.NotApplicable}
	}

	var (
		ev        *enrich.Evidence
		uncertain error
	)
	for _, f := range g.Files {
		if !slices.Contains(langs, f.Language) {
			continue
		}
		for _, imp := range f.Imports {
			if !imports(f.Language, imp.Path, pkg) {
				continue
			}
			if ev == nil {
				ev = &enrich.Evidence{Import: imp.Path}
			}
			if f.Err != nil {
				uncertain = &AnalysisError{Path: f.Path, Err: f.Err}
				continue
			}
			if imp.Local == "." || imp.Local == "*" {
				uncertain = &AnalysisError{Path: f.Path, Err: fmt.Errorf("unqualified import of %s", imp.Path)}
				continue
			}
			for _, c := range f.Calls {
				if calls(c.Name, imp.Local) {
					ev.CallSites = append(ev.CallSites, fmt.Sprintf("%s:%d", f.Path, c.Line))
				}
			}
		}
	}

	switch {
	case ev != nil && len(ev.CallSites) > 0:
		slices.Sort(ev.CallSites)
		ev.CallSites = slices.Compact(ev.CallSites)
		if len(ev.CallSites) > maxCallSites {
			ev.CallSites = ev.CallSites[:maxCallSites]
		}
		return Verdict{Reachable: enrich.Reachable, Evidence: ev}
	case uncertain != nil:
		return Verdict{Reachable: enrich.ReachUnknown, Evidence: ev, Err: uncertain}
	default:
		return Verdict{Reachable: enrich.Unreachable, Evidence: ev}
	}
}

// imports reports whether an import path refers to package pkg.
func imports(lang Language, importPath, pkg string) bool {
	ip, p := Normalize(importPath), Normalize(pkg)
	switch lang {
	case Go:
		return ip == p || strings.HasPrefix(ip, p+"/")
	case Python:
		mods, ok := pythonModules()[p]
		if !ok {
			mods = []string{p}
		}
		for _, m := range mods {
			if ip == m || strings.HasPrefix(ip, m+".") {
				return true
			}
		}
	}
	return false
}

func calls(call, local string) bool {
	if local == "_" || local == "" {
		return false
	}
	return call == local || strings.HasPrefix(call, local+".")
}

// LanguageOf maps a dependency finding to the language whose sources can
// use it. ok is false for ecosystems the analyzer cannot follow; an
// empty language with ok true means unknown, search all.
func LanguageOf(f finding.Finding) (lang Language, ok bool) {
	if t, _ := f.RawFields["package_type"].(string); t != "" {
		switch strings.ToLower(t) {
		case "gomod", "gobinary":
			return Go, true
		case "pip", "pipenv", "poetry", "python-pkg", "conda-pkg", "uv":
			return Python, true
		}
		return "", false
	}
	base := strings.ToLower(path.Base(f.FilePath))
	switch {
	case base == "go.mod" || base == "go.sum":
		return Go, true
	case strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt"),
		base == "pipfile", base == "pipfile.lock", base == "poetry.lock", base == "uv.lock",
		base == "pyproject.toml", base == "setup.py", base == "setup.cfg":
		return Python, true
	case base == "package.json", base == "package-lock.json", base == "yarn.lock",
		base == "pnpm-lock.yaml", base == "pom.xml", base == "gemfile.lock",
		base == "cargo.lock", base == "composer.lock":
		return "", false
	}
	return "", true
}

// Options configures the enricher.
type Options struct {
	// Root is the source tree to analyze.
	Root        string
	Concurrency int
	Logger      *slog.Logger
}

// Enricher sets enrich.Enrichment.Reachable on dependency findings.
type Enricher struct {
	root   string
	logger *slog.Logger
	memo   *memo
}

// New creates an enricher for one source tree.
func New(opts Options) *Enricher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	concurrency := opts.Concurrency
	return &Enricher{
		root:   opts.Root,
		logger: opts.Logger,
		memo: newMemo(func(ctx context.Context, root string) (*Graph, error) {
			return Build(ctx, root, concurrency)
		}),
	}
}

func (e *Enricher) Name() string { return Name }

// Graph returns the index of the enricher's tree, building it on first use.
func (e *Enricher) Graph(ctx context.Context) (*Graph, error) {
	return e.memo.get(ctx, e.root)
}

// Prepare builds the graph up front when the pass has dependency findings.
func (e *Enricher) Prepare(ctx context.Context, fs []finding.Finding) error {
	if !slices.ContainsFunc(fs, func(f finding.Finding) bool { return f.Kind == finding.KindDependency }) {
		return nil
	}
	g, err := e.Graph(ctx)
	if err != nil {
		e.logger.Warn("reachability graph unavailable",
			slog.String("root", e.root),
			slog.String("error", err.Error()))
		return err
	}
	e.logger.Debug("reachability graph built",
		slog.String("root", e.root),
		slog.Int("files", len(g.Files)),
		slog.Any("languages", g.Languages()))
	return nil
}

// Enrich decides reachability for dependency findings. Every other kind
// is not_applicable, containers included: image layers have no source.
func (e *Enricher) Enrich(ctx context.Context, f finding.Finding) (enrich.Enrichment, error) {
	if f.Kind != finding.KindDependency {
		return enrich.Enrichment{Reachable: enrich.NotApplicable}, nil
	}
	lang, ok := LanguageOf(f)
	if !ok {
		return enrich.Enrichment{Reachable: enrich.NotApplicable}, nil
	}
	if f.PackageName == "" {
		return enrich.Enrichment{Reachable: enrich.ReachUnknown}, nil
	}
	g, err := e.Graph(ctx)
	if err != nil {
		return enrich.Enrichment{}, enrich.Unavailable(Name, err)
	}
	v := Analyze(g, lang, f.PackageName)
	if v.Err != nil {
		e.logger.Debug("reachability undecided",
			slog.String("finding", f.ID),
			slog.String("package", f.PackageName),
			slog.String("error", v.Err.Error()))
	}
	return enrich.Enrichment{Reachable: v.Reachable, ReachabilityEvidence: v.Evidence}, nil
}
