// Package poc renders proof-of-concept artifacts for findings.
//
// Generation is a small state machine:
//
//	selected -> template_lookup -> [llm_customize] -> safety_check -> accepted | rejected
//
// A finding with no template ends in unsupported, which is not an error.
// LLM customization is best effort and falls back to the plain template.
// The safety checker always runs last.
package poc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/llm"
	"github.com/scanforge/scanforge/pkg/metrics"
	"github.com/scanforge/scanforge/pkg/safety"
	"github.com/scanforge/scanforge/pkg/tracing"
	"github.com/scanforge/scanforge/templates"
)

// State is a step of generation. Accepted, Rejected and Unsupported are
// terminal.
type State string

const (
	StateSelected       State = "selected"
	StateTemplateLookup State = "template_lookup"
	StateLLMCustomize   State = "llm_customize"
	StateSafetyCheck    State = "safety_check"
	StateAccepted       State = "accepted"
	StateRejected       State = "rejected"
	StateUnsupported    State = "unsupported"
)

// ErrRender is returned when a template fails to execute.
var ErrRender = errors.New("poc: render failed")

// Params are the values substituted into a template.
type Params struct {
	TargetURL string `json:"target_url"`
	ParamName string `json:"param_name"`
	Payload   string `json:"payload"`
	Method    string `json:"method"`
	Notes     string `json:"notes,omitempty"`
}

// Artifact is the outcome of one generation.
type Artifact struct {
	FindingID     string                `json:"finding_id"`
	State         State                 `json:"state"`
	Path          []State               `json:"path"`
	Template      string                `json:"template,omitempty"`
	FileName      string                `json:"file_name,omitempty"`
	Params        Params                `json:"params"`
	Customized    bool                  `json:"customized"`
	Content       string                `json:"content,omitempty"`
	Substitutions []safety.Substitution `json:"substitutions,omitempty"`
	Warnings      []safety.Hit          `json:"warnings,omitempty"`
	Reason        string                `json:"reason,omitempty"`
}

func (a *Artifact) enter(s State) {
	a.State = s
	a.Path = append(a.Path, s)
}

// Options configures a Generator.
type Options struct {
	// Completer customizes parameters. Nil renders plain templates.
	Completer llm.Completer

	// Checker screens every artifact. Nil uses the built-in rules.
	Checker *safety.Checker

	// Defaults fill any parameter the LLM does not supply. Empty fields
	// take the package defaults; an empty Payload takes the template's.
	Defaults Params

	// Templates overrides the embedded template tree (poc/*.tmpl).
	Templates fs.FS

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Generator renders artifacts. It is safe for concurrent use.
type Generator struct {
	completer llm.Completer
	checker   *safety.Checker
	defaults  Params
	tmpl      *template.Template
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

// New parses every template up front so a broken one fails here rather
// than on first use.
func New(opts Options) (*Generator, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Checker == nil {
		c, err := safety.NewChecker(safety.Options{Logger: opts.Logger})
		if err != nil {
			return nil, err
		}
		opts.Checker = c
	}
	if opts.Templates == nil {
		opts.Templates = templates.FS
	}
	d := &opts.Defaults
	if d.TargetURL == "" {
		d.TargetURL = defaults.PoCTargetURL
	}
	if d.ParamName == "" {
		d.ParamName = defaults.PoCParamName
	}
	if d.Method == "" {
		d.Method = defaults.PoCMethod
	}

	tmpl, err := template.New("poc").Funcs(funcMap()).ParseFS(opts.Templates, "poc/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("poc: parse templates: %w", err)
	}
	return &Generator{
		completer: opts.Completer,
		checker:   opts.Checker,
		defaults:  opts.Defaults,
		tmpl:      tmpl,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

func funcMap() template.FuncMap {
	fm := sprig.TxtFuncMap()
	fm["pyquote"] = strconv.Quote
	fm["shquote"] = shellQuote
	return fm
}

// shellQuote single-quotes s for POSIX sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Supported reports whether f has a template.
func (g *Generator) Supported(f finding.Finding) bool {
	_, ok := Lookup(f)
	return ok
}

// Generate runs the state machine for f. An unsupported finding returns
// an Artifact in StateUnsupported and a nil error. A rejected artifact is
// returned with its *safety.Violation and no content.
func (g *Generator) Generate(ctx context.Context, f finding.Finding) (art Artifact, err error) {
	ctx, span := tracing.Start(ctx, tracing.Tracer("poc"), "poc.generate",
		attribute.String("finding.id", f.ID),
		attribute.String("finding.category", f.Category))
	defer func() {
		span.SetAttributes(attribute.String("poc.state", string(art.State)))
		tracing.End(span, err)
		g.metrics.PoCOutcome(string(art.State))
	}()

	art = Artifact{FindingID: f.ID}
	art.enter(StateSelected)

	art.enter(StateTemplateLookup)
	kind, ok := Lookup(f)
	if !ok {
		art.enter(StateUnsupported)
		art.Reason = fmt.Sprintf("no template for category %q", f.Category)
		g.logger.Info("no PoC template for finding",
			slog.String("finding", f.ID),
			slog.String("category", f.Category))
		return art, nil
	}
	art.Template = kind.Template + ".tmpl"
	art.FileName = kind.Template

	params := g.defaults
	if params.Payload == "" {
		params.Payload = kind.Payload
	}
	if g.completer != nil {
		art.enter(StateLLMCustomize)
		params, art.Customized = g.customize(ctx, f, params)
	}
	art.Params = params

	content, err := g.render(art.Template, f, params)
	if err != nil {
		art.enter(StateRejected)
		art.Reason = err.Error()
		return art, err
	}

	art.enter(StateSafetyCheck)
	res, err := g.checker.Check(content)
	if err != nil {
		art.enter(StateRejected)
		art.Reason = err.Error()
		g.logger.Warn("PoC rejected by safety check",
			slog.String("finding", f.ID),
			slog.String("error", err.Error()))
		return art, err
	}
	art.Content = res.Content
	art.Substitutions = res.Substitutions
	art.Warnings = res.Warnings
	art.enter(StateAccepted)
	return art, nil
}

func (g *Generator) render(name string, f finding.Finding, p Params) (string, error) {
	data := map[string]any{
		"target_url": p.TargetURL,
		"param_name": p.ParamName,
		"payload":    p.Payload,
		"method":     p.Method,
		"finding":    f,
	}
	var buf bytes.Buffer
	if err := g.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRender, name, err)
	}
	return buf.String(), nil
}
