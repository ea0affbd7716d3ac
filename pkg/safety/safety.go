// Package safety screens generated PoC artifacts. Known destructive
// constructs are rewritten into harmless equivalents; anything else on
// the denylist rejects the artifact. The checker runs last, so nothing
// it returns contains a denylisted pattern.
package safety

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scanforge/scanforge/pkg/regexcache"
)

//go:embed rules.yaml
var builtinRules []byte

// ErrInvalidRules is returned for a rule file that does not load.
var ErrInvalidRules = errors.New("safety: invalid rules")

// Rule is one denylist or warning pattern.
type Rule struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Pattern     string `yaml:"pattern"`
	Substitute  string `yaml:"substitute,omitempty"`

	// Rewrite is the span replaced by Substitute when it must reach past
	// Pattern, e.g. to consume a quoted table name. It defaults to Pattern.
	Rewrite string `yaml:"rewrite,omitempty"`

	re *regexp.Regexp
	rw *regexp.Regexp
}

func (r Rule) rewriter() *regexp.Regexp {
	if r.rw != nil {
		return r.rw
	}
	return r.re
}

// Rules is the deny and warn tables.
type Rules struct {
	Deny []Rule `yaml:"deny"`
	Warn []Rule `yaml:"warn"`
}

// Hit is one pattern match in an artifact.
type Hit struct {
	Rule  string `json:"rule"`
	Match string `json:"match"`
	Line  int    `json:"line"`
}

// Substitution records a rewrite applied to the artifact.
type Substitution struct {
	Rule        string `json:"rule"`
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
	Line        int    `json:"line"`
}

// Violation rejects an artifact.
type Violation struct {
	Hits []Hit
}

func (v *Violation) Error() string {
	ids := make([]string, 0, len(v.Hits))
	for _, h := range v.Hits {
		ids = append(ids, fmt.Sprintf("%s at line %d", h.Rule, h.Line))
	}
	return "safety: denylisted content: " + strings.Join(ids, ", ")
}

// Result is a checked artifact.
type Result struct {
	Content       string         `json:"content"`
	Substitutions []Substitution `json:"substitutions,omitempty"`
	Warnings      []Hit          `json:"warnings,omitempty"`
}

// ParseRules decodes and compiles a rule file.
func ParseRules(data []byte) (Rules, error) {
	var rs Rules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil {
		return Rules{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	var errs []error
	compile := func(table string, rules []Rule) {
		for i := range rules {
			r := &rules[i]
			if r.ID == "" {
				errs = append(errs, fmt.Errorf("%s rule %d: missing id", table, i))
			}
			re, err := regexcache.Get(r.Pattern)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s rule %q: %w", table, r.ID, err))
				continue
			}
			r.re = re
			if r.Rewrite == "" {
				continue
			}
			if r.Substitute == "" {
				errs = append(errs, fmt.Errorf("%s rule %q: rewrite needs a substitute", table, r.ID))
			}
			rw, err := regexcache.Get(r.Rewrite)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s rule %q: rewrite: %w", table, r.ID, err))
				continue
			}
			r.rw = rw
		}
	}
	compile("deny", rs.Deny)
	compile("warn", rs.Warn)
	for _, r := range rs.Warn {
		if r.Substitute != "" {
			errs = append(errs, fmt.Errorf("warn rule %q: substitute is only valid on deny rules", r.ID))
		}
	}
	if len(errs) > 0 {
		return Rules{}, fmt.Errorf("%w: %w", ErrInvalidRules, errors.Join(errs...))
	}
	return rs, nil
}

// DefaultRules returns the embedded tables.
func DefaultRules() Rules {
	rs, err := ParseRules(builtinRules)
	if err != nil {
		panic(err) // embedded file is fixed at build time
	}
	return rs
}

// Extend appends user rules to both tables. User rules can add to the
// denylist but never remove from it.
func (rs Rules) Extend(user Rules) Rules {
	return Rules{
		Deny: append(slices.Clone(rs.Deny), user.Deny...),
		Warn: append(slices.Clone(rs.Warn), user.Warn...),
	}
}

// Options configures a Checker.
type Options struct {
	// UserFile adds rules from a YAML file in the same format.
	UserFile string
	Logger   *slog.Logger
}

// Checker applies the rules. It holds no mutable state.
type Checker struct {
	rules  Rules
	logger *slog.Logger
}

// NewChecker builds a checker from the embedded rules plus an optional
// user file.
func NewChecker(opts Options) (*Checker, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	rules := DefaultRules()
	if opts.UserFile != "" {
		data, err := os.ReadFile(opts.UserFile)
		if err != nil {
			return nil, fmt.Errorf("safety: %w", err)
		}
		user, err := ParseRules(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", opts.UserFile, err)
		}
		rules = rules.Extend(user)
	}
	return &Checker{rules: rules, logger: opts.Logger}, nil
}

// Check substitutes known destructive constructs, then rejects content
// that still hits the denylist with a *Violation. Warnings never reject.
func (c *Checker) Check(content string) (Result, error) {
	res := Result{Content: content}

	for _, r := range c.rules.Deny {
		if r.Substitute == "" {
			continue
		}
		res.Content = substitute(r, res.Content, &res.Substitutions)
	}
	for _, s := range res.Substitutions {
		c.logger.Warn("unsafe content substituted",
			slog.String("rule", s.Rule),
			slog.String("original", s.Original),
			slog.String("replacement", s.Replacement))
	}

	if hits := scan(c.rules.Deny, res.Content); len(hits) > 0 {
		return Result{}, &Violation{Hits: hits}
	}
	res.Warnings = scan(c.rules.Warn, res.Content)
	return res, nil
}

// scan returns every match of every rule, in rule order.
func scan(rules []Rule, content string) []Hit {
	var hits []Hit
	for _, r := range rules {
		for _, loc := range r.re.FindAllStringIndex(content, -1) {
			hits = append(hits, Hit{
				Rule:  r.ID,
				Match: content[loc[0]:loc[1]],
				Line:  1 + strings.Count(content[:loc[0]], "\n"),
			})
		}
	}
	return hits
}

// substitute replaces every rewrite match of r in content, recording
// each with its line in content as it stood before this rule ran.
func substitute(r Rule, content string, subs *[]Substitution) string {
	locs := r.rewriter().FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return content
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(content[last:loc[0]])
		b.WriteString(r.Substitute)
		*subs = append(*subs, Substitution{
			Rule:        r.ID,
			Original:    content[loc[0]:loc[1]],
			Replacement: r.Substitute,
			Line:        1 + strings.Count(content[:loc[0]], "\n"),
		})
		last = loc[1]
	}
	b.WriteString(content[last:])
	return b.String()
}
