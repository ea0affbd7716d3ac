package falsepositive

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/regexcache"
)

//go:embed rules.yaml
var builtinRules []byte

// ErrInvalidRules is returned for a rule file that does not load.
var ErrInvalidRules = errors.New("falsepositive: invalid rules")

// Field names a finding attribute a pattern is matched against.
type Field string

const (
	FieldFilePath    Field = "file_path"
	FieldSnippet     Field = "snippet"
	FieldRuleID      Field = "rule_id"
	FieldTitle       Field = "title"
	FieldMessage     Field = "message"
	FieldCategory    Field = "category"
	FieldScanner     Field = "scanner"
	FieldPackageName Field = "package_name"
)

// Value extracts the field from f.
func (fl Field) Value(f finding.Finding) (string, bool) {
	switch fl {
	case FieldFilePath:
		return f.FilePath, true
	case FieldSnippet:
		return f.Snippet, true
	case FieldRuleID:
		return f.RuleID, true
	case FieldTitle:
		return f.Title, true
	case FieldMessage:
		return f.Message, true
	case FieldCategory:
		return f.Category, true
	case FieldScanner:
		return f.Scanner, true
	case FieldPackageName:
		return f.PackageName, true
	}
	return "", false
}

// Matcher is one (field, pattern) pair.
type Matcher struct {
	Field   Field  `yaml:"field"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// Rule flags a finding with Reason when any matcher matches.
type Rule struct {
	ID     string         `yaml:"id"`
	Reason string         `yaml:"reason"`
	Kinds  []finding.Kind `yaml:"kinds,omitempty"` // empty means every kind
	Match  []Matcher      `yaml:"match"`

	// Disabled drops a rule; a user file uses it to switch off a built-in.
	Disabled bool `yaml:"disabled,omitempty"`
}

// Matches returns the matcher that fires for f, or nil.
func (r *Rule) Matches(f finding.Finding) *Matcher {
	if r.Disabled {
		return nil
	}
	if len(r.Kinds) > 0 && !slices.Contains(r.Kinds, f.Kind) {
		return nil
	}
	for i := range r.Match {
		m := &r.Match[i]
		v, _ := m.Field.Value(f)
		if v != "" && m.re.MatchString(v) {
			return m
		}
	}
	return nil
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules decodes and compiles a rule file. Unknown keys, unknown
// fields and bad patterns are errors.
func ParseRules(data []byte) ([]Rule, error) {
	var rf ruleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	var errs []error
	for i := range rf.Rules {
		r := &rf.Rules[i]
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("rule %d: missing id", i))
		}
		if r.Reason == "" && !r.Disabled {
			errs = append(errs, fmt.Errorf("rule %q: missing reason", r.ID))
		}
		for j := range r.Match {
			m := &r.Match[j]
			if _, ok := m.Field.Value(finding.Finding{}); !ok {
				errs = append(errs, fmt.Errorf("rule %q: unknown field %q", r.ID, m.Field))
				continue
			}
			re, err := regexcache.Get(m.Pattern)
			if err != nil {
				errs = append(errs, fmt.Errorf("rule %q: pattern %q: %w", r.ID, m.Pattern, err))
				continue
			}
			m.re = re
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRules, errors.Join(errs...))
	}
	return rf.Rules, nil
}

// DefaultRules returns the embedded rule table.
func DefaultRules() []Rule {
	rules, err := ParseRules(builtinRules)
	if err != nil {
		panic(err) // embedded file is fixed at build time
	}
	return rules
}

// LoadRules reads a user rule file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("falsepositive: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// Extend overlays user rules on base. A user rule with a built-in's id
// replaces it in place; new ids are appended in file order.
func Extend(base, user []Rule) []Rule {
	out := slices.Clone(base)
	for _, u := range user {
		if i := slices.IndexFunc(out, func(r Rule) bool { return r.ID == u.ID }); i >= 0 {
			out[i] = u
			continue
		}
		out = append(out, u)
	}
	return out
}
