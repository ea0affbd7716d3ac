package adapter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/jsonutil"
)

// Collector accumulates findings from a scanner report entry by entry, so
// one malformed entry costs that entry only.
type Collector struct {
	scanner  string
	findings []finding.Finding
	total    int
	bad      int
	firstErr error
}

// NewCollector starts an empty collection for scanner.
func NewCollector(scanner string) *Collector {
	return &Collector{scanner: scanner}
}

// Add records parsed findings for one entry.
func (c *Collector) Add(fs ...finding.Finding) {
	c.total++
	c.findings = append(c.findings, fs...)
}

// Fail records one entry that could not be used.
func (c *Collector) Fail(err error) {
	c.total++
	c.bad++
	if c.firstErr == nil {
		c.firstErr = err
	}
}

// Result returns the findings, wrapped in a *PartialOutputError if any
// entry failed.
func (c *Collector) Result() ([]finding.Finding, error) {
	if c.bad == 0 {
		return c.findings, nil
	}
	return c.findings, &PartialOutputError{
		Scanner:    c.scanner,
		Findings:   c.findings,
		Diagnostic: fmt.Sprintf("%d of %d entries unparseable", c.bad, c.total),
		Err:        c.firstErr,
	}
}

// DecodeEach decodes every raw entry as T and converts it with conv.
func DecodeEach[T any](c *Collector, raws []jsonutil.RawMessage, conv func(T) []finding.Finding) {
	for i, raw := range raws {
		var v T
		if err := jsonutil.UnmarshalLenient(raw, &v); err != nil {
			c.Fail(fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		c.Add(conv(v)...)
	}
}

// Undecodable wraps a report that failed to decode at the top level.
func Undecodable(scanner string, err error) error {
	return &PartialOutputError{Scanner: scanner, Diagnostic: "undecodable report", Err: err}
}

// CleanPath makes a scanner-reported path relative to root with forward
// slashes, so all scanners agree on file identity.
func CleanPath(root, p string) string {
	if p == "" {
		return ""
	}
	if root != "" && filepath.IsAbs(p) {
		if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
	}
	p = filepath.ToSlash(filepath.Clean(p))
	return strings.TrimPrefix(p, "./")
}

// Snippet trims s to the configured maximum length.
func Snippet(s string, max int) string {
	s = strings.TrimRight(s, "\n")
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}
