package dedup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scanforge/scanforge/pkg/defaults"
)

// ErrUnknownStrategy indicates a strategy name outside strict, fuzzy and
// location. It is a configuration error.
var ErrUnknownStrategy = errors.New("dedup: unknown strategy")

// Strategy selects how aggressively findings are merged. The strategies
// form a coarsening chain: every strict match is a fuzzy match and every
// fuzzy match is a location match.
type Strategy string

const (
	// Strict merges findings at the same file, line and category with the
	// same normalized snippet.
	Strict Strategy = "strict"

	// Fuzzy merges findings of one category in one file within a line
	// window whose snippets overlap enough.
	Fuzzy Strategy = "fuzzy"

	// Location merges anything at the same file and line, plus every
	// fuzzy match.
	Location Strategy = "location"
)

// Strategies lists the valid strategies from finest to coarsest.
var Strategies = []Strategy{Strict, Fuzzy, Location}

// ParseStrategy resolves a strategy name, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case Strict, Fuzzy, Location:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q (want strict, fuzzy or location)", ErrUnknownStrategy, s)
}

// Config tunes deduplication.
type Config struct {
	Strategy Strategy `yaml:"strategy"`

	// LineWindow is the fuzzy line tolerance.
	LineWindow int `yaml:"line_window"`

	// Similarity is the minimum snippet token overlap (0..1) for fuzzy
	// matches on different lines.
	Similarity float64 `yaml:"similarity"`

	// ScannerPriority breaks severity ties in canonical election. Earlier
	// entries win; unlisted scanners rank after, alphabetically.
	ScannerPriority []string `yaml:"scanner_priority"`
}

// DefaultConfig returns the default fuzzy configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:        defaults.DedupStrategy,
		LineWindow:      defaults.DedupLineWindow,
		Similarity:      defaults.DedupSimilarity,
		ScannerPriority: append([]string(nil), defaults.DedupScannerPriority...),
	}
}

// Validate checks the strategy and numeric bounds.
func (c Config) Validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if c.LineWindow < 0 {
		return fmt.Errorf("dedup: line window must be >= 0, got %d", c.LineWindow)
	}
	if c.Similarity < 0 || c.Similarity > 1 {
		return fmt.Errorf("dedup: similarity must be within 0..1, got %g", c.Similarity)
	}
	return nil
}
