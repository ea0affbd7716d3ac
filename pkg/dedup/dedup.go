// Package dedup merges findings that describe the same underlying issue.
//
// Findings are hashed once into buckets by file and line band, compared
// only within a bucket and its successor, and merged with union-find. One
// canonical finding is elected per group; the others are kept as
// duplicates, never dropped. The result does not depend on input order.
package dedup

import (
	"cmp"
	"slices"

	"github.com/spaolacci/murmur3"

	"github.com/scanforge/scanforge/pkg/finding"
)

// Duplicate is a non-canonical group member.
type Duplicate struct {
	finding.Finding `json:",inline"`
	DuplicateOf     string `json:"duplicate_of"`
}

// Group is one deduplicated issue.
type Group struct {
	Canonical  finding.Finding `json:"finding"`
	Duplicates []Duplicate     `json:"duplicates"`
	Scanners   []string        `json:"scanners"`
}

// Size is the number of findings merged into g.
func (g Group) Size() int { return 1 + len(g.Duplicates) }

// Canonicals returns the canonical finding of every group, in order.
func Canonicals(groups []Group) []finding.Finding {
	out := make([]finding.Finding, len(groups))
	for i, g := range groups {
		out[i] = g.Canonical
	}
	return out
}

// item is a finding with its precomputed comparison data.
type item struct {
	f       finding.Finding
	loc     string
	snippet string
	tokens  map[string]struct{}
}

type bucketKey struct {
	file uint64
	band int
}

// Deduplicate groups fs under cfg. The input is not modified.
func Deduplicate(fs []finding.Finding, cfg Config) ([]Group, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Validate accepts any case; matching needs the canonical name.
	cfg.Strategy, _ = ParseStrategy(string(cfg.Strategy))
	if len(fs) == 0 {
		return []Group{}, nil
	}

	items := make([]item, len(fs))
	for i, f := range fs {
		f = f.Clone()
		snip := normalizeSnippet(f.Snippet)
		items[i] = item{f: f, loc: location(f), snippet: snip, tokens: tokenSet(snip)}
	}
	// A total order on the input makes election and output independent of
	// the caller's order.
	slices.SortFunc(items, func(a, b item) int { return compareFindings(a.f, b.f) })

	band := cfg.LineWindow + 1
	buckets := make(map[bucketKey][]int)
	for i, it := range items {
		k := bucketKey{file: murmur3.Sum64([]byte(it.loc)), band: it.f.LineStart / band}
		buckets[k] = append(buckets[k], i)
	}

	uf := newUnionFind(len(items))
	for k, members := range buckets {
		next := buckets[bucketKey{file: k.file, band: k.band + 1}]
		for x, i := range members {
			for _, j := range members[x+1:] {
				if matches(cfg, &items[i], &items[j]) {
					uf.union(i, j)
				}
			}
			for _, j := range next {
				if matches(cfg, &items[i], &items[j]) {
					uf.union(i, j)
				}
			}
		}
	}

	byRoot := make(map[int][]finding.Finding)
	for i := range items {
		r := uf.find(i)
		byRoot[r] = append(byRoot[r], items[i].f)
	}

	groups := make([]Group, 0, len(byRoot))
	for _, members := range byRoot {
		groups = append(groups, elect(members, cfg.ScannerPriority))
	}
	slices.SortFunc(groups, func(a, b Group) int {
		return cmp.Or(
			cmp.Compare(a.Canonical.FilePath, b.Canonical.FilePath),
			cmp.Compare(a.Canonical.LineStart, b.Canonical.LineStart),
			cmp.Compare(a.Canonical.ID, b.Canonical.ID),
		)
	})
	return groups, nil
}

// location is the file identity used for bucketing and matching.
// Findings without a source line (dependency, container and DAST
// results) are located by package and rule as well, so distinct
// advisories in one lockfile or on one URL stay apart.
func location(f finding.Finding) string {
	if f.LineStart > 0 {
		return f.FilePath
	}
	return f.FilePath + "#" + f.PackageName + "#" + f.RuleID
}

func matches(cfg Config, a, b *item) bool {
	if a.loc != b.loc {
		return false
	}
	switch cfg.Strategy {
	case Strict:
		return strictMatch(a, b)
	case Fuzzy:
		return fuzzyMatch(cfg, a, b)
	case Location:
		return a.f.LineStart == b.f.LineStart || fuzzyMatch(cfg, a, b)
	default:
		return false
	}
}

func strictMatch(a, b *item) bool {
	return a.f.LineStart == b.f.LineStart &&
		a.f.Category == b.f.Category &&
		a.snippet == b.snippet
}

func fuzzyMatch(cfg Config, a, b *item) bool {
	if a.f.Category != b.f.Category {
		return false
	}
	d := a.f.LineStart - b.f.LineStart
	if d < 0 {
		d = -d
	}
	if d > cfg.LineWindow {
		return false
	}
	if d == 0 {
		return true
	}
	return overlap(a.tokens, b.tokens) >= cfg.Similarity
}

// elect picks the canonical member: highest severity, then scanner
// priority, then lowest id.
func elect(members []finding.Finding, priority []string) Group {
	rank := func(scanner string) int {
		if i := slices.Index(priority, scanner); i >= 0 {
			return i
		}
		return len(priority)
	}
	slices.SortFunc(members, func(a, b finding.Finding) int {
		return cmp.Or(
			cmp.Compare(b.Severity.Score(), a.Severity.Score()),
			cmp.Compare(rank(a.Scanner), rank(b.Scanner)),
			cmp.Compare(a.Scanner, b.Scanner),
			compareFindings(a, b),
		)
	})

	canon := members[0]
	g := Group{Canonical: canon, Duplicates: make([]Duplicate, 0, len(members)-1)}
	scanners := []string{canon.Scanner}
	for _, m := range members[1:] {
		g.Duplicates = append(g.Duplicates, Duplicate{Finding: m, DuplicateOf: canon.ID})
		scanners = append(scanners, m.Scanner)
	}
	slices.SortFunc(g.Duplicates, func(a, b Duplicate) int { return compareFindings(a.Finding, b.Finding) })
	slices.Sort(scanners)
	g.Scanners = slices.Compact(scanners)
	return g
}

// compareFindings is a total order over findings, starting with the id.
func compareFindings(a, b finding.Finding) int {
	return cmp.Or(
		cmp.Compare(a.ID, b.ID),
		cmp.Compare(a.Scanner, b.Scanner),
		cmp.Compare(a.FilePath, b.FilePath),
		cmp.Compare(a.LineStart, b.LineStart),
		cmp.Compare(a.LineEnd, b.LineEnd),
		cmp.Compare(a.Category, b.Category),
		cmp.Compare(a.Severity.Score(), b.Severity.Score()),
		cmp.Compare(a.Title, b.Title),
		cmp.Compare(a.Message, b.Message),
		cmp.Compare(a.Snippet, b.Snippet),
		slices.Compare(a.CVEIDs, b.CVEIDs),
	)
}
