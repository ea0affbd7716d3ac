// Package regexcache provides a thread-safe cache for compiled regular
// expressions. Rule tables (false-positive heuristics, safety denylist,
// reachability import scanners) are compiled once per process through it.
//
// Usage:
//
//	re, err := regexcache.Get(`(?i)\bDROP\s+TABLE\b`)
//	if err != nil {
//	    // handle error
//	}
package regexcache

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// cache holds compiled regular expressions keyed by pattern string.
var cache sync.Map

// Get returns a compiled regexp for the given pattern, compiling and
// caching it on first use.
func Get(pattern string) (*regexp.Regexp, error) {
	if cached, ok := cache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	actual, _ := cache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// MustGet returns a compiled regexp for the given pattern.
// It panics if the pattern is invalid; use it only for constant patterns.
func MustGet(pattern string) *regexp.Regexp {
	re, err := Get(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

// CompileAll compiles patterns in order. Every invalid pattern is reported
// in the joined error, each tagged with its index.
func CompileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	var errs []error
	for i, p := range patterns {
		re, err := Get(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("pattern %d %q: %w", i, p, err))
			continue
		}
		out = append(out, re)
	}
	return out, errors.Join(errs...)
}

// MatchAny returns the first regexp in res that matches s, or nil.
func MatchAny(res []*regexp.Regexp, s string) *regexp.Regexp {
	for _, re := range res {
		if re.MatchString(s) {
			return re
		}
	}
	return nil
}

// Clear removes all cached regular expressions.
// This is primarily useful for testing.
func Clear() {
	cache.Range(func(key, _ any) bool {
		cache.Delete(key)
		return true
	})
}

// Size returns the number of cached regular expressions.
func Size() int {
	count := 0
	cache.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
