package reachability

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/scanforge/scanforge/pkg/defaults"
)

// Language is a source language the analyzer understands.
type Language string

const (
	Go     Language = "go"
	Python Language = "python"
)

// maxFileSize skips generated or vendored blobs.
const maxFileSize = 4 << 20

var skipDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true,
	"vendor": true, "node_modules": true,
	"__pycache__": true, ".venv": true, "venv": true, ".tox": true,
}

// Import is one import statement. Local is the name the file uses to
// refer to it ("." for Go dot imports, "_" for blank ones).
type Import struct {
	Path  string
	Local string
	Line  int
}

// Call is one call expression by its dotted name, e.g. "yaml.load".
type Call struct {
	Name string
	Line int
}

// File is the analysis of one source file. Err is set when the file did
// not parse cleanly; Imports then holds whatever could be recovered.
type File struct {
	Path     string // relative to the graph root, slash-separated
	Language Language
	Imports  []Import
	Calls    []Call
	Err      error
}

// Graph is the import and call index of a source tree.
type Graph struct {
	Root  string
	Files []*File // sorted by Path
	langs map[Language]bool
}

// Has reports whether the tree contains sources in lang.
func (g *Graph) Has(lang Language) bool { return g.langs[lang] }

// Languages returns the languages present, sorted.
func (g *Graph) Languages() []Language {
	out := make([]Language, 0, len(g.langs))
	for l := range g.langs {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

func languageOf(path string) (Language, bool) {
	switch {
	case strings.HasSuffix(path, "_test.go"):
		return "", false
	case strings.HasSuffix(path, ".go"):
		return Go, true
	case strings.HasSuffix(path, ".py"):
		return Python, true
	}
	return "", false
}

// Build walks root and parses every Go and Python source on up to
// concurrency goroutines. Per-file problems are kept on the File; only a
// tree that cannot be walked is an error.
func Build(ctx context.Context, root string, concurrency int) (*Graph, error) {
	if concurrency <= 0 {
		concurrency = defaults.ConcurrencyParse
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, &AnalysisError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &AnalysisError{Path: root, Err: errors.New("not a directory")}
	}

	var paths []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := languageOf(p); ok {
			paths = append(paths, p)
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, &AnalysisError{Path: root, Err: err}
	}

	files := make([]*File, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			files[i] = parseFile(root, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &AnalysisError{Path: root, Err: err}
	}

	graph := &Graph{Root: root, Files: files, langs: make(map[Language]bool)}
	for _, f := range files {
		graph.langs[f.Language] = true
	}
	slices.SortFunc(graph.Files, func(a, b *File) int { return strings.Compare(a.Path, b.Path) })
	return graph, nil
}

func parseFile(root, path string) *File {
	lang, _ := languageOf(path)
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	f := &File{Path: filepath.ToSlash(rel), Language: lang}

	info, err := os.Stat(path)
	if err != nil {
		f.Err = err
		return f
	}
	if info.Size() > maxFileSize {
		f.Err = errors.New("file too large")
		return f
	}
	src, err := os.ReadFile(path)
	if err != nil {
		f.Err = err
		return f
	}
	switch lang {
	case Go:
		parseGo(f, src)
	case Python:
		parsePython(f, src)
	}
	return f
}

// memo builds each root's graph once; concurrent callers share the build
// and later callers get the stored result, failure included.
type memo struct {
	build func(ctx context.Context, root string) (*Graph, error)
	group singleflight.Group

	mu     sync.Mutex
	graphs map[string]*Graph
	errs   map[string]error
}

func newMemo(build func(ctx context.Context, root string) (*Graph, error)) *memo {
	return &memo{
		build:  build,
		graphs: make(map[string]*Graph),
		errs:   make(map[string]error),
	}
}

func (m *memo) get(ctx context.Context, root string) (*Graph, error) {
	m.mu.Lock()
	g, ok := m.graphs[root]
	err := m.errs[root]
	m.mu.Unlock()
	if ok || err != nil {
		return g, err
	}

	v, err, _ := m.group.Do(root, func() (any, error) {
		m.mu.Lock()
		g, ok := m.graphs[root]
		err := m.errs[root]
		m.mu.Unlock()
		if ok || err != nil {
			return g, err
		}

		g, err = m.build(ctx, root)
		// A cancelled build is not remembered; the next pass retries.
		if ctx.Err() == nil {
			m.mu.Lock()
			if err != nil {
				m.errs[root] = err
			} else {
				m.graphs[root] = g
			}
			m.mu.Unlock()
		}
		return g, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Graph), nil
}
