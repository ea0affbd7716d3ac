package test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// canonicalTypes names the package that owns each shared domain type.
// Redeclaring one elsewhere splits the vocabulary the report is built on.
var canonicalTypes = map[string]string{
	"Severity": "finding",
	"Tier":     "priority",
	"Strategy": "dedup",
}

// TestNoLocalDomainTypes walks pkg/ and ensures the shared domain types
// are declared only in their owning package. Type aliases are allowed.
func TestNoLocalDomainTypes(t *testing.T) {
	t.Parallel()

	repoRoot := getRepoRoot(t)
	var violations []string

	walkGoSource(t, filepath.Join(repoRoot, "pkg"), func(path string) {
		fset := token.NewFileSet()
		f, err := parser.ParseFile(fset, path, nil, 0)
		if err != nil {
			return
		}
		rel, _ := filepath.Rel(repoRoot, path)
		for _, decl := range f.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || ts.Assign.IsValid() {
					continue
				}
				owner, shared := canonicalTypes[ts.Name.Name]
				if shared && f.Name.Name != owner {
					violations = append(violations, rel+": type "+ts.Name.Name+" belongs in pkg/"+owner)
				}
			}
		}
	})

	for _, v := range violations {
		t.Error(v)
	}
}

// TestNoLiteralExitCodes keeps exit statuses in pkg/defaults so CI
// scripts can rely on them.
func TestNoLiteralExitCodes(t *testing.T) {
	t.Parallel()

	repoRoot := getRepoRoot(t)
	literal := regexp.MustCompile(`os\.Exit\(\s*\d+\s*\)`)

	for _, sub := range []string{"cmd", "pkg"} {
		walkGoSource(t, filepath.Join(repoRoot, sub), func(path string) {
			content, err := os.ReadFile(path)
			if err != nil {
				t.Errorf("read %s: %v", path, err)
				return
			}
			for i, line := range strings.Split(string(content), "\n") {
				if literal.MatchString(line) {
					rel, _ := filepath.Rel(repoRoot, path)
					t.Errorf("%s:%d: use a defaults.Exit* constant: %s", rel, i+1, strings.TrimSpace(line))
				}
			}
		})
	}
}

// TestNoStrayPrints keeps library packages quiet: output goes through
// slog or an io.Writer the caller passes in.
func TestNoStrayPrints(t *testing.T) {
	t.Parallel()

	repoRoot := getRepoRoot(t)
	printCall := regexp.MustCompile(`\bfmt\.Print(f|ln)?\(`)

	walkGoSource(t, filepath.Join(repoRoot, "pkg"), func(path string) {
		content, err := os.ReadFile(path)
		if err != nil {
			return
		}
		for i, line := range strings.Split(string(content), "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "//") {
				continue
			}
			if printCall.MatchString(line) {
				rel, _ := filepath.Rel(repoRoot, path)
				t.Errorf("%s:%d: library code prints to stdout", rel, i+1)
			}
		}
	})
}

// walkGoSource calls fn for every non-test .go file under dir.
func walkGoSource(t *testing.T, dir string, fn func(path string)) {
	t.Helper()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "testdata" {
				return filepath.SkipDir
			}
			return nil
		}
		if isGoSource(path) {
			fn(path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
}

// isGoSource returns true for .go files that are not test files.
func isGoSource(path string) bool {
	return filepath.Ext(path) == ".go" && !strings.HasSuffix(path, "_test.go")
}
