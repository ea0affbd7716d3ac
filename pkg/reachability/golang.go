package reachability

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// goPackageName guesses the identifier an import path binds when the
// import has no explicit name: the last element, skipping a /vN major
// version suffix and stripping gopkg.in style .vN suffixes and dashes.
func goPackageName(importPath string) string {
	elem := path.Base(importPath)
	if majorVersion.MatchString(elem) {
		elem = path.Base(path.Dir(importPath))
	}
	if i := strings.Index(elem, ".v"); i > 0 {
		elem = elem[:i]
	}
	elem = strings.TrimPrefix(elem, "go-")
	return strings.ReplaceAll(elem, "-", "")
}

func parseGo(f *File, src []byte) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, f.Path, src, parser.SkipObjectResolution)
	if err != nil {
		f.Err = err
		// Imports usually survive a syntax error further down the file.
		file, err = parser.ParseFile(fset, f.Path, src, parser.ImportsOnly)
		if err != nil || file == nil {
			return
		}
	}

	for _, spec := range file.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		local := goPackageName(p)
		if spec.Name != nil {
			local = spec.Name.Name
		}
		f.Imports = append(f.Imports, Import{
			Path:  p,
			Local: local,
			Line:  fset.Position(spec.Pos()).Line,
		})
	}
	if f.Err != nil {
		return
	}

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		if name := selectorName(call.Fun); name != "" {
			f.Calls = append(f.Calls, Call{Name: name, Line: fset.Position(call.Pos()).Line})
		}
		return true
	})
}

// selectorName renders pkg.Func and pkg.Type{}.Method style callees;
// anything not rooted at an identifier is ignored.
func selectorName(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.SelectorExpr:
		if left := selectorName(x.X); left != "" {
			return left + "." + x.Sel.Name
		}
	case *ast.IndexExpr: // generic instantiation: pkg.Fn[T](...)
		return selectorName(x.X)
	case *ast.IndexListExpr:
		return selectorName(x.X)
	}
	return ""
}
