package reachability

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	pyImport     = regexp.MustCompile(`^import\s+(.+)$`)
	pyFromImport = regexp.MustCompile(`^from\s+([\w.]+)\s+import\s+(.+)$`)
	pyCall       = regexp.MustCompile(`([A-Za-z_][\w]*(?:\s*\.\s*[A-Za-z_]\w*)*)\s*\(`)
	pyDefinition = regexp.MustCompile(`^(?:async\s+)?(?:def|class)\s`)
)

var errNotUTF8 = errors.New("source is not valid UTF-8")

// logicalLines joins parenthesized and backslash-continued lines so a
// multi-line from-import reads as one statement. Each logical line keeps
// the number of its first physical line.
func logicalLines(src []byte) (lines []string, starts []int) {
	var (
		buf   strings.Builder
		start int
		depth int
	)
	for i, raw := range strings.Split(string(src), "\n") {
		line := stripComment(raw)
		if buf.Len() == 0 {
			start = i + 1
		} else {
			buf.WriteByte(' ')
		}
		trimmed := strings.TrimRight(line, " \t\r")
		cont := strings.HasSuffix(trimmed, "\\")
		buf.WriteString(strings.TrimSuffix(trimmed, "\\"))
		depth += strings.Count(line, "(") - strings.Count(line, ")")
		if depth > 0 && strings.HasPrefix(strings.TrimSpace(buf.String()), "from ") || cont {
			continue
		}
		depth = 0
		lines = append(lines, buf.String())
		starts = append(starts, start)
		buf.Reset()
	}
	if buf.Len() > 0 {
		lines = append(lines, buf.String())
		starts = append(starts, start)
	}
	return lines, starts
}

// stripComment drops a trailing # comment outside of string literals.
func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			return line[:i]
		}
	}
	return line
}

// parsePython extracts imports and dotted call names line by line. It is
// a lexical scan, not a parser: string contents can yield spurious calls,
// which only ever err towards reachable.
func parsePython(f *File, src []byte) {
	if !utf8.Valid(src) {
		f.Err = errNotUTF8
		src = bytes.ToValidUTF8(src, []byte("�"))
	}
	lines, starts := logicalLines(src)
	for i, line := range lines {
		n := starts[i]
		stmt := strings.TrimSpace(line)

		if m := pyFromImport.FindStringSubmatch(stmt); m != nil {
			module := m[1]
			if strings.HasPrefix(module, ".") {
				continue // relative import, never a dependency
			}
			names := strings.Trim(strings.TrimSpace(m[2]), "()")
			for _, part := range splitNames(names) {
				name, alias := splitAlias(part)
				if name == "*" {
					f.Imports = append(f.Imports, Import{Path: module, Local: "*", Line: n})
					continue
				}
				local := name
				if alias != "" {
					local = alias
				}
				f.Imports = append(f.Imports, Import{Path: module + "." + name, Local: local, Line: n})
			}
			continue
		}
		if m := pyImport.FindStringSubmatch(stmt); m != nil {
			for _, part := range splitNames(m[1]) {
				name, alias := splitAlias(part)
				local := name
				if alias != "" {
					local = alias
				}
				f.Imports = append(f.Imports, Import{Path: name, Local: local, Line: n})
			}
			continue
		}
		if pyDefinition.MatchString(stmt) {
			continue
		}
		for _, m := range pyCall.FindAllStringSubmatch(stmt, -1) {
			name := strings.Join(strings.Fields(m[1]), "")
			f.Calls = append(f.Calls, Call{Name: name, Line: n})
		}
	}
}

func splitNames(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitAlias(s string) (name, alias string) {
	fields := strings.Fields(s)
	if len(fields) == 3 && fields[1] == "as" {
		return fields[0], fields[2]
	}
	if len(fields) > 0 {
		return fields[0], ""
	}
	return "", ""
}
