package cli

import (
	"flag"
	"slices"
	"strings"
)

// ListFlag is a comma-separated flag value. Repeating the flag appends;
// blanks and duplicates are dropped.
type ListFlag []string

func (l *ListFlag) String() string { return strings.Join(*l, ",") }

func (l *ListFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" && !slices.Contains(*l, part) {
			*l = append(*l, part)
		}
	}
	return nil
}

// Visited returns the names of the flags that were set on the command
// line, so callers can tell "left at default" from "set to the default".
func Visited(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}
