// Package strutil holds rune-safe string helpers for scanner text that
// ends up in prompts, tables and error messages.
package strutil

import "unicode/utf8"

const ellipsis = "..."

// Truncate returns s cut to maxLen runes. If truncated, a "..." suffix
// is appended (included in maxLen). Safe for maxLen <= 0 (returns empty
// string). Never produces invalid UTF-8.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if maxLen <= len(ellipsis) {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-len(ellipsis)]) + ellipsis
}

// Tail keeps the last maxLen runes of s, with a "..." prefix (included
// in maxLen) when anything was dropped. Scanner stderr puts the cause of
// a crash at the end, so that is the part worth keeping.
func Tail(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	n := utf8.RuneCountInString(s)
	if n <= maxLen {
		return s
	}
	r := []rune(s)
	if maxLen <= len(ellipsis) {
		return string(r[n-maxLen:])
	}
	return ellipsis + string(r[n-maxLen+len(ellipsis):])
}
