// Package templates embeds the bundled PoC templates so generation works
// regardless of how the binary was installed.
//
// Usage:
//
//	data, _ := templates.FS.ReadFile("poc/sqli.py.tmpl")
package templates

import "embed"

// FS holds the PoC templates under poc/. Each file is a text/template
// rendered with sprig functions; the output file name is the template
// name without ".tmpl".
//
//go:embed poc/*.tmpl
var FS embed.FS
