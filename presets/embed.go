// Package presets embeds the bundled configuration presets.
//
// Usage:
//
//	data, _ := presets.FS.ReadFile("ci.yaml")
package presets

import "embed"

// FS contains one YAML file per preset. Each is an overlay on the built-in
// defaults in the same format as a user config file.
//
//go:embed *.yaml
var FS embed.FS
