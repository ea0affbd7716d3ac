package config

import "errors"

// Callers test for these with errors.Is.
var (
	// ErrInvalidConfig covers unreadable YAML, unknown keys and values out
	// of range.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrMissingRequired is a setting that another setting depends on.
	ErrMissingRequired = errors.New("config: missing required field")

	// ErrUnknownPreset names a preset that is not bundled.
	ErrUnknownPreset = errors.New("config: unknown preset")
)
