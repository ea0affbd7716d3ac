package finding

import "errors"

// Sentinel errors for finding validation.
// Callers should use errors.Is() to check for these.
var (
	// ErrMissingScanner indicates a finding without an origin adapter name.
	ErrMissingScanner = errors.New("finding: missing scanner")

	// ErrInvalidSeverity indicates a severity outside the known ordinal set.
	ErrInvalidSeverity = errors.New("finding: invalid severity")

	// ErrInvalidLocation indicates a negative or inverted line range.
	ErrInvalidLocation = errors.New("finding: invalid location")
)
