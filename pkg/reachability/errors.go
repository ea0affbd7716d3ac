package reachability

import "fmt"

// AnalysisError reports a file or tree that could not be analyzed.
// Findings that depend on it read as unknown.
type AnalysisError struct {
	Path string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("reachability: %s: %v", e.Path, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
