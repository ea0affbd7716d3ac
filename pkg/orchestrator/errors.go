package orchestrator

import "errors"

var (
	// ErrAllAdaptersFailed indicates no scanner finished with status ok.
	// It is fatal for the run.
	ErrAllAdaptersFailed = errors.New("orchestrator: all adapters failed")

	// ErrNoAdapters indicates an empty adapter set after filtering. It is a
	// configuration error.
	ErrNoAdapters = errors.New("orchestrator: no adapters to run")
)
