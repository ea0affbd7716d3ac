package adapter

import (
	"errors"
	"fmt"

	"github.com/scanforge/scanforge/pkg/finding"
)

// Status is the outcome of one adapter execution.
type Status string

const (
	StatusOK           Status = "ok"
	StatusTimeout      Status = "timeout"
	StatusCrashed      Status = "crashed"
	StatusNotInstalled Status = "not_installed"
)

// Sentinel errors for adapter registration and selection.
var (
	// ErrUnknownScanner indicates a scanner name with no registered adapter.
	ErrUnknownScanner = errors.New("adapter: unknown scanner")

	// ErrDuplicateScanner indicates two adapters registered under one name.
	ErrDuplicateScanner = errors.New("adapter: duplicate scanner")
)

// ExecutionError reports that a scanner did not complete normally. It is
// tolerated by the orchestrator: recorded, never run-aborting on its own.
type ExecutionError struct {
	Scanner  string
	Status   Status
	ExitCode int
	Stderr   string // tail, for diagnostics
	Err      error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Scanner, e.Status)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PartialOutputError reports output that could only be partly parsed.
// Findings holds every entry that did parse.
type PartialOutputError struct {
	Scanner    string
	Findings   []finding.Finding
	Diagnostic string
	Err        error
}

func (e *PartialOutputError) Error() string {
	msg := fmt.Sprintf("%s: partial output (%d findings kept)", e.Scanner, len(e.Findings))
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	return msg
}

func (e *PartialOutputError) Unwrap() error { return e.Err }

// StatusOf classifies err the way the orchestrator reports it.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Status
	}
	var pe *PartialOutputError
	if errors.As(err, &pe) {
		return StatusOK
	}
	return StatusCrashed
}
