package adapter

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"

	"github.com/scanforge/scanforge/internal/procexec"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/strutil"
)

// stderrTail is how much scanner stderr is kept on an ExecutionError.
const stderrTail = 2048

// ParseFunc converts raw scanner stdout into findings. It returns a
// *PartialOutputError when only part of the output was usable.
type ParseFunc func(stdout []byte) ([]finding.Finding, error)

// Invocation is one scanner subprocess plus how to read its result.
type Invocation struct {
	Scanner string
	Cmd     procexec.Cmd

	// SuccessCodes lists exit codes that mean "ran fine". Several
	// scanners exit 1 when they found something. Defaults to {0}.
	SuccessCodes []int

	Parse ParseFunc
}

// Exec runs inv and maps the process outcome onto the adapter contract:
//
//   - ctx done: StatusTimeout, no findings
//   - binary missing: StatusNotInstalled
//   - unexpected exit code: StatusCrashed, stdout still parsed and kept
//   - binary failed to start: StatusCrashed, whatever the success codes
//   - parse trouble: *PartialOutputError with the usable findings
func Exec(ctx context.Context, inv Invocation) ([]finding.Finding, error) {
	res, runErr := procexec.Run(ctx, inv.Cmd)

	switch {
	case runErr == nil:
	case errors.Is(runErr, procexec.ErrNotFound):
		return nil, &ExecutionError{Scanner: inv.Scanner, Status: StatusNotInstalled, ExitCode: res.ExitCode, Err: runErr}
	case ctx.Err() != nil:
		return nil, &ExecutionError{Scanner: inv.Scanner, Status: StatusTimeout, ExitCode: res.ExitCode, Err: ctx.Err()}
	}

	codes := inv.SuccessCodes
	if len(codes) == 0 {
		codes = []int{0}
	}
	// Success codes only apply to a process that actually ran and exited.
	var exitErr *exec.ExitError
	exitOK := runErr == nil || (errors.As(runErr, &exitErr) && slices.Contains(codes, res.ExitCode))

	findings, parseErr := parseStdout(inv, res)
	if res.Truncated {
		parseErr = errors.Join(parseErr, &PartialOutputError{
			Scanner:    inv.Scanner,
			Findings:   findings,
			Diagnostic: "stdout truncated at capture limit",
		})
	}

	if !exitOK {
		err := &ExecutionError{
			Scanner:  inv.Scanner,
			Status:   StatusCrashed,
			ExitCode: res.ExitCode,
			Stderr:   strutil.Tail(strings.TrimSpace(string(res.Stderr)), stderrTail),
			Err:      errors.Join(runErr, parseErr),
		}
		return findings, err
	}
	return findings, parseErr
}

func parseStdout(inv Invocation, res procexec.Result) (out []finding.Finding, err error) {
	if len(strings.TrimSpace(string(res.Stdout))) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &PartialOutputError{
				Scanner:    inv.Scanner,
				Diagnostic: fmt.Sprintf("parser panic: %v", r),
			}
		}
	}()
	findings, perr := inv.Parse(res.Stdout)
	var pe *PartialOutputError
	if errors.As(perr, &pe) {
		pe.Scanner = inv.Scanner
	}
	return Normalize(findings), perr
}

// Normalize runs finding.Normalize over fs and drops entries that still
// fail validation.
func Normalize(fs []finding.Finding) []finding.Finding {
	out := make([]finding.Finding, 0, len(fs))
	for _, f := range fs {
		n := f.Normalize()
		if n.Validate() == nil {
			out = append(out, n)
		}
	}
	return out
}
