// Package procexec runs scanner binaries as subprocesses. Every process is
// started in its own process group and the whole group is killed when the
// context ends, so scanners that fork helpers (semgrep-core, trivy's DB
// updater) never outlive a cancelled run.
package procexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/duration"
)

// Conventional exit codes for conditions that never reached the binary.
const (
	ExitTimeout    = 124
	ExitNotStarted = 126
	ExitNotFound   = 127
)

var (
	// ErrNotFound indicates the scanner binary is not on PATH.
	ErrNotFound = errors.New("procexec: executable not found")

	// ErrNotStarted indicates the binary was found but could not be
	// started, e.g. a bad executable format or missing permission.
	ErrNotStarted = errors.New("procexec: executable did not start")
)

// Cmd describes one subprocess invocation.
type Cmd struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the parent environment

	// MaxStdout caps captured stdout; zero means defaults.BufferScannerOutput.
	MaxStdout int
}

// Result holds what the process produced.
type Result struct {
	Stdout    []byte
	Stderr    []byte
	ExitCode  int
	Duration  time.Duration
	Truncated bool // stdout hit MaxStdout
}

// LookPath resolves name on PATH, mapping a miss onto ErrNotFound.
func LookPath(name string) (string, error) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// Run executes c and waits for it.
//
// Outcomes:
//   - success: nil error, ExitCode 0
//   - non-zero exit: *exec.ExitError, Stdout kept for best-effort parsing
//   - ctx done: ctx.Err(), Stdout discarded, ExitCode 124
//   - binary missing: ErrNotFound, ExitCode 127
//   - start failure: ErrNotStarted, ExitCode 126
func Run(ctx context.Context, c Cmd) (Result, error) {
	path, err := LookPath(c.Name)
	if err != nil {
		return Result{ExitCode: ExitNotFound}, err
	}

	max := c.MaxStdout
	if max <= 0 {
		max = defaults.BufferScannerOutput
	}
	stdout := &capWriter{max: max}
	stderr := &capWriter{max: defaults.BufferScannerStderr}

	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = duration.ProcessWaitDelay
	setProcessGroup(cmd)

	start := time.Now()
	err = cmd.Run()
	res := Result{
		Stdout:    stdout.buf.Bytes(),
		Stderr:    stderr.buf.Bytes(),
		Duration:  time.Since(start),
		Truncated: stdout.truncated,
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		// Partial output from a killed scanner is not trustworthy JSON.
		res.Stdout = nil
		res.ExitCode = ExitTimeout
		return res, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, err
		}
		res.ExitCode = ExitNotStarted
		return res, fmt.Errorf("%w: %s: %w", ErrNotStarted, c.Name, err)
	}
	return res, nil
}

// capWriter buffers up to max bytes and silently drops the rest.
type capWriter struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (w *capWriter) Write(p []byte) (int, error) {
	room := w.max - w.buf.Len()
	if room <= 0 {
		w.truncated = w.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		w.buf.Write(p[:room])
		w.truncated = true
		return len(p), nil
	}
	return w.buf.Write(p)
}
