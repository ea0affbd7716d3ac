//go:build unix

package adapter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/scanforge/internal/procexec"
	"github.com/scanforge/scanforge/pkg/finding"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-scanner")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// lineParser turns each stdout line "rule:line" into a finding and panics
// on the line "boom".
func lineParser(out []byte) ([]finding.Finding, error) {
	var fs []finding.Finding
	for _, l := range strings.Fields(string(out)) {
		if l == "boom" {
			panic("parser exploded")
		}
		rule, _, _ := strings.Cut(l, ":")
		fs = append(fs, finding.Finding{Scanner: "fake", RuleID: rule, Severity: "HIGH", FilePath: "a.py"})
	}
	return fs, nil
}

func invocation(bin string) Invocation {
	return Invocation{Scanner: "fake", Cmd: procexec.Cmd{Name: bin}, Parse: lineParser}
}

func TestExec_Success(t *testing.T) {
	t.Parallel()
	fs, err := Exec(context.Background(), invocation(writeScript(t, `echo r1:1; echo r2:2`)))
	require.NoError(t, err)
	require.Len(t, fs, 2)
	assert.Equal(t, finding.High, fs[0].Severity, "findings are normalized")
	assert.NotEmpty(t, fs[0].ID)
}

func TestExec_SuccessCodes(t *testing.T) {
	t.Parallel()
	inv := invocation(writeScript(t, `echo r1:1; exit 1`))
	inv.SuccessCodes = []int{0, 1}
	fs, err := Exec(context.Background(), inv)
	require.NoError(t, err)
	assert.Len(t, fs, 1)
}

func TestExec_CrashKeepsFindings(t *testing.T) {
	t.Parallel()
	fs, err := Exec(context.Background(), invocation(writeScript(t, `echo r1:1; echo fatal >&2; exit 2`)))
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, StatusCrashed, ee.Status)
	assert.Equal(t, 2, ee.ExitCode)
	assert.Equal(t, "fatal", ee.Stderr)
	assert.Len(t, fs, 1)
	assert.Equal(t, StatusCrashed, StatusOf(err))
}

func TestExec_StartFailureIsCrashed(t *testing.T) {
	t.Parallel()
	bin := filepath.Join(t.TempDir(), "fake-scanner")
	require.NoError(t, os.WriteFile(bin, []byte("\x7fELFgarbage"), 0o755))
	inv := invocation(bin)
	inv.SuccessCodes = []int{0, 1}

	fs, err := Exec(context.Background(), inv)
	assert.Empty(t, fs)
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, StatusCrashed, ee.Status)
	assert.Equal(t, procexec.ExitNotStarted, ee.ExitCode)
	assert.ErrorIs(t, err, procexec.ErrNotStarted)
}

func TestExec_NotInstalled(t *testing.T) {
	t.Parallel()
	fs, err := Exec(context.Background(), invocation("scanforge-no-such-scanner"))
	assert.Nil(t, fs)
	assert.Equal(t, StatusNotInstalled, StatusOf(err))
}

func TestExec_TimeoutDropsFindings(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	fs, err := Exec(ctx, invocation(writeScript(t, `echo r1:1; sleep 30`)))
	assert.Nil(t, fs)
	assert.Equal(t, StatusTimeout, StatusOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExec_ParserPanicIsRecovered(t *testing.T) {
	t.Parallel()
	fs, err := Exec(context.Background(), invocation(writeScript(t, `echo boom`)))
	assert.Empty(t, fs)
	var pe *PartialOutputError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Diagnostic, "panic")
	assert.Equal(t, StatusOK, StatusOf(err))
}

func TestExec_EmptyStdout(t *testing.T) {
	t.Parallel()
	fs, err := Exec(context.Background(), invocation(writeScript(t, `exit 0`)))
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestExec_TruncatedOutputIsPartial(t *testing.T) {
	t.Parallel()
	inv := invocation(writeScript(t, `i=0; while [ $i -lt 50 ]; do echo r$i:1; i=$((i+1)); done`))
	inv.Cmd.MaxStdout = 32
	fs, err := Exec(context.Background(), inv)
	var pe *PartialOutputError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Diagnostic, "truncated")
	assert.NotEmpty(t, fs)
}
