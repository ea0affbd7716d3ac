package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/scanforge/scanforge/pkg/compare"
	"github.com/scanforge/scanforge/pkg/config"
	"github.com/scanforge/scanforge/pkg/dedup"
	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/llm"
	"github.com/scanforge/scanforge/pkg/orchestrator"
	"github.com/scanforge/scanforge/pkg/priority"
	"github.com/scanforge/scanforge/pkg/safety"
)

var (
	// errUsage marks bad invocations.
	errUsage = errors.New("usage")

	// errHelp is -h; it exits 0 after the flag package printed help.
	errHelp = flag.ErrHelp

	// errPolicy means a finding reached the fail_on tier.
	errPolicy = errors.New("policy gate failed")

	// errRejected means the requested PoC did not pass the safety check.
	errRejected = errors.New("poc rejected")
)

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}

// exitCode maps a command error onto the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, errHelp):
		return defaults.ExitSuccess
	case errors.Is(err, errPolicy), errors.Is(err, errRejected):
		return defaults.ExitPolicyFailed
	case errors.Is(err, errUsage),
		errors.Is(err, compare.ErrNotReport),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, config.ErrMissingRequired),
		errors.Is(err, config.ErrUnknownPreset),
		errors.Is(err, dedup.ErrUnknownStrategy),
		errors.Is(err, priority.ErrUnknownTier),
		errors.Is(err, safety.ErrInvalidRules),
		errors.Is(err, llm.ErrUnknownProvider),
		errors.Is(err, llm.ErrMissingAPIKey),
		errors.Is(err, os.ErrNotExist):
		return defaults.ExitUserError
	case errors.Is(err, orchestrator.ErrAllAdaptersFailed),
		errors.Is(err, orchestrator.ErrNoAdapters):
		return defaults.ExitScanFailed
	default:
		return defaults.ExitInternalError
	}
}
