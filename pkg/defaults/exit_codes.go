package defaults

// Exit codes for the CLI. CI treats 1 as "the policy gate tripped" and
// anything above as a broken run, so the two never share a code.
const (
	ExitSuccess       = 0   // Clean run, nothing at or above the fail-on tier
	ExitPolicyFailed  = 1   // A finding reached the fail-on tier, or a PoC was rejected
	ExitUserError     = 2   // Invalid arguments, configuration or input files
	ExitScanFailed    = 3   // Every scanner failed
	ExitInternalError = 4   // Unexpected internal error
	ExitInterrupted   = 130 // Second interrupt during shutdown
)
