package finding

import "strings"

// Severity represents the severity level of a security finding.
// All values are lowercase strings.
type Severity string

const (
	// Critical represents immediate compromise (RCE, known-exploited CVE).
	Critical Severity = "critical"

	// High represents significant impact requiring prompt fix (SQLi, hardcoded secret).
	High Severity = "high"

	// Medium represents moderate impact (weak crypto, reflected XSS).
	Medium Severity = "medium"

	// Low represents limited impact (verbose errors, minor info leak).
	Low Severity = "low"

	// Info represents informational findings with no direct security impact.
	Info Severity = "info"
)

// IsValid reports whether s is a recognized severity level.
func (s Severity) IsValid() bool {
	switch s {
	case Critical, High, Medium, Low, Info:
		return true
	}
	return false
}

// Score returns a numeric score for sorting and comparison.
// Critical=5, High=4, Medium=3, Low=2, Info=1, Unknown=0.
func (s Severity) Score() int {
	switch s {
	case Critical:
		return 5
	case High:
		return 4
	case Medium:
		return 3
	case Low:
		return 2
	case Info:
		return 1
	default:
		return 0
	}
}

// String returns the severity as a string.
func (s Severity) String() string {
	return string(s)
}

// Max returns the more severe of a and b.
func Max(a, b Severity) Severity {
	if b.Score() > a.Score() {
		return b
	}
	return a
}

// ParseSeverity maps common scanner spellings onto the canonical levels.
// Matching is case-insensitive; "moderate" and "warning" map to medium,
// "informational", "negligible" and "unknown" map to info.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return Critical, true
	case "high", "error":
		return High, true
	case "medium", "moderate", "warning":
		return Medium, true
	case "low":
		return Low, true
	case "info", "informational", "negligible", "unknown", "note":
		return Info, true
	}
	return Info, false
}

// ToSARIF maps severity to SARIF result level.
// Critical/High → error, Medium → warning, Low/Info → note.
func (s Severity) ToSARIF() string {
	switch s {
	case Critical, High:
		return "error"
	case Medium:
		return "warning"
	default:
		return "note"
	}
}
