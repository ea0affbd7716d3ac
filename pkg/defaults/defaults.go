// Package defaults provides canonical default values for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for runtime configuration defaults.
//
// Usage:
//
//	cfg.MaxConcurrency = defaults.ConcurrencyAdapters
//	cfg.LineWindow = defaults.DedupLineWindow
//
// DO NOT use hardcoded values like `MaxConcurrency: 4` anywhere.
// Instead, reference the appropriate constant from this package.
package defaults

// Version is the current scanforge version
const Version = "0.9.0"

// ToolName is the canonical tool name used in user agents, metrics and traces.
const ToolName = "scanforge"

// ============================================================================
// CONCURRENCY SETTINGS
// ============================================================================
//
// Scanner subprocesses are heavy (CPU + disk), enrichment is mostly network
// and AST parsing. They run on separate pools.
// ============================================================================

const (
	// ConcurrencyAdapters bounds how many scanners run at once (4)
	ConcurrencyAdapters = 4

	// ConcurrencyEnrich bounds how many findings are enriched at once (8)
	ConcurrencyEnrich = 8

	// ConcurrencyParse bounds parallel source-file parsing for reachability (8)
	ConcurrencyParse = 8
)

// ============================================================================
// RETRY SETTINGS
// ============================================================================

const (
	// RetryNone disables retries (0)
	RetryNone = 0

	// RetryFeed is the attempt count for KEV/EPSS fetches (3)
	RetryFeed = 3

	// RetryLLM is the attempt count for LLM completion calls (2)
	RetryLLM = 2
)

// ============================================================================
// DEDUPLICATION
// ============================================================================

const (
	// DedupStrategy is the default matching strategy
	DedupStrategy = "fuzzy"

	// DedupLineWindow is the fuzzy line tolerance (3)
	DedupLineWindow = 3

	// DedupSimilarity is the fuzzy snippet token-overlap threshold (0.8)
	DedupSimilarity = 0.8
)

// DedupScannerPriority is the default tie-break order for canonical election.
// Scanners not listed rank after these, alphabetically.
var DedupScannerPriority = []string{"semgrep", "bandit", "trivy", "trivy-image", "nuclei"}

// ============================================================================
// ENRICHMENT FEEDS
// ============================================================================

const (
	// KEVFeedURL is the CISA Known Exploited Vulnerabilities JSON feed
	KEVFeedURL = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"

	// EPSSAPIURL is the FIRST.org EPSS API endpoint
	EPSSAPIURL = "https://api.first.org/data/v1/epss"

	// EPSSBatchSize is the maximum CVE ids per EPSS request (100)
	EPSSBatchSize = 100

	// EPSSRequestsPerSecond paces EPSS batch requests (2)
	EPSSRequestsPerSecond = 2

	// EPSSEscalationThreshold raises the tier when a score exceeds it (0.7)
	EPSSEscalationThreshold = 0.7
)

// ============================================================================
// PRIORITIZATION
// ============================================================================

const (
	// PriorityEPSSWeight multiplies the EPSS probability into score points (10)
	PriorityEPSSWeight = 10.0

	// PriorityUnreachablePenalty is subtracted for unreachable dependencies (15)
	PriorityUnreachablePenalty = 15.0

	// PriorityKEVFloor is the minimum score of a KEV-listed finding (100)
	PriorityKEVFloor = 100.0

	// PriorityMaxScore caps the priority score (100)
	PriorityMaxScore = 100.0

	// PriorityFailOn is the default tier that fails the CLI exit code
	PriorityFailOn = "critical"
)

// ============================================================================
// BUFFER SIZES
// ============================================================================

const (
	// BufferSmall is for typical reads (4KB)
	BufferSmall = 4 * 1024

	// BufferFeed caps a KEV or EPSS response body (32MB)
	BufferFeed = 32 * 1024 * 1024

	// BufferScannerOutput caps captured scanner stdout (256MB)
	BufferScannerOutput = 256 * 1024 * 1024

	// BufferScannerStderr caps captured scanner stderr (1MB)
	BufferScannerStderr = 1024 * 1024

	// SnippetMaxLen truncates code snippets carried on findings (2000)
	SnippetMaxLen = 2000
)

// ============================================================================
// HTTP
// ============================================================================

const (
	// ContentTypeJSON is application/json
	ContentTypeJSON = "application/json"

	// AcceptJSON accepts JSON
	AcceptJSON = "application/json"

	// UserAgent identifies scanforge to feed providers
	UserAgent = ToolName + "/" + Version
)

// ============================================================================
// POC GENERATION
// ============================================================================

const (
	// PoCTargetURL is the placeholder target used when none is supplied
	PoCTargetURL = "http://localhost:8000"

	// PoCParamName is the placeholder parameter name
	PoCParamName = "id"

	// PoCMethod is the placeholder HTTP method
	PoCMethod = "GET"
)

// ============================================================================
// LLM
// ============================================================================

const (
	// LLMProvider is the default completion provider ("none" disables the LLM)
	LLMProvider = "none"

	// LLMModel is the default chat model
	LLMModel = "gpt-4o-mini"

	// LLMOpenAIURL is the OpenAI API base
	LLMOpenAIURL = "https://api.openai.com/v1"

	// LLMOllamaURL is the local Ollama OpenAI-compatible base
	LLMOllamaURL = "http://localhost:11434/v1"

	// LLMNVIDIAURL is the NVIDIA NIM OpenAI-compatible base
	LLMNVIDIAURL = "https://integrate.api.nvidia.com/v1"

	// LLMTemperature keeps PoC customization close to deterministic (0.2)
	LLMTemperature = 0.2

	// LLMMaxTokens caps a completion (1024)
	LLMMaxTokens = 1024

	// LLMRequestsPerSecond paces completion calls (1)
	LLMRequestsPerSecond = 1

	// BufferLLM caps a completion response body (4MB)
	BufferLLM = 4 * 1024 * 1024
)

// ============================================================================
// OBSERVABILITY
// ============================================================================

const (
	// MetricsNamespace prefixes every Prometheus metric
	MetricsNamespace = ToolName

	// MetricsPort is the default /metrics listener port (9464)
	MetricsPort = 9464

	// OTLPEndpoint is the default OTLP gRPC collector address
	OTLPEndpoint = "localhost:4317"
)

// ============================================================================
// CONFIGURATION
// ============================================================================
const (
	// Preset is the configuration preset applied when none is named
	Preset = "default"

	// CacheDirName is the feed cache directory under the user cache dir
	CacheDirName = ToolName
)
