// Package duration provides canonical time constants for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for time-based configuration.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.AdapterTimeout)
//	cache := feedcache.New[Catalog](feedcache.Options{TTL: duration.FeedTTL})
//
// DO NOT use hardcoded time.Duration values like `30 * time.Second` anywhere.
// Instead, reference the appropriate constant from this package.
package duration

import "time"

// ============================================================================
// SCAN EXECUTION
// ============================================================================
//
// Scanners are external processes. The per-adapter timeout bounds one
// scanner, the run deadline bounds the whole orchestrated run.
// ============================================================================

const (
	// AdapterTimeout bounds a single scanner subprocess (10min)
	AdapterTimeout = 10 * time.Minute

	// RunDeadline bounds the whole orchestrated scan (30min)
	RunDeadline = 30 * time.Minute

	// ProcessWaitDelay is how long to wait for pipes after a kill (2s)
	ProcessWaitDelay = 2 * time.Second
)

// ============================================================================
// FEEDS & CACHES
// ============================================================================

const (
	// FeedTTL is how long a KEV catalog or EPSS score stays fresh (24h)
	FeedTTL = 24 * time.Hour

	// FeedStaleGrace extends stale-copy use after TTL when a refresh fails (0)
	FeedStaleGrace time.Duration = 0

	// FeedRequest bounds one KEV or EPSS HTTP request (15s)
	FeedRequest = 15 * time.Second

	// FeedRetryInit is the first backoff delay for feed fetches (1s)
	FeedRetryInit = 1 * time.Second

	// FeedRetryMax caps a single backoff delay for feed fetches (10s)
	FeedRetryMax = 10 * time.Second
)

// ============================================================================
// HTTP CLIENT
// ============================================================================

const (
	// HTTPDial is the connection establishment timeout (10s)
	HTTPDial = 10 * time.Second

	// HTTPTLSHandshake is the TLS handshake timeout (10s)
	HTTPTLSHandshake = 10 * time.Second

	// HTTPIdleConn is how long idle connections stay pooled (90s)
	HTTPIdleConn = 90 * time.Second

	// HTTPAPI is for external API calls like LLM services (60s)
	HTTPAPI = 60 * time.Second
)

// ============================================================================
// OBSERVABILITY
// ============================================================================

const (
	// MetricsReadTimeout is the /metrics server read timeout (5s)
	MetricsReadTimeout = 5 * time.Second

	// MetricsWriteTimeout is the /metrics server write timeout (10s)
	MetricsWriteTimeout = 10 * time.Second

	// TracingConnect bounds OTLP exporter setup (10s)
	TracingConnect = 10 * time.Second

	// TracingShutdown bounds flushing spans on exit (5s)
	TracingShutdown = 5 * time.Second

	// ShutdownGrace is how long a second interrupt forces exit after the
	// first one cancelled the run (10s)
	ShutdownGrace = 10 * time.Second
)
