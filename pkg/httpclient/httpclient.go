// Package httpclient builds the HTTP clients used for outbound calls:
// the KEV catalog, the EPSS API and LLM completions. Feeds are fetched
// from well-known public hosts, so unlike a scanner client this one
// verifies TLS and follows redirects.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/duration"
)

// Config holds HTTP client configuration options.
type Config struct {
	// Timeout is the total per-request timeout (default: 15s)
	Timeout time.Duration `yaml:"timeout"`

	// Proxy is an http, https, socks5 or socks5h proxy URL (optional)
	Proxy string `yaml:"proxy"`

	// UserAgent overrides the default scanforge/<version> agent
	UserAgent string `yaml:"user_agent"`

	// Headers are added to every request (API keys and similar)
	Headers map[string]string `yaml:"headers"`

	// InsecureSkipVerify disables TLS verification, for TLS-intercepting proxies only
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// DefaultConfig returns defaults for feed downloads.
func DefaultConfig() Config {
	return Config{
		Timeout:   duration.FeedRequest,
		UserAgent: defaults.UserAgent,
	}
}

// New creates a client for cfg. It fails only on an unusable proxy URL.
func New(cfg Config) (*http.Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = duration.FeedRequest
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	dialer := &net.Dialer{
		Timeout:   duration.HTTPDial,
		KeepAlive: duration.HTTPIdleConn,
	}

	transport := &http.Transport{
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       duration.HTTPIdleConn,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   duration.HTTPTLSHandshake,
		ExpectContinueTimeout: time.Second,
		DialContext:           dialer.DialContext,
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for intercepting proxies
			MinVersion:         tls.VersionTLS12,
		},
	}

	if cfg.Proxy != "" {
		if err := applyProxy(transport, cfg.Proxy, dialer); err != nil {
			return nil, err
		}
	}

	return &http.Client{
		Transport: &headerTransport{
			base:      transport,
			userAgent: cfg.UserAgent,
			headers:   cfg.Headers,
		},
		Timeout: cfg.Timeout,
	}, nil
}

// ReadBody reads at most limit bytes and reports ErrBodyTooLarge when the
// body has more.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}
