package httpclient

import "errors"

// Sentinel errors for HTTP client failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrProxyConfig indicates a proxy URL that cannot be used
	// (bad scheme, missing host).
	ErrProxyConfig = errors.New("httpclient: invalid proxy")

	// ErrBodyTooLarge indicates a response exceeded the caller's size cap.
	ErrBodyTooLarge = errors.New("httpclient: response body too large")

	// ErrOffline is returned by the Offline client.
	ErrOffline = errors.New("httpclient: offline mode")
)
