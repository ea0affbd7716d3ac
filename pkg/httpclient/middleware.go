package httpclient

import (
	"fmt"
	"net/http"

	"github.com/scanforge/scanforge/pkg/retry"
)

// headerTransport stamps the User-Agent and static headers on every request.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid mutating the caller's request.
	r := req.Clone(req.Context())
	if h.userAgent != "" && r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", h.userAgent)
	}
	for k, v := range h.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return h.base.RoundTrip(r)
}

// offlineTransport fails every request without touching the network.
type offlineTransport struct{}

func (offlineTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return nil, retry.Stop(fmt.Errorf("%w: %s %s", ErrOffline, req.Method, req.URL.Redacted()))
}

// Offline returns a client that refuses all requests. Feed enrichers
// given it serve only what their caches already hold.
func Offline() *http.Client {
	return &http.Client{Transport: offlineTransport{}}
}
