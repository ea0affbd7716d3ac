package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/proxy"
)

// applyProxy routes transport through proxyURL. HTTP(S) proxies use the
// standard CONNECT path; SOCKS5 proxies replace the dialer.
func applyProxy(transport *http.Transport, proxyURL string, forward *net.Dialer) error {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProxyConfig, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrProxyConfig, proxyURL)
	}

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
		return nil
	case "socks5", "socks5h":
		// x/net/proxy only knows "socks5"; hostnames are passed through
		// unresolved either way, which is what socks5h asks for.
		su := *u
		su.Scheme = "socks5"
		d, err := proxy.FromURL(&su, forward)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProxyConfig, err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return fmt.Errorf("%w: dialer for %s lacks context support", ErrProxyConfig, u.Scheme)
		}
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return cd.DialContext(ctx, network, addr)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrProxyConfig, u.Scheme)
	}
}
