// Package fetch provides shared HTTP clients with connection pooling for
// page scraping and bulk media transfer.
package fetch

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// BrowserUserAgent is sent on every outbound request. The target sites
// reject clients that do not look like a browser.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

type clientConfig struct {
	maxIdleConns        int
	maxIdleConnsPerHost int
	idleConnTimeout     time.Duration
	tlsHandshakeTimeout time.Duration
	keepAlive           time.Duration
	dialTimeout         time.Duration
}

func newTransport(cfg clientConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.dialTimeout,
			KeepAlive: cfg.keepAlive,
		}).DialContext,
		MaxIdleConns:        cfg.maxIdleConns,
		MaxIdleConnsPerHost: cfg.maxIdleConnsPerHost,
		IdleConnTimeout:     cfg.idleConnTimeout,
		TLSHandshakeTimeout: cfg.tlsHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// NewPageClient returns a client for page and API fetches. These are small
// metadata requests, so the whole-request timeout is short.
func NewPageClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: newTransport(clientConfig{
			maxIdleConns:        100,
			maxIdleConnsPerHost: 10,
			idleConnTimeout:     90 * time.Second,
			tlsHandshakeTimeout: 5 * time.Second,
			keepAlive:           30 * time.Second,
			dialTimeout:         5 * time.Second,
		}),
		Timeout: timeout,
	}
}

// NewStreamClient returns a client for manifest and media transfers. The
// response body may be large, so only the transport enforces timeouts.
func NewStreamClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: newTransport(clientConfig{
			maxIdleConns:        100,
			maxIdleConnsPerHost: 10,
			idleConnTimeout:     timeout,
			tlsHandshakeTimeout: 10 * time.Second,
			keepAlive:           30 * time.Second,
			dialTimeout:         10 * time.Second,
		}),
		Timeout: 0,
	}
}

// BrowserHeaders sets the request headers the origin sites expect from a
// real browser. Referer is derived from the request URL when refererURL
// is empty.
func BrowserHeaders(req *http.Request, refererURL string) {
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if refererURL != "" {
		req.Header.Set("Referer", refererURL)
		req.Header.Set("Origin", originOf(refererURL))
	}
}

// CookieHeader serializes a cookie map into a Cookie header value.
// Names are sorted so the output is stable.
func CookieHeader(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(cookies[name])
	}
	return b.String()
}

// originOf trims a URL down to scheme://host.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}
