// Package resolver turns an episode page URL into a fetchable media URL.
// Two site families are supported: animeseed pages embed an obfuscated API
// call, otakuplay pages carry a plain inline player.
package resolver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seiyaku/anibridge/internal/fetch"
)

// ResolvedSource is the outcome of a single resolve call. It is ephemeral:
// media URLs and session cookies expire, so callers must not persist it.
type ResolvedSource struct {
	MediaURL   string            `json:"mediaUrl"`
	Cookies    map[string]string `json:"cookies,omitempty"`
	IsPlaylist bool              `json:"isPlaylist"`
}

// Service resolves episode page URLs into playable media sources.
type Service interface {
	// Resolve fetches the page and extracts the media source.
	// Returns ErrUnsupportedDomain for hosts outside the known sites,
	// ErrPlayerNotFound / ErrIncompleteParams / ErrNoSource for
	// extraction failures, and a NetworkError for transport failures.
	// No failure is retried internally.
	Resolve(ctx context.Context, pageURL string) (*ResolvedSource, error)
}

type extractFunc func(ctx context.Context, pageURL string, body []byte) (*ResolvedSource, error)

// Ensure resolver implements Service interface
var _ Service = (*resolver)(nil)

type resolver struct {
	pages *http.Client

	// animeseed source API endpoint; replaced in tests
	apiEndpoint string

	// host → extraction strategy
	domains map[string]extractFunc

	log *slog.Logger
}

// New creates a resolver with the known site domains registered.
func New(pageTimeout time.Duration) Service {
	return newResolver(pageTimeout)
}

func newResolver(pageTimeout time.Duration) *resolver {
	r := &resolver{
		pages:       fetch.NewPageClient(pageTimeout),
		apiEndpoint: seedAPIEndpoint,
		log:         slog.With("component", "resolver"),
	}
	r.domains = map[string]extractFunc{
		"animeseed.tv": r.extractAnimeseed,
		"otakuplay.io": r.extractOtakuplay,
	}
	return r
}

// Resolve implements Service.
func (r *resolver) Resolve(ctx context.Context, pageURL string) (*ResolvedSource, error) {
	extract, err := r.extractorFor(pageURL)
	if err != nil {
		return nil, err
	}

	body, err := r.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	src, err := extract(ctx, pageURL, body)
	if err != nil {
		return nil, err
	}

	src.IsPlaylist = looksLikePlaylist(src.MediaURL)
	r.log.Debug("resolved media source",
		"page", pageURL,
		"playlist", src.IsPlaylist,
	)
	return src, nil
}

// extractorFor picks the extraction strategy for the page host.
func (r *resolver) extractorFor(pageURL string) (extractFunc, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDomain, pageURL)
	}

	host := strings.ToLower(u.Host)
	for _, candidate := range []string{host, u.Hostname(), strings.TrimPrefix(u.Hostname(), "www.")} {
		if extract, ok := r.domains[candidate]; ok {
			return extract, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDomain, host)
}

// fetchPage retrieves the episode page HTML with browser-like headers.
func (r *resolver) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &NetworkError{Op: "build request", URL: pageURL, Err: err}
	}
	fetch.BrowserHeaders(req, "")

	resp, err := r.pages.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "fetch page", URL: pageURL, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			r.log.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{Op: "fetch page", URL: pageURL, Err: fmt.Errorf("status %s", resp.Status)}
	}

	return io.ReadAll(resp.Body)
}

// looksLikePlaylist classifies a media URL as an HLS manifest. Content-type
// sniffing of manifest bytes happens later in the relay.
func looksLikePlaylist(mediaURL string) bool {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return strings.Contains(mediaURL, ".m3u8")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}
