// Package relay forwards byte-range media requests to the origin CDN and
// streams the response back to the player. HLS manifests are rewritten in
// flight so segment URIs stay fetchable across origins.
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/seiyaku/anibridge/internal/fetch"
	"github.com/seiyaku/anibridge/internal/playlist"
)

// ErrUpstream is returned when the origin refuses the media request before
// any body bytes were relayed.
var ErrUpstream = errors.New("upstream request failed")

// Request describes one relay pass-through.
type Request struct {
	MediaURL string
	// Cookies captured during resolution; the media host rejects
	// anonymous requests.
	Cookies map[string]string
	// RangeHeader is the client's Range header, forwarded verbatim.
	RangeHeader string
	// Referer is the episode page the source was resolved from.
	Referer string
}

// Relay streams origin responses to a client without buffering the body.
type Relay struct {
	client *http.Client
	log    *slog.Logger
}

// New creates a relay. The timeout bounds the whole transfer at the
// transport level; bodies may be large, so it is much longer than the
// resolver's metadata timeout.
func New(streamTimeout time.Duration) *Relay {
	return &Relay{
		client: fetch.NewStreamClient(streamTimeout),
		log:    slog.With("component", "relay"),
	}
}

// headers passed through so the player can probe and seek.
var passthroughHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
}

// Serve forwards the request to the origin and streams the reply. When the
// origin serves an HLS manifest, the body is rewritten and re-served as
// application/vnd.apple.mpegurl instead of being streamed raw.
//
// Errors returned before the first body byte map to an upstream failure the
// caller can report; a stall mid-stream is only logged, since the status
// line is already gone.
func (r *Relay) Serve(ctx context.Context, w http.ResponseWriter, req Request) error {
	outReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.MediaURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	fetch.BrowserHeaders(outReq, req.Referer)
	if req.RangeHeader != "" {
		outReq.Header.Set("Range", req.RangeHeader)
	}
	if len(req.Cookies) > 0 {
		outReq.Header.Set("Cookie", fetch.CookieHeader(req.Cookies))
	}

	resp, err := r.client.Do(outReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			r.log.Warn("failed to close origin body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %s", ErrUpstream, resp.Status)
	}

	body := bufio.NewReader(resp.Body)
	if isManifest(resp, body) {
		return r.serveManifest(w, req.MediaURL, body)
	}

	for _, h := range passthroughHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, body); err != nil {
		// Headers are already written; surface the stall to the log and
		// let the player decide whether to re-request.
		r.log.Warn("stream interrupted", "url", req.MediaURL, "error", err)
	}
	return nil
}

// serveManifest rewrites the playlist against its origin URL and serves it
// whole. Manifests are small enough to buffer.
func (r *Relay) serveManifest(w http.ResponseWriter, originURL string, body io.Reader) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: read manifest: %v", ErrUpstream, err)
	}

	rewritten, err := playlist.Rewrite(string(raw), originURL)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, rewritten); err != nil {
		r.log.Warn("manifest write interrupted", "url", originURL, "error", err)
	}
	return nil
}

// isManifest decides whether the origin response is an HLS playlist, by
// content type first and a #EXTM3U sniff of the first bytes otherwise.
func isManifest(resp *http.Response, body *bufio.Reader) bool {
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "mpegurl") {
		return true
	}
	// Sniffing only makes sense for whole responses; a ranged chunk of a
	// TS segment could start with anything.
	if resp.StatusCode == http.StatusPartialContent {
		return false
	}
	head, err := body.Peek(7)
	if err != nil {
		return false
	}
	return string(head) == "#EXTM3U"
}
