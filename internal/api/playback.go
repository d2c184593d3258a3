package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seiyaku/anibridge/internal/relay"
	"github.com/seiyaku/anibridge/internal/resolver"
)

// ResolveRequest asks for the media source behind an episode page
type ResolveRequest struct {
	PageURL string `json:"page_url" binding:"required"`
}

// ResolveResponse contains the extracted media source
type ResolveResponse struct {
	MediaURL   string `json:"media_url"`
	IsPlaylist bool   `json:"is_playlist"`
}

// resolveSource extracts the media source from an episode page
// POST /api/resolve
func (s *Server) resolveSource(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "page_url is required")
		return
	}

	start := time.Now()
	src, err := s.resolver.Resolve(c.Request.Context(), req.PageURL)
	if s.metrics != nil {
		s.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
		s.metrics.ResolveTotal.WithLabelValues(resolveOutcome(err)).Inc()
	}
	if err != nil {
		s.resolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, ResolveResponse{
		MediaURL:   src.MediaURL,
		IsPlaylist: src.IsPlaylist,
	})
}

// streamEpisode resolves an episode page and relays its media bytes,
// passing the client's Range header through to the origin
// GET /api/stream?src=<page url>
func (s *Server) streamEpisode(c *gin.Context) {
	pageURL := c.Query("src")
	if pageURL == "" {
		errorResponse(c, http.StatusBadRequest, "src parameter is required")
		return
	}

	src, err := s.resolveWithRetry(c.Request.Context(), pageURL)
	if err != nil {
		s.resolveError(c, err)
		return
	}

	if s.metrics != nil {
		s.metrics.RelayRequests.Inc()
		s.metrics.RelayOpenStreams.Inc()
		defer s.metrics.RelayOpenStreams.Dec()
	}

	w := http.ResponseWriter(c.Writer)
	if s.metrics != nil {
		w = &countingWriter{ResponseWriter: w, bytes: s.metrics.RelayBytes}
	}

	err = s.relay.Serve(c.Request.Context(), w, relay.Request{
		MediaURL:    src.MediaURL,
		Cookies:     src.Cookies,
		RangeHeader: c.GetHeader("Range"),
		Referer:     pageURL,
	})
	if err != nil {
		// Headers may already be written; only report if they are not.
		if !c.Writer.Written() {
			errorResponse(c, http.StatusBadGateway, err.Error())
		}
		return
	}
}

// resolveWithRetry retries transient resolution failures with a short
// backoff. Extraction failures are final and returned immediately.
func (s *Server) resolveWithRetry(ctx context.Context, pageURL string) (*resolver.ResolvedSource, error) {
	const attempts = 3

	var src *resolver.ResolvedSource
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(i) * 500 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		start := time.Now()
		src, err = s.resolver.Resolve(ctx, pageURL)
		if s.metrics != nil {
			s.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
			s.metrics.ResolveTotal.WithLabelValues(resolveOutcome(err)).Inc()
		}
		if err == nil {
			return src, nil
		}
		if !resolver.IsNetwork(err) {
			return nil, err
		}
		slog.Warn("resolve attempt failed", "url", pageURL, "attempt", i+1, "error", err)
	}
	return nil, err
}

// resolveError maps resolution failures onto HTTP statuses
func (s *Server) resolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, resolver.ErrUnsupportedDomain):
		errorResponse(c, http.StatusBadRequest, "unsupported source domain")
	case errors.Is(err, resolver.ErrPlayerNotFound),
		errors.Is(err, resolver.ErrIncompleteParams),
		errors.Is(err, resolver.ErrNoSource):
		errorResponse(c, http.StatusNotFound, err.Error())
	case resolver.IsNetwork(err):
		errorResponse(c, http.StatusBadGateway, err.Error())
	default:
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}

func resolveOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case resolver.IsNetwork(err):
		return "network_error"
	default:
		return "extraction_error"
	}
}

// countingWriter adds written body bytes to a counter
type countingWriter struct {
	http.ResponseWriter
	bytes interface{ Add(float64) }
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	if n > 0 {
		w.bytes.Add(float64(n))
	}
	return n, err
}
