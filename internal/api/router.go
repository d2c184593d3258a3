package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seiyaku/anibridge/internal/download"
	"github.com/seiyaku/anibridge/internal/metrics"
	"github.com/seiyaku/anibridge/internal/relay"
	"github.com/seiyaku/anibridge/internal/resolver"
	"github.com/seiyaku/anibridge/internal/scheduler"
)

// Server represents the REST API server
type Server struct {
	router    *gin.Engine
	resolver  resolver.Service
	relay     *relay.Relay
	downloads download.Service
	scheduler scheduler.Service
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
}

// NewServer creates a new API server
func NewServer(
	res resolver.Service,
	rel *relay.Relay,
	downloads download.Service,
	sched scheduler.Service,
	reg *prometheus.Registry,
	m *metrics.Metrics,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:    gin.New(),
		resolver:  res,
		relay:     rel,
		downloads: downloads,
		scheduler: sched,
		metrics:   m,
		registry:  reg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(gin.Recovery())

	// Logging middleware
	s.router.Use(func(c *gin.Context) {
		c.Next()
		slog.Info("API request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	})

	// CORS for development
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Range")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")

	// Playback
	api.POST("/resolve", s.resolveSource)
	api.GET("/stream", s.streamEpisode)

	// Downloads
	api.GET("/downloads", s.listDownloads)
	api.GET("/downloads/history", s.listDownloadHistory)
	api.GET("/downloads/:id", s.getDownload)
	api.POST("/downloads", s.startDownload)
	api.POST("/downloads/:id/cancel", s.cancelDownload)
	api.DELETE("/downloads/:id", s.deleteDownload)

	// Auto-download
	api.GET("/autodownload/config", s.getAutoDownloadConfig)
	api.PUT("/autodownload/config", s.updateAutoDownloadConfig)
	api.POST("/autodownload/preview", s.previewFilter)

	// Status
	api.GET("/status", s.getStatus)

	if s.registry != nil {
		s.router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Error response helper
func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
