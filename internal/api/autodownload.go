package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seiyaku/anibridge/internal/catalog"
	"github.com/seiyaku/anibridge/internal/scheduler"
)

// PreviewRequest carries catalog entries for a dry-run filter pass
type PreviewRequest struct {
	Entries []catalog.Entry `json:"entries" binding:"required"`
}

// PreviewResponse lists the entries the current filter selects
type PreviewResponse struct {
	Matches []catalog.Entry `json:"matches"`
	Count   int             `json:"count"`
}

// getAutoDownloadConfig returns the persisted scheduler configuration
// GET /api/autodownload/config
func (s *Server) getAutoDownloadConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.scheduler.Config())
}

// updateAutoDownloadConfig replaces the scheduler configuration
// PUT /api/autodownload/config
func (s *Server) updateAutoDownloadConfig(c *gin.Context) {
	var cfg scheduler.AutoDownloadConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.scheduler.UpdateConfig(cfg); err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, s.scheduler.Config())
}

// previewFilter applies the current filter without enqueueing anything
// POST /api/autodownload/preview
func (s *Server) previewFilter(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	matches := s.scheduler.Preview(req.Entries)
	c.JSON(http.StatusOK, PreviewResponse{
		Matches: matches,
		Count:   len(matches),
	})
}
