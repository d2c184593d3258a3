package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seiyaku/anibridge/internal/download"
)

// getStatus returns a service health summary
// GET /api/status
func (s *Server) getStatus(c *gin.Context) {
	var downloading, queued int
	for _, t := range s.downloads.Active() {
		switch t.Status {
		case download.StatusDownloading:
			downloading++
		case download.StatusPending:
			queued++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"downloads": gin.H{
			"downloading": downloading,
			"queued":      queued,
			"history":     len(s.downloads.History()),
		},
		"scheduler": gin.H{
			"running": s.scheduler.Running(),
		},
	})
}
