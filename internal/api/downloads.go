package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seiyaku/anibridge/internal/catalog"
	"github.com/seiyaku/anibridge/internal/download"
)

// DownloadRequest starts a download for one episode
type DownloadRequest struct {
	PageURL    string `json:"page_url" binding:"required"`
	AnimeID    string `json:"anime_id" binding:"required"`
	AnimeTitle string `json:"anime_title" binding:"required"`
	EpisodeID  string `json:"episode_id" binding:"required"`
	EpisodeNum int    `json:"episode_num" binding:"required"`
}

// DownloadListResponse contains a list of download tasks
type DownloadListResponse struct {
	Downloads []DownloadResponse `json:"downloads"`
}

// DownloadResponse contains download task status information
type DownloadResponse struct {
	ID              string  `json:"id"`
	AnimeID         string  `json:"anime_id"`
	AnimeTitle      string  `json:"anime_title"`
	EpisodeNum      int     `json:"episode_num"`
	Status          string  `json:"status"`
	TotalBytes      int64   `json:"total_bytes"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	Progress        float64 `json:"progress"`
	Speed           int64   `json:"speed"`
	FilePath        string  `json:"file_path"`
	Error           string  `json:"error,omitempty"`
	StartTime       string  `json:"start_time,omitempty"`
	EndTime         string  `json:"end_time,omitempty"`
}

// startDownload resolves an episode page and enqueues the download
// POST /api/downloads
func (s *Server) startDownload(c *gin.Context) {
	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	src, err := s.resolver.Resolve(c.Request.Context(), req.PageURL)
	if err != nil {
		s.resolveError(c, err)
		return
	}

	ref := catalog.EpisodeRef{
		ID:         req.EpisodeID,
		AnimeID:    req.AnimeID,
		AnimeTitle: req.AnimeTitle,
		EpisodeNum: req.EpisodeNum,
		PageURL:    req.PageURL,
	}

	task, err := s.downloads.Enqueue(ref, src)
	if err != nil {
		switch {
		case errors.Is(err, download.ErrAlreadyDownloaded):
			errorResponse(c, http.StatusConflict, "episode already downloaded")
		case errors.Is(err, download.ErrUnsupportedSourceType):
			errorResponse(c, http.StatusUnprocessableEntity, "playlist sources cannot be downloaded")
		default:
			errorResponse(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusAccepted, taskToResponse(*task))
}

// listDownloads returns pending and downloading tasks
// GET /api/downloads
func (s *Server) listDownloads(c *gin.Context) {
	tasks := s.downloads.Active()

	response := DownloadListResponse{
		Downloads: make([]DownloadResponse, len(tasks)),
	}
	for i, t := range tasks {
		response.Downloads[i] = taskToResponse(t)
	}

	c.JSON(http.StatusOK, response)
}

// listDownloadHistory returns finished tasks
// GET /api/downloads/history
func (s *Server) listDownloadHistory(c *gin.Context) {
	tasks := s.downloads.History()

	response := DownloadListResponse{
		Downloads: make([]DownloadResponse, len(tasks)),
	}
	for i, t := range tasks {
		response.Downloads[i] = taskToResponse(t)
	}

	c.JSON(http.StatusOK, response)
}

// getDownload returns status of a specific task
// GET /api/downloads/:id
func (s *Server) getDownload(c *gin.Context) {
	task, err := s.downloads.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, download.ErrTaskNotFound) {
			errorResponse(c, http.StatusNotFound, "Download not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, taskToResponse(task))
}

// cancelDownload stops a pending or downloading task, keeping its
// partial file for a later resume
// POST /api/downloads/:id/cancel
func (s *Server) cancelDownload(c *gin.Context) {
	err := s.downloads.Cancel(c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, download.ErrTaskNotFound):
			errorResponse(c, http.StatusNotFound, "Download not found")
		case errors.Is(err, download.ErrNotCancellable):
			errorResponse(c, http.StatusConflict, "Download already finished")
		default:
			errorResponse(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Download cancelled"})
}

// deleteDownload removes a task record and its file
// DELETE /api/downloads/:id
func (s *Server) deleteDownload(c *gin.Context) {
	err := s.downloads.Delete(c.Param("id"))
	if err != nil {
		if errors.Is(err, download.ErrTaskNotFound) {
			errorResponse(c, http.StatusNotFound, "Download not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.Status(http.StatusNoContent)
}

// taskToResponse converts a download.Task to a DownloadResponse
func taskToResponse(t download.Task) DownloadResponse {
	var progress float64
	if t.TotalBytes > 0 {
		progress = float64(t.DownloadedBytes) / float64(t.TotalBytes)
	}

	r := DownloadResponse{
		ID:              t.ID,
		AnimeID:         t.Episode.AnimeID,
		AnimeTitle:      t.Episode.AnimeTitle,
		EpisodeNum:      t.Episode.EpisodeNum,
		Status:          string(t.Status),
		TotalBytes:      t.TotalBytes,
		DownloadedBytes: t.DownloadedBytes,
		Progress:        progress,
		Speed:           t.SpeedBytesPerSec,
		FilePath:        t.FilePath,
		Error:           t.ErrorMessage,
	}
	if !t.StartTime.IsZero() {
		r.StartTime = t.StartTime.Format(time.RFC3339)
	}
	if !t.EndTime.IsZero() {
		r.EndTime = t.EndTime.Format(time.RFC3339)
	}
	return r
}
