package download

import (
	"path/filepath"
	"time"

	"github.com/seiyaku/anibridge/internal/catalog"
	"github.com/seiyaku/anibridge/internal/common"
)

// Status is the finite state of a download task.
type Status string

const (
	// StatusPending means the task is queued behind the concurrency cap.
	StatusPending Status = "pending"

	// StatusDownloading means bytes are being transferred.
	StatusDownloading Status = "downloading"

	// StatusPaused is reserved for tasks interrupted by a process
	// restart; a later enqueue of the same episode resumes them.
	StatusPaused Status = "paused"

	// StatusCompleted means the file is fully on disk.
	StatusCompleted Status = "completed"

	// StatusFailed means the transfer failed; the partial file is kept.
	StatusFailed Status = "failed"

	// StatusCancelled means the user stopped the task; the partial file
	// is kept so an identical enqueue can resume it.
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether the task occupies or is waiting for a
// concurrency slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusDownloading
}

// Task is one episode download. Owned by the Manager while active; once
// terminal it moves to the history list, which callers read but never
// mutate directly.
type Task struct {
	ID               string             `json:"id"`
	Episode          catalog.EpisodeRef `json:"episode"`
	Status           Status             `json:"status"`
	TotalBytes       int64              `json:"totalBytes"`
	DownloadedBytes  int64              `json:"downloadedBytes"`
	SpeedBytesPerSec int64              `json:"speedBytesPerSec"`
	FilePath         string             `json:"filePath"`
	ErrorMessage     string             `json:"errorMessage,omitempty"`
	StartTime        time.Time          `json:"startTime"`
	EndTime          time.Time          `json:"endTime,omitempty"`
}

// TaskID derives the task identifier from the anime and episode ids, so at
// most one active task can exist per episode.
func TaskID(animeID, episodeID string) string {
	return animeID + ":" + episodeID
}

// taskFilePath builds the deterministic on-disk location for an episode:
// <dir>/<sanitized title>/Episode_<NN>.mp4. Resume depends on this never
// changing for a given episode.
func taskFilePath(dir string, ref catalog.EpisodeRef) string {
	folder := common.SanitizeFilename(ref.AnimeTitle)
	name := "Episode_" + common.PadZero(ref.EpisodeNum, 2) + ".mp4"
	return filepath.Join(dir, folder, name)
}
