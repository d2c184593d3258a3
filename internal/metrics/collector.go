package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seiyaku/anibridge/internal/download"
)

// DownloadCollector implements prometheus.Collector for download stats.
// It polls the download manager lazily on each Prometheus scrape rather
// than maintaining duplicate state.
type DownloadCollector struct {
	downloads download.Service

	// Per-task descriptors (labels: task_id, anime)
	taskTotalBytes      *prometheus.Desc
	taskDownloadedBytes *prometheus.Desc
	taskProgressRatio   *prometheus.Desc
	taskSpeedBytes      *prometheus.Desc

	// Aggregate descriptors (no per-task labels)
	tasksDownloading *prometheus.Desc
	tasksQueued      *prometheus.Desc
	tasksCompleted   *prometheus.Desc
	tasksFailed      *prometheus.Desc
}

var taskLabels = []string{"task_id", "anime"}

// NewDownloadCollector creates a collector that scrapes download stats on demand.
func NewDownloadCollector(downloads download.Service) *DownloadCollector {
	return &DownloadCollector{
		downloads: downloads,

		taskTotalBytes: prometheus.NewDesc(
			"anibridge_download_size_bytes",
			"Total size of the download in bytes.",
			taskLabels, nil,
		),
		taskDownloadedBytes: prometheus.NewDesc(
			"anibridge_download_bytes_completed",
			"Bytes written to disk for the download.",
			taskLabels, nil,
		),
		taskProgressRatio: prometheus.NewDesc(
			"anibridge_download_progress_ratio",
			"Download progress as a ratio from 0.0 to 1.0.",
			taskLabels, nil,
		),
		taskSpeedBytes: prometheus.NewDesc(
			"anibridge_download_speed_bytes_per_second",
			"Instantaneous transfer speed of the download.",
			taskLabels, nil,
		),

		tasksDownloading: prometheus.NewDesc(
			"anibridge_downloads_active",
			"Number of tasks currently downloading.",
			nil, nil,
		),
		tasksQueued: prometheus.NewDesc(
			"anibridge_downloads_queued",
			"Number of tasks waiting in the queue.",
			nil, nil,
		),
		tasksCompleted: prometheus.NewDesc(
			"anibridge_downloads_completed_total",
			"Completed downloads in history.",
			nil, nil,
		),
		tasksFailed: prometheus.NewDesc(
			"anibridge_downloads_failed_total",
			"Failed downloads in history.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *DownloadCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.taskTotalBytes
	ch <- c.taskDownloadedBytes
	ch <- c.taskProgressRatio
	ch <- c.taskSpeedBytes
	ch <- c.tasksDownloading
	ch <- c.tasksQueued
	ch <- c.tasksCompleted
	ch <- c.tasksFailed
}

// Collect implements prometheus.Collector.
func (c *DownloadCollector) Collect(ch chan<- prometheus.Metric) {
	var downloading, queued float64

	for _, t := range c.downloads.Active() {
		switch t.Status {
		case download.StatusDownloading:
			downloading++
		case download.StatusPending:
			queued++
		}

		labels := []string{t.ID, t.Episode.AnimeTitle}

		var progress float64
		if t.TotalBytes > 0 {
			progress = float64(t.DownloadedBytes) / float64(t.TotalBytes)
		}

		ch <- prometheus.MustNewConstMetric(c.taskTotalBytes, prometheus.GaugeValue, float64(t.TotalBytes), labels...)
		ch <- prometheus.MustNewConstMetric(c.taskDownloadedBytes, prometheus.GaugeValue, float64(t.DownloadedBytes), labels...)
		ch <- prometheus.MustNewConstMetric(c.taskProgressRatio, prometheus.GaugeValue, progress, labels...)
		ch <- prometheus.MustNewConstMetric(c.taskSpeedBytes, prometheus.GaugeValue, float64(t.SpeedBytesPerSec), labels...)
	}

	var completed, failed float64
	for _, t := range c.downloads.History() {
		switch t.Status {
		case download.StatusCompleted:
			completed++
		case download.StatusFailed:
			failed++
		}
	}

	ch <- prometheus.MustNewConstMetric(c.tasksDownloading, prometheus.GaugeValue, downloading)
	ch <- prometheus.MustNewConstMetric(c.tasksQueued, prometheus.GaugeValue, queued)
	ch <- prometheus.MustNewConstMetric(c.tasksCompleted, prometheus.CounterValue, completed)
	ch <- prometheus.MustNewConstMetric(c.tasksFailed, prometheus.CounterValue, failed)
}
