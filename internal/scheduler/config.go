package scheduler

const configKey = "autodownload/config"

// AutoDownloadConfig is the persisted scheduler configuration. It is
// loaded at startup and replaced wholesale on every update.
type AutoDownloadConfig struct {
	Enabled                bool           `json:"enabled"`
	DownloadPath           string         `json:"downloadPath"`
	CheckIntervalHours     int            `json:"checkIntervalHours"`
	MaxConcurrentDownloads int            `json:"maxConcurrentDownloads"`
	Filters                FilterCriteria `json:"filters"`
}

// normalize defaults out-of-range fields at the persistence boundary so
// bad stored values never reach the matching or scheduling logic. A zero
// MaxConcurrentDownloads means "leave the manager's cap alone".
func (c *AutoDownloadConfig) normalize() {
	if c.CheckIntervalHours < 1 {
		c.CheckIntervalHours = 6
	}
	if c.MaxConcurrentDownloads < 0 {
		c.MaxConcurrentDownloads = 0
	}
}
