// Package scheduler periodically evaluates the persisted auto-download
// filter against the episode catalog and submits matches to the download
// manager.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seiyaku/anibridge/internal/catalog"
	"github.com/seiyaku/anibridge/internal/download"
	"github.com/seiyaku/anibridge/internal/resolver"
	"github.com/seiyaku/anibridge/internal/store"
)

// Ensure Scheduler implements Service interface
var _ Service = (*Scheduler)(nil)

type Service interface {
	// Start begins the periodic check loop: an immediate pass, then one
	// per configured interval. A no-op with a log entry while the
	// config has auto-download disabled, and while already running.
	Start()

	// Stop ends the periodic loop. An in-flight check is allowed to
	// finish.
	Stop()

	// Running reports whether the periodic loop is active.
	Running() bool

	// Config returns the current auto-download configuration.
	Config() AutoDownloadConfig

	// UpdateConfig replaces the configuration wholesale, persists it,
	// and applies it to the running loop and the download manager.
	UpdateConfig(cfg AutoDownloadConfig) error

	// Preview returns the entries the current filter would select,
	// without enqueueing anything. It shares the matching code path
	// with the live check.
	Preview(entries []catalog.Entry) []catalog.Entry
}

type Scheduler struct {
	mu      sync.Mutex
	cfg     AutoDownloadConfig
	filter  *compiledFilter
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	catalog   catalog.Provider
	downloads download.Service
	resolve   resolver.Service
	st        store.Store

	log *slog.Logger
}

// New creates a scheduler with its configuration loaded from the store.
// A missing config key yields defaults with auto-download disabled.
func New(cat catalog.Provider, downloads download.Service, res resolver.Service, st store.Store) (*Scheduler, error) {
	s := &Scheduler{
		catalog:   cat,
		downloads: downloads,
		resolve:   res,
		st:        st,
		log:       slog.With("component", "scheduler"),
	}

	var cfg AutoDownloadConfig
	err := st.Get(configKey, &cfg)
	if err != nil && err != store.ErrKeyNotFound {
		return nil, fmt.Errorf("load auto-download config: %w", err)
	}
	cfg.normalize()
	s.cfg = cfg
	s.filter = compileFilter(cfg.Filters)
	s.applyLocked()
	return s, nil
}

// applyLocked pushes config knobs owned by collaborators. Unset knobs
// leave the manager's construction-time values in place.
func (s *Scheduler) applyLocked() {
	if s.cfg.MaxConcurrentDownloads > 0 {
		s.downloads.SetMaxConcurrent(s.cfg.MaxConcurrentDownloads)
	}
	s.downloads.SetDirectory(s.cfg.DownloadPath)
}

// Start implements Service.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		s.log.Info("auto-download disabled, scheduler not started")
		return
	}
	if s.running {
		return
	}

	s.running = true
	s.stop = make(chan struct{})
	interval := time.Duration(s.cfg.CheckIntervalHours) * time.Hour

	s.wg.Add(1)
	go s.loop(s.stop, interval)
	s.log.Info("scheduler started", "interval_hours", s.cfg.CheckIntervalHours)
}

func (s *Scheduler) loop(stop chan struct{}, interval time.Duration) {
	defer s.wg.Done()

	s.runCheck(context.Background())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runCheck(context.Background())
		case <-stop:
			return
		}
	}
}

// Stop implements Service.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Running implements Service.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Config implements Service.
func (s *Scheduler) Config() AutoDownloadConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// UpdateConfig implements Service.
func (s *Scheduler) UpdateConfig(cfg AutoDownloadConfig) error {
	cfg.normalize()
	if err := s.st.Set(configKey, &cfg); err != nil {
		return fmt.Errorf("persist auto-download config: %w", err)
	}

	s.mu.Lock()
	wasRunning := s.running
	s.cfg = cfg
	s.filter = compileFilter(cfg.Filters)
	s.applyLocked()
	s.mu.Unlock()

	// The loop reads interval and enabled only at start, so bounce it.
	if wasRunning {
		s.Stop()
	}
	s.Start()
	return nil
}

// Preview implements Service.
func (s *Scheduler) Preview(entries []catalog.Entry) []catalog.Entry {
	s.mu.Lock()
	filter := s.filter
	s.mu.Unlock()

	matched := make([]catalog.Entry, 0)
	for _, entry := range entries {
		if filter.matches(entry) {
			matched = append(matched, entry)
		}
	}
	return matched
}

// runCheck performs one filter pass: fetch the catalog, select matching
// entries, and enqueue their episodes that are not already downloaded or
// in flight. Resolution failures are logged and skipped; the episode is
// re-evaluated on the next pass.
func (s *Scheduler) runCheck(ctx context.Context) {
	entries, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		s.log.Warn("catalog fetch failed, skipping check", "error", err)
		return
	}

	s.mu.Lock()
	filter := s.filter
	s.mu.Unlock()

	checked, enqueued := 0, 0
	for _, entry := range entries {
		if !filter.matches(entry) {
			continue
		}
		checked++

		for _, ep := range entry.Episodes {
			if s.downloads.Known(ep.AnimeID, ep.ID) {
				continue
			}

			src, err := s.resolve.Resolve(ctx, ep.PageURL)
			if err != nil {
				s.log.Warn("resolve failed",
					"anime", entry.Title,
					"episode", ep.EpisodeNum,
					"error", err,
				)
				continue
			}

			if _, err := s.downloads.Enqueue(ep, src); err != nil {
				switch err {
				case download.ErrAlreadyDownloaded:
					// Raced with a manual download; nothing to do.
				case download.ErrUnsupportedSourceType:
					s.log.Info("skipping playlist-only source",
						"anime", entry.Title,
						"episode", ep.EpisodeNum,
					)
				default:
					s.log.Warn("enqueue failed",
						"anime", entry.Title,
						"episode", ep.EpisodeNum,
						"error", err,
					)
				}
				continue
			}
			enqueued++
		}
	}

	s.log.Info("check complete",
		"catalog_entries", len(entries),
		"matched", checked,
		"enqueued", enqueued,
	)
}
