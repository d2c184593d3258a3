// Package download queues, executes, and tracks resumable episode
// downloads with a fixed concurrency cap.
package download

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/seiyaku/anibridge/internal/catalog"
	"github.com/seiyaku/anibridge/internal/fetch"
	"github.com/seiyaku/anibridge/internal/resolver"
	"github.com/seiyaku/anibridge/internal/store"
)

const historyKey = "downloads/history"

// Ensure Manager implements Service interface
var _ Service = (*Manager)(nil)

// Service is the download surface consumed by the API layer and the
// auto-download scheduler.
type Service interface {
	// Enqueue registers a download for the episode. Re-enqueueing an
	// episode whose task is still pending or downloading returns the
	// existing task. Returns ErrAlreadyDownloaded when history holds a
	// completed task for the episode, and ErrUnsupportedSourceType for
	// playlist sources.
	Enqueue(ref catalog.EpisodeRef, src *resolver.ResolvedSource) (*Task, error)

	// Cancel stops a pending or downloading task. The partial file is
	// kept on disk so a later enqueue can resume it.
	Cancel(taskID string) error

	// Delete removes a task record and its file from disk.
	Delete(taskID string) error

	// Get returns a snapshot of the task.
	Get(taskID string) (Task, error)

	// Active returns snapshots of pending and downloading tasks in
	// enqueue order.
	Active() []Task

	// History returns snapshots of finished (and restart-paused) tasks.
	History() []Task

	// Known reports whether the episode is already completed or has an
	// active task. Failed and cancelled records do not count; they are
	// re-evaluated as not-yet-downloaded.
	Known(animeID, episodeID string) bool

	// Subscribe registers a listener for task lifecycle events. Events
	// are delivered in publish order, each at most once per subscriber.
	// A subscriber that stops draining its channel is dropped and its
	// channel closed; receivers must treat a close as "resubscribe and
	// re-read state". The cancel func releases the subscription.
	Subscribe() (<-chan Event, func())

	// SetMaxConcurrent adjusts the concurrency cap and starts queued
	// tasks if the cap grew.
	SetMaxConcurrent(n int)

	// SetDirectory changes the target directory for tasks enqueued from
	// now on. Tasks already holding a file path keep it.
	SetDirectory(dir string)
}

// Manager implements Service. All task and queue state is guarded by mu;
// completion callbacks run on separate goroutines and must serialize
// through it.
type Manager struct {
	mu      sync.Mutex
	tasks   map[string]*Task // active tasks by id
	queue   []string         // FIFO of pending task ids
	history []*Task
	sources map[string]resolver.ResolvedSource // ephemeral, by task id
	cancels map[string]context.CancelFunc
	active  int // tasks currently downloading

	maxConcurrent int
	dir           string
	client        *http.Client
	st            store.Store
	events        *broadcaster
	sampleEvery   time.Duration

	log *slog.Logger
}

// NewManager creates a download manager rooted at dir. Task history is
// loaded from the store; records left pending or downloading by a previous
// run become paused so a later enqueue resumes them.
func NewManager(dir string, maxConcurrent int, transferTimeout time.Duration, st store.Store) (*Manager, error) {
	m := &Manager{
		tasks:         make(map[string]*Task),
		sources:       make(map[string]resolver.ResolvedSource),
		cancels:       make(map[string]context.CancelFunc),
		maxConcurrent: maxConcurrent,
		dir:           dir,
		client:        fetch.NewStreamClient(transferTimeout),
		st:            st,
		events:        newBroadcaster(),
		sampleEvery:   time.Second,
		log:           slog.With("component", "download-manager"),
	}

	if err := m.loadHistory(); err != nil {
		return nil, fmt.Errorf("load download history: %w", err)
	}
	return m, nil
}

func (m *Manager) loadHistory() error {
	var records []*Task
	err := m.st.Get(historyKey, &records)
	if err == store.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	changed := false
	for _, t := range records {
		if t.Status.IsActive() {
			t.Status = StatusPaused
			changed = true
		}
	}
	m.history = records
	if changed {
		return m.st.Set(historyKey, m.history)
	}
	return nil
}

// persistHistoryLocked writes the history list through the store.
// Persistence failures are logged, not fatal: the in-memory record stays
// authoritative for this run.
func (m *Manager) persistHistoryLocked() {
	if err := m.st.Set(historyKey, m.history); err != nil {
		m.log.Error("failed to persist download history", "error", err)
	}
}

// Enqueue implements Service.
func (m *Manager) Enqueue(ref catalog.EpisodeRef, src *resolver.ResolvedSource) (*Task, error) {
	if src.IsPlaylist {
		return nil, ErrUnsupportedSourceType
	}

	id := TaskID(ref.AnimeID, ref.ID)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Duplicate enqueue of an active task is an idempotent no-op.
	if existing, ok := m.tasks[id]; ok {
		snapshot := *existing
		return &snapshot, nil
	}

	// Failed and cancelled records stay in history as a log; the episode
	// is re-evaluated as not yet downloaded and gets a fresh task.
	var task *Task
	pausedIdx := -1
	for i, h := range m.history {
		if h.ID != id {
			continue
		}
		if h.Status == StatusCompleted {
			return nil, ErrAlreadyDownloaded
		}
		if h.Status == StatusPaused {
			pausedIdx = i
		}
	}
	if pausedIdx >= 0 {
		// Resume the interrupted record: partial bytes stay on disk
		// and in the counters.
		task = m.history[pausedIdx]
		task.Status = StatusPending
		task.ErrorMessage = ""
		task.EndTime = time.Time{}
		m.history = append(m.history[:pausedIdx], m.history[pausedIdx+1:]...)
	}

	if task == nil {
		task = &Task{
			ID:       id,
			Episode:  ref,
			Status:   StatusPending,
			FilePath: taskFilePath(m.dir, ref),
		}
	}

	m.tasks[id] = task
	m.sources[id] = *src
	m.queue = append(m.queue, id)

	m.events.publish(Event{Type: EventQueued, Task: *task})
	m.startNextLocked()

	snapshot := *task
	return &snapshot, nil
}

// startNextLocked admits queued tasks while capacity allows. This is the
// only place a transfer is started.
func (m *Manager) startNextLocked() {
	for m.active < m.maxConcurrent && len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]

		task, ok := m.tasks[id]
		if !ok || task.Status != StatusPending {
			continue
		}

		task.Status = StatusDownloading
		task.StartTime = time.Now()
		m.active++

		ctx, cancel := context.WithCancel(context.Background())
		m.cancels[id] = cancel
		src := m.sources[id]

		m.events.publish(Event{Type: EventStarted, Task: *task})
		m.log.Info("download started",
			"task", id,
			"episode", task.Episode.EpisodeNum,
			"anime", task.Episode.AnimeTitle,
		)

		go m.run(ctx, task, src)
	}
}

// run executes one transfer and finalizes the task.
func (m *Manager) run(ctx context.Context, task *Task, src resolver.ResolvedSource) {
	err := m.transfer(ctx, task, src)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.active--
	delete(m.cancels, task.ID)
	delete(m.sources, task.ID)

	if _, tracked := m.tasks[task.ID]; !tracked {
		// Deleted mid-flight; nothing to record.
		m.startNextLocked()
		return
	}
	delete(m.tasks, task.ID)

	task.EndTime = time.Now()
	task.SpeedBytesPerSec = 0

	var ev EventType
	switch {
	case task.Status == StatusCancelled:
		ev = EventCancelled
		m.log.Info("download cancelled", "task", task.ID)
	case err != nil:
		task.Status = StatusFailed
		task.ErrorMessage = err.Error()
		ev = EventFailed
		m.log.Warn("download failed", "task", task.ID, "error", err)
	default:
		task.Status = StatusCompleted
		ev = EventCompleted
		m.log.Info("download completed",
			"task", task.ID,
			"bytes", task.DownloadedBytes,
			"path", task.FilePath,
		)
	}

	m.history = append(m.history, task)
	m.persistHistoryLocked()
	m.events.publish(Event{Type: ev, Task: *task})

	m.startNextLocked()
}

// transfer performs the HTTP fetch and disk write for one task, resuming
// from an existing partial file when the origin honors ranges.
func (m *Manager) transfer(ctx context.Context, task *Task, src resolver.ResolvedSource) error {
	if err := os.MkdirAll(filepath.Dir(task.FilePath), 0755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	var offset int64
	if fi, err := os.Stat(task.FilePath); err == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.MediaURL, nil)
	if err != nil {
		return fmt.Errorf("build media request: %w", err)
	}
	fetch.BrowserHeaders(req, task.Episode.PageURL)
	if len(src.Cookies) > 0 {
		req.Header.Set("Cookie", fetch.CookieHeader(src.Cookies))
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch media: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			m.log.Warn("failed to close media body", "error", closeErr)
		}
	}()

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		flags |= os.O_APPEND
	case offset > 0 && resp.StatusCode == http.StatusOK:
		// Origin ignored the range; appending the full body to the
		// partial file would corrupt it. Restart from zero.
		m.log.Warn("origin ignored range request, restarting transfer",
			"task", task.ID, "had_bytes", offset)
		flags |= os.O_TRUNC
		offset = 0
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		flags |= os.O_TRUNC
	default:
		return fmt.Errorf("fetch media: status %s", resp.Status)
	}

	body := bufio.NewReader(resp.Body)
	if offset == 0 {
		// The resolver classifies playlists by URL suffix; an origin can
		// still serve a manifest from an mp4-looking URL. Never save one
		// as an episode file. Resumed transfers start mid-file and
		// cannot be sniffed.
		if head, peekErr := body.Peek(7); peekErr == nil && string(head) == "#EXTM3U" {
			return ErrUnsupportedSourceType
		}
	}

	out, err := os.OpenFile(task.FilePath, flags, 0644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil {
			m.log.Warn("failed to close output file", "error", closeErr)
		}
	}()

	m.mu.Lock()
	task.DownloadedBytes = offset
	task.TotalBytes = totalSize(resp, offset)
	m.mu.Unlock()

	buf := make([]byte, 32*1024)
	lastSample := time.Now()
	var lastBytes int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("write output file: %w", writeErr)
			}

			m.mu.Lock()
			task.DownloadedBytes += int64(n)
			// Instantaneous speed over the last sample window, so
			// stalls are visible instead of averaged away.
			if elapsed := time.Since(lastSample); elapsed >= m.sampleEvery {
				delta := task.DownloadedBytes - offset - lastBytes
				task.SpeedBytesPerSec = int64(float64(delta) / elapsed.Seconds())
				lastBytes = task.DownloadedBytes - offset
				lastSample = time.Now()
				m.events.publish(Event{Type: EventProgress, Task: *task})
			}
			m.mu.Unlock()
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read media body: %w", readErr)
		}
	}
}

// totalSize derives the full file size from the response: the
// Content-Range total for honored range requests, resumed offset plus
// Content-Length otherwise.
func totalSize(resp *http.Response, offset int64) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndexByte(cr, '/'); i >= 0 && cr[i+1:] != "*" {
			if total, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
				return total
			}
		}
	}
	if resp.ContentLength > 0 {
		return offset + resp.ContentLength
	}
	return 0
}

// Cancel implements Service.
func (m *Manager) Cancel(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}

	switch task.Status {
	case StatusPending:
		m.removeFromQueueLocked(taskID)
		delete(m.tasks, taskID)
		delete(m.sources, taskID)
		task.Status = StatusCancelled
		task.EndTime = time.Now()
		m.history = append(m.history, task)
		m.persistHistoryLocked()
		m.events.publish(Event{Type: EventCancelled, Task: *task})
		return nil
	case StatusDownloading:
		// The transfer goroutine observes the context and finalizes.
		task.Status = StatusCancelled
		if cancel, ok := m.cancels[taskID]; ok {
			cancel()
		}
		return nil
	default:
		return ErrNotCancellable
	}
}

// Delete implements Service.
func (m *Manager) Delete(taskID string) error {
	m.mu.Lock()

	var filePath string
	found := false

	if task, ok := m.tasks[taskID]; ok {
		found = true
		filePath = task.FilePath
		m.removeFromQueueLocked(taskID)
		delete(m.tasks, taskID)
		delete(m.sources, taskID)
		if cancel, ok := m.cancels[taskID]; ok {
			cancel()
		}
	}

	for i, h := range m.history {
		if h.ID == taskID {
			found = true
			filePath = h.FilePath
			m.history = append(m.history[:i], m.history[i+1:]...)
			m.persistHistoryLocked()
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return ErrTaskNotFound
	}

	if filePath != "" {
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove download file: %w", err)
		}
	}
	return nil
}

func (m *Manager) removeFromQueueLocked(taskID string) {
	for i, id := range m.queue {
		if id == taskID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// Get implements Service.
func (m *Manager) Get(taskID string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task, ok := m.tasks[taskID]; ok {
		return *task, nil
	}
	for _, h := range m.history {
		if h.ID == taskID {
			return *h, nil
		}
	}
	return Task{}, ErrTaskNotFound
}

// Active implements Service.
func (m *Manager) Active() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Task, 0, len(m.tasks))
	// Downloading tasks first, then the queue in FIFO order.
	for _, t := range m.tasks {
		if t.Status == StatusDownloading {
			out = append(out, *t)
		}
	}
	for _, id := range m.queue {
		if t, ok := m.tasks[id]; ok && t.Status == StatusPending {
			out = append(out, *t)
		}
	}
	return out
}

// History implements Service.
func (m *Manager) History() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Task, 0, len(m.history))
	for _, h := range m.history {
		out = append(out, *h)
	}
	return out
}

// Known implements Service.
func (m *Manager) Known(animeID, episodeID string) bool {
	id := TaskID(animeID, episodeID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; ok {
		return true
	}
	for _, h := range m.history {
		if h.ID == id && h.Status == StatusCompleted {
			return true
		}
	}
	return false
}

// Subscribe implements Service.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.events.subscribe()
}

// SetMaxConcurrent implements Service.
func (m *Manager) SetMaxConcurrent(n int) {
	if n < 1 {
		n = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxConcurrent = n
	m.startNextLocked()
}

// SetDirectory implements Service.
func (m *Manager) SetDirectory(dir string) {
	if dir == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dir = dir
}
