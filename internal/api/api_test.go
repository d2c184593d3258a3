package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seiyaku/anibridge/internal/catalog"
	"github.com/seiyaku/anibridge/internal/download"
	"github.com/seiyaku/anibridge/internal/resolver"
	"github.com/seiyaku/anibridge/internal/scheduler"
)

type fakeResolver struct {
	sources map[string]*resolver.ResolvedSource
	err     error
}

func (r *fakeResolver) Resolve(ctx context.Context, pageURL string) (*resolver.ResolvedSource, error) {
	if r.err != nil {
		return nil, r.err
	}
	src, ok := r.sources[pageURL]
	if !ok {
		return nil, resolver.ErrNoSource
	}
	return src, nil
}

type fakeDownloads struct {
	tasks      map[string]download.Task
	history    []download.Task
	enqueueErr error
}

func newFakeDownloads() *fakeDownloads {
	return &fakeDownloads{tasks: make(map[string]download.Task)}
}

func (d *fakeDownloads) Enqueue(ref catalog.EpisodeRef, src *resolver.ResolvedSource) (*download.Task, error) {
	if d.enqueueErr != nil {
		return nil, d.enqueueErr
	}
	t := download.Task{
		ID:      download.TaskID(ref.AnimeID, ref.ID),
		Episode: ref,
		Status:  download.StatusPending,
	}
	d.tasks[t.ID] = t
	return &t, nil
}

func (d *fakeDownloads) Cancel(taskID string) error {
	if _, ok := d.tasks[taskID]; !ok {
		return download.ErrTaskNotFound
	}
	return nil
}

func (d *fakeDownloads) Delete(taskID string) error {
	if _, ok := d.tasks[taskID]; !ok {
		return download.ErrTaskNotFound
	}
	delete(d.tasks, taskID)
	return nil
}

func (d *fakeDownloads) Get(taskID string) (download.Task, error) {
	t, ok := d.tasks[taskID]
	if !ok {
		return download.Task{}, download.ErrTaskNotFound
	}
	return t, nil
}

func (d *fakeDownloads) Active() []download.Task {
	out := make([]download.Task, 0, len(d.tasks))
	for _, t := range d.tasks {
		out = append(out, t)
	}
	return out
}

func (d *fakeDownloads) History() []download.Task { return d.history }
func (d *fakeDownloads) Known(a, e string) bool { return false }
func (d *fakeDownloads) SetMaxConcurrent(n int) {}
func (d *fakeDownloads) SetDirectory(dir string) {}
func (d *fakeDownloads) Subscribe() (<-chan download.Event, func()) {
	return make(chan download.Event), func() {}
}

type fakeScheduler struct {
	cfg     scheduler.AutoDownloadConfig
	running bool
}

func (s *fakeScheduler) Start() { s.running = true }
func (s *fakeScheduler) Stop() { s.running = false }
func (s *fakeScheduler) Running() bool { return s.running }

func (s *fakeScheduler) Config() scheduler.AutoDownloadConfig { return s.cfg }

func (s *fakeScheduler) UpdateConfig(cfg scheduler.AutoDownloadConfig) error {
	s.cfg = cfg
	return nil
}

func (s *fakeScheduler) Preview(entries []catalog.Entry) []catalog.Entry {
	matched := make([]catalog.Entry, 0)
	for _, e := range entries {
		if strings.Contains(e.Title, "Match") {
			matched = append(matched, e)
		}
	}
	return matched
}

func testServer(res *fakeResolver, dl *fakeDownloads, sched *fakeScheduler) *Server {
	if res == nil {
		res = &fakeResolver{}
	}
	if dl == nil {
		dl = newFakeDownloads()
	}
	if sched == nil {
		sched = &fakeScheduler{}
	}
	return NewServer(res, nil, dl, sched, nil, nil)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestResolveEndpoint(t *testing.T) {
	res := &fakeResolver{sources: map[string]*resolver.ResolvedSource{
		"https://animeseed.tv/watch/1": {
			MediaURL:   "https://cdn.example/1.m3u8",
			IsPlaylist: true,
		},
	}}
	s := testServer(res, nil, nil)

	w := doJSON(t, s, http.MethodPost, "/api/resolve",
		`{"page_url":"https://animeseed.tv/watch/1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var got ResolveResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.MediaURL != "https://cdn.example/1.m3u8" || !got.IsPlaylist {
		t.Errorf("response = %+v", got)
	}
}

func TestResolveEndpointErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unsupported domain", resolver.ErrUnsupportedDomain, http.StatusBadRequest},
		{"player not found", resolver.ErrPlayerNotFound, http.StatusNotFound},
		{"no source", resolver.ErrNoSource, http.StatusNotFound},
		{"network failure", &resolver.NetworkError{Op: "fetch", URL: "x", Err: errors.New("timeout")}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(&fakeResolver{err: tt.err}, nil, nil)
			w := doJSON(t, s, http.MethodPost, "/api/resolve",
				`{"page_url":"https://animeseed.tv/watch/1"}`)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestResolveEndpointMissingBody(t *testing.T) {
	s := testServer(nil, nil, nil)
	w := doJSON(t, s, http.MethodPost, "/api/resolve", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStartDownload(t *testing.T) {
	res := &fakeResolver{sources: map[string]*resolver.ResolvedSource{
		"https://animeseed.tv/watch/1": {MediaURL: "https://cdn.example/1.mp4"},
	}}
	dl := newFakeDownloads()
	s := testServer(res, dl, nil)

	w := doJSON(t, s, http.MethodPost, "/api/downloads", `{
		"page_url":"https://animeseed.tv/watch/1",
		"anime_id":"a1","anime_title":"Show","episode_id":"e1","episode_num":1
	}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var got DownloadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "a1:e1" || got.Status != "pending" {
		t.Errorf("response = %+v", got)
	}
}

func TestStartDownloadConflicts(t *testing.T) {
	res := &fakeResolver{sources: map[string]*resolver.ResolvedSource{
		"https://animeseed.tv/watch/1": {MediaURL: "https://cdn.example/1.mp4"},
	}}

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"already downloaded", download.ErrAlreadyDownloaded, http.StatusConflict},
		{"playlist source", download.ErrUnsupportedSourceType, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dl := newFakeDownloads()
			dl.enqueueErr = tt.err
			s := testServer(res, dl, nil)

			w := doJSON(t, s, http.MethodPost, "/api/downloads", `{
				"page_url":"https://animeseed.tv/watch/1",
				"anime_id":"a1","anime_title":"Show","episode_id":"e1","episode_num":1
			}`)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestGetDownloadNotFound(t *testing.T) {
	s := testServer(nil, nil, nil)
	w := doJSON(t, s, http.MethodGet, "/api/downloads/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCancelDownloadNotFound(t *testing.T) {
	s := testServer(nil, nil, nil)
	w := doJSON(t, s, http.MethodPost, "/api/downloads/missing/cancel", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAutoDownloadConfigRoundTrip(t *testing.T) {
	sched := &fakeScheduler{}
	s := testServer(nil, nil, sched)

	w := doJSON(t, s, http.MethodPut, "/api/autodownload/config", `{
		"enabled": true,
		"checkIntervalHours": 12,
		"maxConcurrentDownloads": 2,
		"filters": {"specificYears": [2024]}
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/api/autodownload/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got scheduler.AutoDownloadConfig
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.Enabled || got.CheckIntervalHours != 12 || len(got.Filters.SpecificYears) != 1 {
		t.Errorf("config = %+v", got)
	}
}

func TestPreviewFilter(t *testing.T) {
	s := testServer(nil, nil, &fakeScheduler{})

	w := doJSON(t, s, http.MethodPost, "/api/autodownload/preview", `{
		"entries": [
			{"id":"a1","title":"Match One"},
			{"id":"a2","title":"Other"}
		]
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var got PreviewResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 1 || got.Matches[0].ID != "a1" {
		t.Errorf("response = %+v", got)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := testServer(nil, nil, nil)
	w := doJSON(t, s, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
