package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestServeRangePassthrough(t *testing.T) {
	payload := []byte("0123456789abcdef")

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("origin request missing User-Agent")
		}
		if got := r.Header.Get("Cookie"); !strings.Contains(got, "session=tok") {
			t.Errorf("Cookie header = %q, want session=tok", got)
		}
		// Honor a simple "bytes=N-" range.
		rng := r.Header.Get("Range")
		if rng == "" {
			t.Fatal("origin did not receive Range header")
		}
		start, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-"))
		if err != nil {
			t.Fatalf("unexpected range %q", rng)
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(payload)-1, len(payload)))
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)-start))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload[start:])
	}))
	defer origin.Close()

	r := New(time.Minute)
	rec := httptest.NewRecorder()
	err := r.Serve(context.Background(), rec, Request{
		MediaURL:    origin.URL + "/ep1.mp4",
		Cookies:     map[string]string{"session": "tok"},
		RangeHeader: "bytes=6-",
		Referer:     "https://animeseed.tv/watch/ep1",
	})
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	if rec.Code != http.StatusPartialContent {
		t.Errorf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 6-15/16" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Accept-Ranges = %q", got)
	}
	if got := rec.Body.String(); got != "6789abcdef" {
		t.Errorf("body = %q, want tail of payload", got)
	}
}

func TestServeRewritesManifest(t *testing.T) {
	const manifest = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n#EXTINF:9.0,\nseg0.ts\n#EXT-X-ENDLIST\n"

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Deliberately generic content type: the relay must sniff.
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(manifest))
	}))
	defer origin.Close()

	r := New(time.Minute)
	rec := httptest.NewRecorder()
	err := r.Serve(context.Background(), rec, Request{
		MediaURL: origin.URL + "/vod/index.m3u8",
	})
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "application/vnd.apple.mpegurl" {
		t.Errorf("Content-Type = %q", got)
	}
	if want := origin.URL + "/vod/seg0.ts"; !strings.Contains(rec.Body.String(), want) {
		t.Errorf("rewritten manifest missing %q:\n%s", want, rec.Body.String())
	}
}

func TestServeUpstreamFailure(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer origin.Close()

	r := New(time.Minute)
	rec := httptest.NewRecorder()
	err := r.Serve(context.Background(), rec, Request{MediaURL: origin.URL + "/ep.mp4"})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("Serve() error = %v, want ErrUpstream", err)
	}
}

func TestServeFullFile(t *testing.T) {
	payload := "full file body"
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Accept-Ranges", "bytes")
		_, _ = w.Write([]byte(payload))
	}))
	defer origin.Close()

	r := New(time.Minute)
	rec := httptest.NewRecorder()
	if err := r.Serve(context.Background(), rec, Request{MediaURL: origin.URL + "/ep.mp4"}); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != payload {
		t.Errorf("body = %q", rec.Body.String())
	}
}
