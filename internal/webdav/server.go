// Package webdav exposes the download directory over read-only WebDAV so
// media players can browse and stream finished episodes.
package webdav

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/net/webdav"
)

// Server wraps a WebDAV server
type Server struct {
	handler *webdav.Handler
}

// NewServer creates a WebDAV server rooted at the download directory
func NewServer(rootDir string) *Server {
	s := &Server{}

	s.handler = &webdav.Handler{
		Prefix:     "",
		FileSystem: &readonlyFS{dir: webdav.Dir(rootDir)},
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				slog.Debug("WebDAV request",
					"method", r.Method,
					"path", r.URL.Path,
					"error", err,
				)
			} else {
				slog.Debug("WebDAV request",
					"method", r.Method,
					"path", r.URL.Path,
				)
			}
		},
	}

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// readonlyFS rejects every mutation on the underlying directory. The
// download manager is the only writer of the library.
type readonlyFS struct {
	dir webdav.Dir
}

func (fs *readonlyFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return os.ErrPermission
}

func (fs *readonlyFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, os.ErrPermission
	}
	return fs.dir.OpenFile(ctx, name, flag, perm)
}

func (fs *readonlyFS) RemoveAll(ctx context.Context, name string) error {
	return os.ErrPermission
}

func (fs *readonlyFS) Rename(ctx context.Context, oldName, newName string) error {
	return os.ErrPermission
}

func (fs *readonlyFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	return fs.dir.Stat(ctx, name)
}
