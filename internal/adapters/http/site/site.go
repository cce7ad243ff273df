// Package site serves the built web client.
package site

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

const indexFile = "index.html"

// ErrNoIndex is returned when the client directory has no index.html.
var ErrNoIndex = errors.New("site: index.html not found")

// API prefixes never fall back to the client.
var apiPrefixes = []string{"/api/", "/internal/"}

// Handler serves files from a client build. Paths that are not files and
// look like client routes get index.html, so share links such as /?id=...
// and deep links open the app.
type Handler struct {
	files fs.FS
	serve http.Handler
}

// New returns a Handler over dir.
func New(dir string) (*Handler, error) {
	files := os.DirFS(dir)
	if _, err := fs.Stat(files, indexFile); err != nil {
		return nil, fmt.Errorf("%w in %s: %v", ErrNoIndex, dir, err)
	}
	return &Handler{files: files, serve: http.FileServerFS(files)}, nil
}

// Register attaches the client routes to mux.
func Register(_ context.Context, mux *http.ServeMux, h *Handler) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET /", h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, p := range apiPrefixes {
		if strings.HasPrefix(r.URL.Path, p) {
			http.NotFound(w, r)
			return
		}
	}

	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name == "" || h.exists(name) {
		h.serve.ServeHTTP(w, r)
		return
	}
	// Missing assets stay 404s.
	if path.Ext(name) != "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFileFS(w, r, h.files, indexFile)
}

func (h *Handler) exists(name string) bool {
	info, err := fs.Stat(h.files, name)
	return err == nil && !info.IsDir()
}
