package site

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func writeClient(t *testing.T) string {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o750); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"index.html":       "<!doctype html><title>PepAI</title>",
		"assets/app.js":    "console.log('pep')",
		"assets/style.css": "body{}",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestSiteHandler(t *testing.T) {
	Convey("Given a client build", t, func() {
		h, err := New(writeClient(t))
		So(err, ShouldBeNil)

		mux := http.NewServeMux()
		Register(context.Background(), mux, h)
		mux.HandleFunc("GET /api/me", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

		get := func(target string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
			return w
		}

		Convey("The root and share links serve the app", func() {
			for _, target := range []string{"/", "/?id=abc", "/?data=N4Ig"} {
				w := get(target)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "<title>PepAI</title>")
			}
		})

		Convey("Assets are served as files", func() {
			w := get("/assets/app.js")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "pep")
		})

		Convey("Client routes fall back to index.html", func() {
			w := get("/pricing")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "PepAI")
			So(w.Header().Get("Cache-Control"), ShouldEqual, "no-cache")
		})

		Convey("Missing assets and unknown API paths are 404", func() {
			So(get("/assets/missing.js").Code, ShouldEqual, http.StatusNotFound)
			So(get("/api/unknown").Code, ShouldEqual, http.StatusNotFound)
			So(get("/internal/billing/x").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("API routes still win", func() {
			So(get("/api/me").Code, ShouldEqual, http.StatusTeapot)
		})
	})

	Convey("A directory without index.html is rejected", t, func() {
		_, err := New(t.TempDir())
		So(errors.Is(err, ErrNoIndex), ShouldBeTrue)
	})

	Convey("Register panics on a nil mux", t, func() {
		So(func() { Register(context.Background(), nil, nil) }, ShouldPanic)
	})
}
