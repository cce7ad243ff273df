package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	app "github.com/okian/pepai/internal/app"
	"github.com/okian/pepai/internal/config"
	"github.com/okian/pepai/pkg/logger"
)

const sessionJSON = `{"id":"s1","title":"Tuesday","date":"2026-10-13","team":"U12","drills":[{"id":"d1","name":"Rondo","positions":[{"id":"p1","type":"player","x":10.456,"y":20}]}]}`

// run executes the root command with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv(configEnvVar, "")
	t.Setenv("PEPAI_SQLITE_PATH", filepath.Join(dir, "pepai.db"))
	t.Setenv("PEPAI_DRAFTS_DIR", filepath.Join(dir, "drafts"))
	t.Setenv("PEPAI_WORKER_COUNT", "1")
	t.Setenv("GEMINI_API_KEY", "")
	return dir
}

func TestShareCommands(t *testing.T) {
	Convey("Given the share commands", t, func() {
		isolate(t)

		Convey("A session survives encode then decode", func() {
			payload, err := run(t, sessionJSON, "share", "encode")
			So(err, ShouldBeNil)
			payload = strings.TrimSpace(payload)
			So(payload, ShouldNotBeEmpty)

			out, err := run(t, "", "share", "decode", payload)
			So(err, ShouldBeNil)
			var got map[string]any
			So(json.Unmarshal([]byte(out), &got), ShouldBeNil)
			So(got["title"], ShouldEqual, "Tuesday")
			So(got["team"], ShouldEqual, "U12")

			Convey("And as YAML from a full link", func() {
				link, err := run(t, sessionJSON, "share", "encode", "--base-url", "https://pep.example/")
				So(err, ShouldBeNil)
				So(link, ShouldStartWith, "https://pep.example/?data=")

				out, err := run(t, "", "share", "decode", "-f", "yaml", strings.TrimSpace(link))
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "title: Tuesday")
				So(out, ShouldContainSubstring, "x: 10.46")
			})
		})

		Convey("Bad input fails", func() {
			_, err := run(t, "{", "share", "encode")
			So(err, ShouldNotBeNil)

			_, err = run(t, "", "share", "decode", "%%%")
			So(err, ShouldNotBeNil)

			payload, _ := run(t, sessionJSON, "share", "encode")
			_, err = run(t, "", "share", "decode", "-f", "xml", strings.TrimSpace(payload))
			So(err, ShouldNotBeNil)
		})

		Convey("An id link reads the store", func() {
			_, err := run(t, "", "share", "decode", "https://pep.example/?id=missing")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "missing")
		})
	})
}

func TestBillingCommands(t *testing.T) {
	Convey("Given the billing commands on a fresh store", t, func() {
		isolate(t)

		Convey("A uid is required", func() {
			_, err := run(t, "", "billing", "account")
			So(err, ShouldEqual, errNoUID)
		})

		Convey("An unknown user cannot renew", func() {
			_, err := run(t, "", "billing", "simulate-renewal", "--uid", "ghost")
			So(err, ShouldNotBeNil)
		})

		Convey("A renewal without a subscription grants nothing", func() {
			out, err := run(t, "", "billing", "account", "--uid", "coach")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"subscriptionStatus": "none"`)

			out, err = run(t, "", "billing", "simulate-renewal", "--uid", "coach")
			So(err, ShouldBeNil)
			var r map[string]any
			So(json.Unmarshal([]byte(out), &r), ShouldBeNil)
			So(r["outcome"], ShouldEqual, "skipped")
			So(r["paymentId"], ShouldStartWith, "test_renewal_")
		})
	})
}

func TestServeMux(t *testing.T) {
	Convey("Given a started service", t, func() {
		dir := isolate(t)
		cfg := config.New()
		cfg.SQLitePath = filepath.Join(dir, "serve.db")
		cfg.DraftsDir = filepath.Join(dir, "drafts")
		cfg.WorkerCount = 1
		cfg.MockUID = "coach"

		ctx := context.Background()
		svc := app.New(cfg, app.WithLogger(logger.Nop()))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		mux, err := newMux(ctx, cfg, svc, logger.Nop())
		So(err, ShouldBeNil)

		Convey("Health, docs and the API are routed", func() {
			for _, path := range []string{"/healthz", "/stats", "/api-docs", "/openapi.yaml", "/api/me", "/api/history"} {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
				So(w.Code, ShouldEqual, http.StatusOK)
			}
		})

		Convey("A bad client directory is refused", func() {
			cfg.StaticDir = filepath.Join(dir, "nowhere")
			_, err := newMux(ctx, cfg, svc, logger.Nop())
			So(err, ShouldNotBeNil)
		})

		Convey("Generation reports the missing model", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/drills", strings.NewReader(`{"prompt":"a rondo"}`)))
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	Convey("Updating system metrics does not panic", t, func() {
		So(updateSystemMetrics, ShouldNotPanic)
	})
}
