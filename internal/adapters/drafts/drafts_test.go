package drafts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/session"
	"github.com/okian/pepai/pkg/logger"
)

func TestDrafts(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC)
	clock := func() time.Time { return at }

	Convey("Given an encrypted drafts store", t, func() {
		dir := t.TempDir()
		store, err := Open(ctx, dir, "correct horse", WithLogger(logger.Nop()), WithClock(clock))
		So(err, ShouldBeNil)

		sess := session.New("U10 Tuesday", "Lions")
		d := drill.New()
		d.Name = "Rondo"
		sess.Add(d)

		Convey("A missing draft is not found", func() {
			_, err := store.Load(ctx, "u1")
			So(err, ShouldEqual, ErrNotFound)
		})

		Convey("A saved draft loads back", func() {
			_, err := store.Save(ctx, "u1", sess)
			So(err, ShouldBeNil)

			got, err := store.Load(ctx, "u1")
			So(err, ShouldBeNil)
			So(got.SavedAt.Equal(at), ShouldBeTrue)
			So(got.Session.Title, ShouldEqual, "U10 Tuesday")
			So(got.Session.Drills, ShouldHaveLength, 1)
			So(got.Session.Drills[0].Name, ShouldEqual, "Rondo")

			Convey("and other users do not see it", func() {
				_, err := store.Load(ctx, "u2")
				So(err, ShouldEqual, ErrNotFound)
			})

			Convey("and the file on disk does not contain the plaintext", func() {
				raw, err := os.ReadFile(filepath.Join(dir, fileName("u1")))
				So(err, ShouldBeNil)
				So(string(raw), ShouldNotContainSubstring, "U10 Tuesday")
			})

			Convey("and reopening with the same passphrase reads it", func() {
				again, err := Open(ctx, dir, "correct horse", WithLogger(logger.Nop()))
				So(err, ShouldBeNil)
				got, err := again.Load(ctx, "u1")
				So(err, ShouldBeNil)
				So(got.Session.ID, ShouldEqual, sess.ID)
			})

			Convey("and deleting it hides it", func() {
				So(store.Delete(ctx, "u1"), ShouldBeNil)
				_, err := store.Load(ctx, "u1")
				So(err, ShouldEqual, ErrNotFound)
			})
		})

		Convey("Opening without the passphrase is refused", func() {
			_, err := Open(ctx, dir, "", WithLogger(logger.Nop()))
			So(err, ShouldEqual, ErrKeyWithoutPassphrase)
		})

		Convey("An empty user id is rejected", func() {
			_, err := store.Save(ctx, "", sess)
			So(err, ShouldEqual, ErrNoUser)
		})
	})

	Convey("Given an unencrypted drafts store", t, func() {
		store, err := Open(ctx, t.TempDir(), "", WithLogger(logger.Nop()))
		So(err, ShouldBeNil)

		Convey("Drafts still round-trip", func() {
			sess := session.New("Open", "U8")
			_, err := store.Save(ctx, "u/1", sess)
			So(err, ShouldBeNil)
			got, err := store.Load(ctx, "u/1")
			So(err, ShouldBeNil)
			So(got.Session.Title, ShouldEqual, "Open")
			So(got.Session.Drills, ShouldNotBeNil)
		})
	})
}
