package share_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/session"
	"github.com/okian/pepai/internal/share"
	. "github.com/smartystreets/goconvey/convey"
)

// Links produced by the web client for the sessions below.
const (
	clientLink = "N4IgliBcIM4IwgDQgC5RAVTgBgAQBUBXAUxgBMBDATyRDPQCZsGBWAWmwGYOAWWlALboAMmAD2AOxi0yAJygBtUBGhkEyCegBKksmNoBjCimIBzMbLClFIfBQMowRgDYgAusjKF50OCyHIAA7oOLTS0ADilvTIYFI2AAoUMNIeIAbBkAogAMpGmmnONNCm0bSBYuFK4OiB6iAAHlBwDAB0nCzIxSzYyK6+-MUggc7UxPLIBvrQAMSsAGycxABGIAC+aRSyPtUqIBT1MGiQoE2QOF3N2GvIxJonjVBMrZ0gxZzXyChDgcnSGwCgA"
	legacyLink = "N4IgliBcIPYDYBMQBoQBcogDIFMDmAhgMYCeKIS0ATAAxUAsAtDQIzMvloC2mAqi1XIIATlADaoCNAQBOcgDtMAMTDywAZwAWqvAAIRYOHHJFlqjdvl4hAV1HUaPVAAdMADnLrMAIRgAPclUvSDEQAGVNGBgMAF1UIlcQ7BgAdxA4kGcYYIkQAMgAVhpUMkhaVGNoAHEAaU5SzLgCEhxRAF8MgmF7MRiO1HkMaG9hHV0AIzBxrzagA"
)

func tuesday() session.Session {
	return session.Session{
		ID:    "s1",
		Title: "U10 Tuesday",
		Date:  "2025-03-04",
		Team:  "Lions",
		Drills: []drill.Drill{{
			ID:             "d1",
			Name:           "Rondo",
			Categories:     []drill.Category{drill.Tactical},
			Duration:       "15m",
			Players:        "10",
			Setup:          "Grid",
			Instructions:   []string{"Pass"},
			CoachingPoints: []string{"Scan"},
			Layout:         drill.LayoutGrid,
			Positions: []drill.Position{
				{ID: "p1", X: 12.345, Y: 50, Label: "1", Type: drill.Player, Color: drill.PlayerColor},
			},
			Arrows: []drill.Arrow{
				{ID: "a1", Start: drill.Point{X: 10, Y: 10}, End: drill.Point{X: 20.5, Y: 30.004}, Type: drill.Pass},
			},
		}},
	}
}

func TestCompress(t *testing.T) {
	Convey("Given a session", t, func() {
		s := tuesday()

		Convey("When it is compressed", func() {
			link, err := share.Compress(s)
			So(err, ShouldBeNil)

			Convey("Then the link matches what the web client produces", func() {
				So(link, ShouldEqual, clientLink)
			})

			Convey("Then the input session is not modified", func() {
				So(s.Drills[0].Positions[0].X, ShouldEqual, 12.345)
			})

			Convey("Then decompressing restores it with rounded coordinates", func() {
				got, err := share.Decompress(link)
				So(err, ShouldBeNil)

				want := tuesday()
				want.Drills[0].Positions[0].X = 12.35
				want.Drills[0].Arrows[0].End.Y = 30
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("round trip mismatch (-want +got):\n%s", diff)
				}
			})
		})
	})

	Convey("Given arbitrary unicode text", t, func() {
		s := session.New("Entraînement ⚽ 😀", "Équipe <A&B>")
		s.Notes = "Ünïcödé notes"

		link, err := share.Compress(s)
		So(err, ShouldBeNil)
		got, err := share.Decompress(link)
		So(err, ShouldBeNil)
		So(got.Title, ShouldEqual, s.Title)
		So(got.Team, ShouldEqual, s.Team)
		So(got.Notes, ShouldEqual, s.Notes)
	})
}

func TestDecompress(t *testing.T) {
	Convey("Given a legacy link with a single category and no element ids", t, func() {
		s, err := share.Decompress(legacyLink)

		Convey("Then it decodes into a canonical session", func() {
			So(err, ShouldBeNil)
			So(s.ID, ShouldEqual, "old")
			So(s.Title, ShouldEqual, "Legacy")
			So(s.Notes, ShouldEqual, "Bring bibs")
			So(len(s.Drills), ShouldEqual, 1)

			d := s.Drills[0]
			So(d.ID, ShouldEqual, "d9")
			So(d.Categories, ShouldResemble, []drill.Category{drill.Technical})
			So(d.Layout, ShouldEqual, drill.LayoutFull)
			So(d.Positions[0].ID, ShouldNotBeEmpty)
			So(d.Positions[0].Label, ShouldEqual, "GK")
		})
	})

	Convey("Given a link with spaces where plus signs were", t, func() {
		link, err := share.Compress(tuesday())
		So(err, ShouldBeNil)
		So(link, ShouldContainSubstring, "+")

		mangled := []rune(link)
		for i, r := range mangled {
			if r == '+' {
				mangled[i] = ' '
			}
		}
		_, err = share.Decompress(string(mangled))
		So(err, ShouldBeNil)
	})

	Convey("Given bad input", t, func() {
		_, err := share.Decompress("")
		So(errors.Is(err, share.ErrEmptyLink), ShouldBeTrue)

		_, err = share.Decompress("not*a*link")
		So(errors.Is(err, share.ErrInvalidLink), ShouldBeTrue)

		_, err = share.Decompress("AAAA")
		So(errors.Is(err, share.ErrInvalidLink), ShouldBeTrue)
	})
}

func TestRound2(t *testing.T) {
	Convey("Given values on the rounding boundary", t, func() {
		So(share.Round2(1.005), ShouldEqual, 1.0)
		So(share.Round2(12.345), ShouldEqual, 12.35)
		So(share.Round2(-0.125), ShouldEqual, -0.12)
		So(share.Round2(99.999), ShouldEqual, 100)
	})
}
