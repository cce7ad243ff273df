package session_test

import (
	"testing"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/session"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSession(t *testing.T) {
	Convey("Given a new session", t, func() {
		s := session.New("Tuesday", "U12")

		So(s.ID, ShouldNotBeEmpty)
		So(s.Date, ShouldNotBeEmpty)
		So(s.Drills, ShouldBeEmpty)

		Convey("When drills are added and replaced", func() {
			a := drill.New()
			b := drill.New()
			s.Add(a)
			s.Add(b)
			a.Name = "Renamed"
			s.Add(a)

			Convey("Then order is kept and the id is replaced in place", func() {
				So(len(s.Drills), ShouldEqual, 2)
				So(s.Drills[0].Name, ShouldEqual, "Renamed")
			})

			Convey("And removal reports presence", func() {
				So(s.Remove(b.ID), ShouldBeTrue)
				So(s.Remove(b.ID), ShouldBeFalse)
				So(len(s.Drills), ShouldEqual, 1)
			})
		})
	})
}

func TestDecode(t *testing.T) {
	Convey("Given a stored session with a legacy drill", t, func() {
		doc := []byte(`{"id":"s1","title":"Match prep","date":"2024-05-01","team":"First XI",
			"drills":[{"id":"d1","name":"Finishing","category":"Finishing","positions":[{"x":10,"y":10,"label":"1","type":"player"}],"arrows":[]}],
			"notes":"bring bibs"}`)

		s, err := session.Decode(doc)

		Convey("Then drills are normalized", func() {
			So(err, ShouldBeNil)
			So(s.ID, ShouldEqual, "s1")
			So(s.Notes, ShouldEqual, "bring bibs")
			So(s.Drills[0].ID, ShouldEqual, "d1")
			So(s.Drills[0].Categories, ShouldResemble, []drill.Category{drill.Technical})
			So(s.Drills[0].Positions[0].ID, ShouldNotBeEmpty)
		})
	})

	Convey("Given invalid json", t, func() {
		_, err := session.Decode([]byte(`{"drills": 3}`))
		So(err, ShouldNotBeNil)
	})
}
