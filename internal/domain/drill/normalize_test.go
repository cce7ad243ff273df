package drill_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/pepai/internal/domain/drill"
	. "github.com/smartystreets/goconvey/convey"
)

const rondo = "```json\n" + `{
  "drill": {
    "name": "5v5 Rondo",
    "categories": ["Tactical", "Technical"],
    "duration": "15 mins",
    "players": "10",
    "layout": "grid",
    "setup": "20x20 grid, cones on the corners.",
    "instructions": ["Keep the ball", "Switch on turnover"],
    "coachingPoints": ["Body shape", "Scan before receiving"],
    "positions": [
      {"x": 20, "y": 20, "label": "", "type": "cone"},
      {"x": 80, "y": 20, "label": "", "type": "cone"},
      {"x": 50, "y": 50, "label": "1", "type": "player", "color": "#2563eb"},
      {"x": 140, "y": -5, "label": "2", "type": "player"}
    ],
    "arrows": [
      {"start": {"x": 50, "y": 50}, "end": {"x": 70, "y": 30}, "type": "pass"}
    ]
  }
}` + "\n```"

func TestNormalize(t *testing.T) {
	Convey("Given a fenced, wrapped 5v5 rondo response", t, func() {
		d, err := drill.Normalize(rondo, "")

		Convey("Then it normalizes into a canonical drill", func() {
			So(err, ShouldBeNil)
			So(d.Name, ShouldEqual, "5v5 Rondo")
			So(d.Categories, ShouldResemble, []drill.Category{drill.Tactical, drill.Technical})
			So(d.Layout, ShouldEqual, drill.LayoutGrid)
			So(d.ID, ShouldNotBeEmpty)
			So(len(d.Positions), ShouldEqual, 4)
			So(len(d.Arrows), ShouldEqual, 1)
			So(d.CountType(drill.Player), ShouldEqual, 2)
		})

		Convey("Then every element gets a distinct id", func() {
			ids := map[string]bool{d.ID: true}
			for _, p := range d.Positions {
				So(p.ID, ShouldNotBeEmpty)
				So(ids[p.ID], ShouldBeFalse)
				ids[p.ID] = true
			}
			for _, a := range d.Arrows {
				So(a.ID, ShouldNotBeEmpty)
				So(ids[a.ID], ShouldBeFalse)
				ids[a.ID] = true
			}
		})

		Convey("Then out-of-range coordinates are clamped", func() {
			So(d.Positions[3].X, ShouldEqual, 100)
			So(d.Positions[3].Y, ShouldEqual, 0)
		})
	})

	Convey("Given a legacy drill with a single category", t, func() {
		cases := map[string]drill.Category{
			"Warm-up":     drill.Technical,
			"Finishing":   drill.Technical,
			"Possession":  drill.Tactical,
			"Transition":  drill.Tactical,
			"Mental":      drill.Mental,
			"Situational": drill.Situational,
			"Physical":    drill.Physical,
			"Set Pieces":  drill.Tactical,
		}
		for legacy, want := range cases {
			raw := `{"name":"Old","category":"` + legacy + `","instructions":[]}`
			d, err := drill.Normalize(raw, "")
			So(err, ShouldBeNil)
			So(d.Categories, ShouldResemble, []drill.Category{want})
		}
	})

	Convey("Given a drill without categories", t, func() {
		d, err := drill.Normalize(`{"name":"Bare"}`, "")

		Convey("Then it defaults to the general tag", func() {
			So(err, ShouldBeNil)
			So(d.Categories, ShouldResemble, []drill.Category{drill.DefaultCategory})
			So(d.Instructions, ShouldNotBeNil)
			So(d.Positions, ShouldNotBeNil)
			So(d.Layout, ShouldEqual, drill.LayoutFull)
		})
	})

	Convey("Given both categories and a legacy category", t, func() {
		d, err := drill.Normalize(`{"categories":["Play"],"category":"Finishing"}`, "")

		Convey("Then the array wins", func() {
			So(err, ShouldBeNil)
			So(d.Categories, ShouldResemble, []drill.Category{drill.Play})
		})
	})

	Convey("Given ids on the payload", t, func() {
		raw := `{"id":"payload-id","positions":[{"id":"p1","x":1,"y":1,"type":"ball"},{"id":"p1","x":2,"y":2,"type":"ball"}],"arrows":[{"id":"p1","start":{"x":0,"y":0},"end":{"x":5,"y":5},"type":"run"}]}`

		Convey("When no existing id is supplied", func() {
			d, err := drill.Normalize(raw, "")
			So(err, ShouldBeNil)

			Convey("Then the payload id is kept and duplicates are re-assigned", func() {
				So(d.ID, ShouldEqual, "payload-id")
				So(d.Positions[0].ID, ShouldEqual, "p1")
				So(d.Positions[1].ID, ShouldNotEqual, "p1")
				So(d.Arrows[0].ID, ShouldNotEqual, "p1")
				So(d.Arrows[0].ID, ShouldNotEqual, d.Positions[1].ID)
			})
		})

		Convey("When the caller supplies the id", func() {
			d, err := drill.Normalize(raw, "existing")
			So(err, ShouldBeNil)
			So(d.ID, ShouldEqual, "existing")
		})
	})

	Convey("Given no id anywhere", t, func() {
		a, _ := drill.Normalize(`{"name":"x"}`, "")
		b, _ := drill.Normalize(`{"name":"x"}`, "")

		Convey("Then each normalization mints a fresh id", func() {
			So(a.ID, ShouldNotBeEmpty)
			So(a.ID, ShouldNotEqual, b.ID)
		})
	})

	Convey("Given unknown enum values", t, func() {
		raw := `{"layout":"diamond","positions":[{"x":"12.5","y":10,"type":"mannequin","size":"huge"},{"x":5,"y":5,"type":"goal","size":"large"},{"x":5,"y":5,"type":"cone","size":"large"}],"arrows":[{"start":{"x":1,"y":1},"end":{"x":9,"y":9},"type":"shot"}]}`
		d, err := drill.Normalize(raw, "")

		Convey("Then they fall back to safe defaults", func() {
			So(err, ShouldBeNil)
			So(d.Layout, ShouldEqual, drill.LayoutFull)
			So(d.Positions[0].Type, ShouldEqual, drill.Player)
			So(d.Positions[0].X, ShouldEqual, 12.5)
			So(d.Positions[0].Size, ShouldBeEmpty)
			So(d.Positions[1].Size, ShouldEqual, drill.GoalLarge)
			So(d.Positions[2].Size, ShouldBeEmpty)
			So(d.Arrows[0].Type, ShouldEqual, drill.Pass)
		})
	})

	Convey("Given unparseable text", t, func() {
		_, err := drill.Normalize(`{"name": "half a drill`, "")

		Convey("Then ErrMalformedResponse is returned", func() {
			So(errors.Is(err, drill.ErrMalformedResponse), ShouldBeTrue)
		})
	})

	Convey("Given empty text", t, func() {
		_, err := drill.Normalize("  ```json\n```  ", "")
		So(errors.Is(err, drill.ErrEmptyResponse), ShouldBeTrue)
	})
}

func TestParseResponse(t *testing.T) {
	Convey("Given the one-shot endpoint parser", t, func() {
		Convey("When the response is wrapped", func() {
			resp, err := drill.ParseResponse(`{"drill":{"name":"A","instructions":["go"]}}`, "")
			So(err, ShouldBeNil)
			So(resp.Kind, ShouldEqual, drill.KindWrapped)
			So(resp.First().Name, ShouldEqual, "A")
		})

		Convey("When the response holds several drills", func() {
			resp, err := drill.ParseResponse(`{"drills":[{"name":"A","category":"Possession"},{"name":"B"}]}`, "ignored")
			So(err, ShouldBeNil)
			So(resp.Kind, ShouldEqual, drill.KindMulti)
			So(len(resp.Drills), ShouldEqual, 2)
			So(resp.Drills[0].Categories, ShouldResemble, []drill.Category{drill.Tactical})
			So(resp.Drills[0].ID, ShouldNotEqual, "ignored")
			So(resp.Drills[0].ID, ShouldNotEqual, resp.Drills[1].ID)
		})

		Convey("When the response is a bare drill", func() {
			resp, err := drill.ParseResponse(`{"name":"A","instructions":[]}`, "")
			So(err, ShouldBeNil)
			So(resp.Kind, ShouldEqual, drill.KindBare)
		})

		Convey("When the object does not look like a drill", func() {
			_, err := drill.ParseResponse(`{"title":"nope"}`, "")
			So(errors.Is(err, drill.ErrMalformedResponse), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "invalid drill response shape")
		})

		Convey("When the top level is an array", func() {
			_, err := drill.ParseResponse(`[{"name":"A"}]`, "")
			So(errors.Is(err, drill.ErrMalformedResponse), ShouldBeTrue)
		})
	})
}

func TestNormalizeRawAndCanonical(t *testing.T) {
	Convey("Given a drill that was already canonical", t, func() {
		d := drill.New()
		d.Positions = append(d.Positions, drill.Position{ID: "a", X: 10, Y: 10, Type: drill.Player, Label: "1"})
		raw, err := json.Marshal(d)
		So(err, ShouldBeNil)

		Convey("Then normalizing it again changes nothing", func() {
			again, err := drill.NormalizeRaw(raw, "")
			So(err, ShouldBeNil)
			So(again, ShouldResemble, d)
			So(drill.Canonical(d), ShouldResemble, d)
		})
	})

	Convey("Given a non-object", t, func() {
		_, err := drill.NormalizeRaw(json.RawMessage(`"text"`), "")
		So(errors.Is(err, drill.ErrMalformedResponse), ShouldBeTrue)
	})
}

func TestStripFences(t *testing.T) {
	Convey("Given fenced text", t, func() {
		So(drill.StripFences("```json\n{}\n```"), ShouldEqual, "{}")
		So(drill.StripFences("```JSON {} ```"), ShouldEqual, "{}")
		So(drill.StripFences("  {}  "), ShouldEqual, "{}")
	})
}
