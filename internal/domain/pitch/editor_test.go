package pitch_test

import (
	"errors"
	"testing"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/pitch"
	. "github.com/smartystreets/goconvey/convey"
)

func pt(x, y float64) drill.Point { return drill.Point{X: x, Y: y} }

func blank() drill.Drill { return drill.New() }

func TestViewport(t *testing.T) {
	Convey("Given a 500x250 canvas at (100, 50)", t, func() {
		vp := pitch.Viewport{Left: 100, Top: 50, Width: 500, Height: 250}

		Convey("Then client pixels map into logical space", func() {
			So(vp.ToLogical(350, 175), ShouldResemble, pt(50, 50))
			So(vp.ToLogical(100, 50), ShouldResemble, pt(0, 0))
		})

		Convey("Then points outside the canvas are clamped", func() {
			So(vp.ToLogical(0, 1000), ShouldResemble, pt(0, 100))
			So(vp.ToLogical(900, -20), ShouldResemble, pt(100, 0))
		})
	})

	Convey("Given a zero-size viewport", t, func() {
		So(pitch.Viewport{}.ToLogical(10, 10), ShouldResemble, pt(0, 0))
	})
}

func TestPlacement(t *testing.T) {
	Convey("Given an editor with the player tool", t, func() {
		e := pitch.NewEditor(blank(), pitch.WithTool(pitch.ToolPlayer))
		So(e.State(), ShouldEqual, pitch.PlacingMarker)

		e.PointerDown(pt(30, 40))
		d := e.Drill()

		Convey("Then a numbered blue player is placed and selected", func() {
			So(len(d.Positions), ShouldEqual, 1)
			p := d.Positions[0]
			So(p.Label, ShouldEqual, "1")
			So(p.Color, ShouldEqual, drill.PlayerColor)
			So(p.Point(), ShouldResemble, pt(30, 40))
			So(e.Selection(), ShouldResemble, pitch.Selection{Kind: pitch.SelectedMarker, ID: p.ID})
		})

		Convey("Then the tool returns to select", func() {
			So(e.Tool(), ShouldEqual, pitch.ToolSelect)
			So(e.State(), ShouldEqual, pitch.Idle)
		})

		Convey("When a second player is placed", func() {
			So(e.SetTool(pitch.ToolPlayer), ShouldBeNil)
			e.PointerDown(pt(60, 40))

			Convey("Then its label is the next number", func() {
				So(e.Drill().Positions[1].Label, ShouldEqual, "2")
			})
		})

		Convey("When a cone is placed", func() {
			So(e.SetTool(pitch.ToolCone), ShouldBeNil)
			e.PointerDown(pt(150, 40))

			Convey("Then it has no label or colour and is clamped", func() {
				c := e.Drill().Positions[1]
				So(c.Type, ShouldEqual, drill.Cone)
				So(c.Label, ShouldBeEmpty)
				So(c.Color, ShouldBeEmpty)
				So(c.X, ShouldEqual, 100)
			})
		})
	})

	Convey("Given an unknown tool", t, func() {
		e := pitch.NewEditor(blank())
		So(errors.Is(e.SetTool("lasso"), pitch.ErrUnknownTool), ShouldBeTrue)
		So(e.Tool(), ShouldEqual, pitch.ToolSelect)
	})
}

func TestDrawing(t *testing.T) {
	Convey("Given an editor with the pass tool", t, func() {
		e := pitch.NewEditor(blank(), pitch.WithTool(pitch.ToolPass))

		Convey("When a long enough arrow is drawn", func() {
			e.PointerDown(pt(10, 10))
			e.PointerMove(pt(15, 10))
			draft, ok := e.Draft()
			So(ok, ShouldBeTrue)
			So(draft.End, ShouldResemble, pt(15, 10))
			e.PointerUp(pt(20, 10))

			Convey("Then it is committed and selected", func() {
				d := e.Drill()
				So(len(d.Arrows), ShouldEqual, 1)
				So(d.Arrows[0].Type, ShouldEqual, drill.Pass)
				So(d.Arrows[0].End, ShouldResemble, pt(20, 10))
				So(e.Selection(), ShouldResemble, pitch.Selection{Kind: pitch.SelectedArrow, ID: d.Arrows[0].ID})
				_, drawing := e.Draft()
				So(drawing, ShouldBeFalse)
			})

			Convey("Then the drawing tool stays active", func() {
				So(e.Tool(), ShouldEqual, pitch.ToolPass)
			})
		})

		Convey("When the arrow is at most the minimum length", func() {
			e.PointerDown(pt(10, 10))
			e.PointerUp(pt(11.5, 10))

			Convey("Then nothing is committed", func() {
				So(e.Drill().Arrows, ShouldBeEmpty)
				So(e.Selection().Kind, ShouldEqual, pitch.SelectedNone)
			})
		})
	})
}

func TestSelectAndDrag(t *testing.T) {
	Convey("Given a drill with a player and an arrow", t, func() {
		d := blank()
		d.Positions = []drill.Position{{ID: "m1", X: 50, Y: 50, Type: drill.Player, Label: "1"}}
		d.Arrows = []drill.Arrow{{ID: "a1", Start: pt(10, 80), End: pt(30, 80), Type: drill.Run}}
		e := pitch.NewEditor(d)

		Convey("When the marker is pressed and dragged", func() {
			e.PointerDown(pt(51, 51))
			So(e.State(), ShouldEqual, pitch.DraggingMarker)
			e.PointerMove(pt(70, 20))
			e.PointerUp(pt(70, 20))

			Convey("Then it moves and stays selected", func() {
				So(e.Drill().Positions[0].Point(), ShouldResemble, pt(70, 20))
				So(e.Selection(), ShouldResemble, pitch.Selection{Kind: pitch.SelectedMarker, ID: "m1"})
				So(e.State(), ShouldEqual, pitch.Idle)
			})
		})

		Convey("When the marker is dragged off the canvas", func() {
			e.PointerDown(pt(51, 51))

			Convey("Then every intermediate position is clamped", func() {
				for _, c := range []struct{ to, want drill.Point }{
					{pt(-40, 180), pt(0, 100)},
					{pt(250, -3), pt(100, 0)},
					{pt(1e9, -1e9), pt(100, 0)},
					{pt(-1e9, 1e9), pt(0, 100)},
				} {
					e.PointerMove(c.to)
					So(e.Drill().Positions[0].Point(), ShouldResemble, c.want)
				}
			})

			Convey("Then the dropped position is clamped", func() {
				e.PointerMove(pt(-40, 180))
				e.PointerUp(pt(-40, 180))
				p := e.Drill().Positions[0]
				So(p.X, ShouldBeBetweenOrEqual, 0.0, 100.0)
				So(p.Y, ShouldBeBetweenOrEqual, 0.0, 100.0)
				So(p.Point(), ShouldResemble, pt(0, 100))
			})
		})

		Convey("When the arrow body is pressed", func() {
			e.PointerDown(pt(20, 80))
			So(e.Selection(), ShouldResemble, pitch.Selection{Kind: pitch.SelectedArrow, ID: "a1"})
			So(e.State(), ShouldEqual, pitch.DraggingArrowBody)

			Convey("And dragged", func() {
				e.PointerMove(pt(25, 70))

				Convey("Then both endpoints translate", func() {
					a := e.Drill().Arrows[0]
					So(a.Start, ShouldResemble, pt(15, 70))
					So(a.End, ShouldResemble, pt(35, 70))
				})
			})

			Convey("And dragged past the edge", func() {
				e.PointerMove(pt(0, 100))

				Convey("Then the arrow stops at the canvas edge without distortion", func() {
					a := e.Drill().Arrows[0]
					So(a.Start, ShouldResemble, pt(0, 100))
					So(a.End, ShouldResemble, pt(20, 100))
				})
			})

			Convey("And a handle of the selected arrow is dragged", func() {
				e.PointerUp(pt(20, 80))
				e.PointerDown(pt(30.5, 80))
				So(e.State(), ShouldEqual, pitch.DraggingArrowEndpoint)
				e.PointerMove(pt(40, 60))
				e.PointerUp(pt(40, 60))

				Convey("Then only that endpoint moves", func() {
					a := e.Drill().Arrows[0]
					So(a.Start, ShouldResemble, pt(10, 80))
					So(a.End, ShouldResemble, pt(40, 60))
					So(e.Selection().ID, ShouldEqual, "a1")
				})
			})
		})

		Convey("When empty canvas is pressed", func() {
			e.PointerDown(pt(51, 51))
			e.PointerUp(pt(51, 51))
			e.PointerDown(pt(90, 10))

			Convey("Then the selection clears", func() {
				So(e.Selection().Kind, ShouldEqual, pitch.SelectedNone)
				So(e.State(), ShouldEqual, pitch.Idle)
			})
		})

		Convey("When the selected marker is deleted", func() {
			e.PointerDown(pt(50, 50))
			e.PointerUp(pt(50, 50))
			So(e.DeleteSelected(), ShouldBeTrue)

			Convey("Then it is gone and nothing is selected", func() {
				So(e.Drill().Positions, ShouldBeEmpty)
				So(e.Selection().Kind, ShouldEqual, pitch.SelectedNone)
			})
		})

		Convey("When an unselected element is deleted", func() {
			e.PointerDown(pt(50, 50))
			e.PointerUp(pt(50, 50))
			So(e.Delete("a1"), ShouldBeTrue)
			So(e.Delete("a1"), ShouldBeFalse)

			Convey("Then the selection is kept", func() {
				So(e.Selection().ID, ShouldEqual, "m1")
			})
		})
	})
}

func TestReadOnly(t *testing.T) {
	Convey("Given a read-only editor", t, func() {
		d := blank()
		d.Positions = []drill.Position{{ID: "m1", X: 50, Y: 50, Type: drill.Player, Label: "1"}}
		e := pitch.NewEditor(d, pitch.WithReadOnly(true))

		e.PointerDown(pt(50, 50))
		e.PointerMove(pt(10, 10))
		e.PointerUp(pt(10, 10))

		Convey("Then gestures change nothing", func() {
			So(e.Drill(), ShouldResemble, d)
			So(e.Selection().Kind, ShouldEqual, pitch.SelectedNone)
			So(e.Delete("m1"), ShouldBeFalse)
			So(errors.Is(e.SetTool(pitch.ToolCone), pitch.ErrReadOnly), ShouldBeTrue)
			So(errors.Is(e.Clear(), pitch.ErrReadOnly), ShouldBeTrue)
		})
	})
}

func TestReplay(t *testing.T) {
	Convey("Given a recorded gesture stream in client pixels", t, func() {
		vp := &pitch.Viewport{Width: 1000, Height: 1000}
		gestures := []pitch.Gesture{
			{Kind: pitch.GestureTool, Tool: pitch.ToolPlayer},
			{Kind: pitch.GestureDown, X: 200, Y: 200},
			{Kind: pitch.GestureTool, Tool: pitch.ToolDribble},
			{Kind: pitch.GestureDown, X: 200, Y: 200},
			{Kind: pitch.GestureMove, X: 400, Y: 300},
			{Kind: pitch.GestureUp, X: 500, Y: 500},
		}

		res, err := pitch.Replay(blank(), vp, gestures)

		Convey("Then the result holds a player and a dribble", func() {
			So(err, ShouldBeNil)
			So(len(res.Drill.Positions), ShouldEqual, 1)
			So(len(res.Drill.Arrows), ShouldEqual, 1)
			So(res.Drill.Arrows[0].Type, ShouldEqual, drill.Dribble)
			So(res.Drill.Arrows[0].End, ShouldResemble, pt(50, 50))
			So(res.Selection.Kind, ShouldEqual, pitch.SelectedArrow)
			So(res.Tool, ShouldEqual, pitch.ToolDribble)
		})
	})

	Convey("Given an unknown gesture", t, func() {
		_, err := pitch.Replay(blank(), nil, []pitch.Gesture{{Kind: "pinch"}})
		So(errors.Is(err, pitch.ErrUnknownGesture), ShouldBeTrue)
	})
}
