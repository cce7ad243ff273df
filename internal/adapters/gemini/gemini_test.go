package gemini

import (
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/okian/pepai/internal/generate"
	"github.com/okian/pepai/internal/voice"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClassify(t *testing.T) {
	Convey("Given provider errors", t, func() {
		Convey("A 503 API error is retryable", func() {
			err := classify(genai.APIError{Code: 503, Message: "The model is overloaded.", Status: "UNAVAILABLE"})
			So(errors.Is(err, generate.ErrOverloaded), ShouldBeTrue)
		})

		Convey("A 400 API error is not", func() {
			err := classify(genai.APIError{Code: 400, Message: "API key not valid", Status: "INVALID_ARGUMENT"})
			So(errors.Is(err, generate.ErrOverloaded), ShouldBeFalse)
		})

		Convey("A transport error mentioning high demand is retryable", func() {
			err := classify(errors.New("stream: high demand"))
			So(errors.Is(err, generate.ErrOverloaded), ShouldBeTrue)
		})
	})
}

func TestSchema(t *testing.T) {
	Convey("Given the drill schema", t, func() {
		s := DrillSchema()

		Convey("Then every top-level field is required", func() {
			So(len(s.Required), ShouldEqual, 10)
			for _, name := range s.Required {
				So(s.Properties, ShouldContainKey, name)
			}
		})

		Convey("Then markers and arrows are constrained to known types", func() {
			So(s.Properties["positions"].Items.Properties["type"].Enum, ShouldResemble, []string{"player", "cone", "ball", "goal"})
			So(s.Properties["arrows"].Items.Properties["type"].Enum, ShouldResemble, []string{"pass", "dribble", "run"})
			So(len(s.Properties["categories"].Items.Enum), ShouldEqual, 6)
		})
	})

	Convey("Given the voice tools", t, func() {
		decls := ToolDeclarations()
		names := make([]string, 0, len(decls))
		for _, d := range decls {
			names = append(names, d.Name)
		}
		So(names, ShouldResemble, []string{voice.ToolAddPlayer, voice.ToolAddArrow, voice.ToolClearPitch})
	})
}

func TestToMessage(t *testing.T) {
	Convey("Given a live server message with audio, transcripts and a tool call", t, func() {
		msg := &genai.LiveServerMessage{
			ServerContent: &genai.LiveServerContent{
				ModelTurn: &genai.Content{Parts: []*genai.Part{
					{InlineData: &genai.Blob{Data: []byte{1, 2}, MIMEType: "audio/pcm;rate=24000"}},
				}},
				InputTranscription: &genai.Transcription{Text: "add a striker"},
				Interrupted:        true,
			},
			ToolCall: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{
				{ID: "1", Name: voice.ToolAddPlayer, Args: map[string]any{"x": 50.0}},
			}},
		}

		m := toMessage(msg)

		So(m.Audio, ShouldResemble, []byte{1, 2})
		So(m.AudioMIME, ShouldEqual, "audio/pcm;rate=24000")
		So(m.InputTranscript, ShouldEqual, "add a striker")
		So(m.Interrupted, ShouldBeTrue)
		So(len(m.ToolCalls), ShouldEqual, 1)
		So(m.ToolCalls[0].Name, ShouldEqual, voice.ToolAddPlayer)
	})
}
