package generate_test

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/generate"
	"github.com/okian/pepai/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// scriptedModel fails the first `overloads` calls with a 503 and then streams chunks.
type scriptedModel struct {
	mu        sync.Mutex
	calls     int
	overloads int
	fatal     error
	chunks    []string
	prompts   []generate.Prompt
}

func (m *scriptedModel) Stream(_ context.Context, p generate.Prompt) iter.Seq2[string, error] {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.prompts = append(m.prompts, p)
	m.mu.Unlock()

	return func(yield func(string, error) bool) {
		if m.fatal != nil {
			yield("", m.fatal)
			return
		}
		if n <= m.overloads {
			yield("", errors.New("Error 503, Message: The model is overloaded. Please try again later., Status: UNAVAILABLE"))
			return
		}
		for _, c := range m.chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (m *scriptedModel) Complete(_ context.Context, p generate.Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, p)
	if m.fatal != nil {
		return "", m.fatal
	}
	return strings.Join(m.chunks, ""), nil
}

func (m *scriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var rondoChunks = []string{`{"name":"5v5 Rondo",`, `"categories":["Tactical"],"instructions":["Keep it"],`, `"positions":[{"x":50,"y":50,"label":"1","type":"player"}],"arrows":[]}`}

func newRequester(m generate.Model, delays *[]time.Duration) *generate.Requester {
	return generate.New(m,
		generate.WithLogger(logger.Nop()),
		generate.WithRandom(func() float64 { return 0.5 }),
		generate.WithSleep(func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		}),
	)
}

func drain(ch <-chan generate.Event) []generate.Event {
	var out []generate.Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func kinds(events []generate.Event, k generate.EventKind) []generate.Event {
	var out []generate.Event
	for _, e := range events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func TestStreamRetry(t *testing.T) {
	Convey("Given a model that is never overwhelmed", t, func() {
		m := &scriptedModel{chunks: rondoChunks}
		var delays []time.Duration
		events := drain(newRequester(m, &delays).Generate(context.Background(), "5v5 rondo"))

		Convey("Then progress carries the accumulated text and the stream completes", func() {
			progress := kinds(events, generate.Progress)
			So(len(progress), ShouldEqual, 3)
			So(progress[0].Text, ShouldEqual, rondoChunks[0])
			So(progress[2].Text, ShouldEqual, strings.Join(rondoChunks, ""))

			last := events[len(events)-1]
			So(last.Kind, ShouldEqual, generate.Done)
			So(last.Text, ShouldEqual, strings.Join(rondoChunks, ""))
			So(m.Calls(), ShouldEqual, 1)
			So(delays, ShouldBeEmpty)
		})

		Convey("Then the request is schema-constrained and quotes the coach", func() {
			So(m.prompts[0].Structured, ShouldBeTrue)
			So(m.prompts[0].User, ShouldContainSubstring, `Create a tactical drill for: "5v5 rondo"`)
		})
	})

	Convey("Given a model overwhelmed fewer times than the attempt limit", t, func() {
		for _, n := range []int{1, 2, 3} {
			m := &scriptedModel{overloads: n, chunks: rondoChunks}
			var delays []time.Duration
			events := drain(newRequester(m, &delays).Generate(context.Background(), "rondo"))

			So(events[len(events)-1].Kind, ShouldEqual, generate.Done)
			So(m.Calls(), ShouldEqual, n+1)
			So(len(kinds(events, generate.Retrying)), ShouldEqual, n)
			So(len(delays), ShouldEqual, n)
		}
	})

	Convey("Given retries, the delay doubles from one second plus jitter", t, func() {
		m := &scriptedModel{overloads: 3, chunks: rondoChunks}
		var delays []time.Duration
		events := drain(newRequester(m, &delays).Generate(context.Background(), "rondo"))

		So(delays, ShouldResemble, []time.Duration{1500 * time.Millisecond, 2500 * time.Millisecond, 4500 * time.Millisecond})
		retrying := kinds(events, generate.Retrying)
		So(retrying[0].Attempt, ShouldEqual, 1)
		So(retrying[2].Delay, ShouldEqual, 4500*time.Millisecond)
	})

	Convey("Given a model overwhelmed at least as often as the attempt limit", t, func() {
		for _, n := range []int{4, 5, 10} {
			m := &scriptedModel{overloads: n, chunks: rondoChunks}
			var delays []time.Duration
			events := drain(newRequester(m, &delays).Generate(context.Background(), "rondo"))

			last := events[len(events)-1]
			So(last.Kind, ShouldEqual, generate.Failed)
			So(errors.Is(last.Err, generate.ErrHighDemand), ShouldBeTrue)
			So(last.Err.Error(), ShouldStartWith, generate.HighDemandMessage)
			So(m.Calls(), ShouldEqual, 4)
			So(len(kinds(events, generate.Retrying)), ShouldEqual, 3)
		}
	})

	Convey("Given a non-retryable failure", t, func() {
		m := &scriptedModel{fatal: errors.New("permission denied: API key invalid")}
		var delays []time.Duration
		events := drain(newRequester(m, &delays).Generate(context.Background(), "rondo"))

		Convey("Then it propagates immediately", func() {
			So(len(events), ShouldEqual, 1)
			So(events[0].Kind, ShouldEqual, generate.Failed)
			So(errors.Is(events[0].Err, generate.ErrHighDemand), ShouldBeFalse)
			So(m.Calls(), ShouldEqual, 1)
		})
	})

	Convey("Given no model", t, func() {
		r := generate.New(nil, generate.WithLogger(logger.Nop()))
		events := drain(r.Generate(context.Background(), "rondo"))
		So(r.Configured(), ShouldBeFalse)
		So(errors.Is(events[0].Err, generate.ErrNotConfigured), ShouldBeTrue)
	})

	Convey("Given a custom attempt limit of one", t, func() {
		m := &scriptedModel{overloads: 1}
		r := generate.New(m, generate.WithLogger(logger.Nop()), generate.WithMaxAttempts(1))
		events := drain(r.Generate(context.Background(), "rondo"))
		So(errors.Is(events[len(events)-1].Err, generate.ErrHighDemand), ShouldBeTrue)
		So(m.Calls(), ShouldEqual, 1)
	})
}

func TestRefineAndCollect(t *testing.T) {
	Convey("Given an existing drill being refined", t, func() {
		current := drill.New()
		current.ID = "keep-me"
		m := &scriptedModel{chunks: rondoChunks}
		var delays []time.Duration
		r := newRequester(m, &delays)

		var seen []generate.EventKind
		d, err := generate.Collect(context.Background(), r.Refine(context.Background(), current, "make it 4v4"), current.ID,
			func(e generate.Event) { seen = append(seen, e.Kind) })

		Convey("Then the result is normalized with the existing id", func() {
			So(err, ShouldBeNil)
			So(d.ID, ShouldEqual, "keep-me")
			So(d.Name, ShouldEqual, "5v5 Rondo")
			So(d.Positions[0].ID, ShouldNotBeEmpty)
			So(seen[len(seen)-1], ShouldEqual, generate.Done)
		})

		Convey("Then the prompt carries the drill and the instruction", func() {
			So(m.prompts[0].User, ShouldContainSubstring, `"id":"keep-me"`)
			So(m.prompts[0].User, ShouldContainSubstring, `Modification requested: "make it 4v4"`)
		})
	})

	Convey("Given a stream that returns garbage", t, func() {
		m := &scriptedModel{chunks: []string{`{"name": "broken`}}
		var delays []time.Duration
		_, err := generate.Collect(context.Background(), newRequester(m, &delays).Generate(context.Background(), "x"), "", nil)
		So(errors.Is(err, drill.ErrMalformedResponse), ShouldBeTrue)
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m := &scriptedModel{chunks: rondoChunks}
		var delays []time.Duration
		_, err := generate.Collect(ctx, newRequester(m, &delays).Generate(ctx, "x"), "", nil)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

func TestComplete(t *testing.T) {
	Convey("Given the one-shot request", t, func() {
		m := &scriptedModel{chunks: []string{"```json\n", `{"drill":{"name":"Box","instructions":["Go"]}}`, "\n```"}}
		var delays []time.Duration
		resp, err := newRequester(m, &delays).Complete(context.Background(), "box drill")

		So(err, ShouldBeNil)
		So(resp.Kind, ShouldEqual, drill.KindWrapped)
		So(resp.First().Name, ShouldEqual, "Box")
		So(m.prompts[0].System, ShouldEqual, generate.DrillSystemPrompt)
		So(m.prompts[0].User, ShouldEqual, "Coach request: box drill")
	})

	Convey("Given an empty one-shot response", t, func() {
		m := &scriptedModel{chunks: []string{"  "}}
		var delays []time.Duration
		_, err := newRequester(m, &delays).Complete(context.Background(), "box")
		So(errors.Is(err, drill.ErrEmptyResponse), ShouldBeTrue)
	})
}

func TestCleanPrompt(t *testing.T) {
	Convey("Given prompts of various shapes", t, func() {
		p, err := generate.CleanPrompt("  rondo  ", 2000)
		So(err, ShouldBeNil)
		So(p, ShouldEqual, "rondo")

		_, err = generate.CleanPrompt(" \n ", 2000)
		So(errors.Is(err, generate.ErrEmptyPrompt), ShouldBeTrue)

		_, err = generate.CleanPrompt(strings.Repeat("é", 2000), 2000)
		So(err, ShouldBeNil)

		_, err = generate.CleanPrompt(strings.Repeat("a", 2001), 2000)
		So(errors.Is(err, generate.ErrPromptTooLong), ShouldBeTrue)
	})
}

func TestIsOverloaded(t *testing.T) {
	Convey("Given provider errors", t, func() {
		So(generate.IsOverloaded(nil), ShouldBeFalse)
		So(generate.IsOverloaded(errors.New("status 503")), ShouldBeTrue)
		So(generate.IsOverloaded(errors.New("The model is experiencing high demand")), ShouldBeTrue)
		So(generate.IsOverloaded(errors.New("UNAVAILABLE")), ShouldBeTrue)
		So(generate.IsOverloaded(errors.New("invalid argument")), ShouldBeFalse)
		So(generate.IsOverloaded(errors.New("Error 503, Status: 15")), ShouldBeTrue)
		So(generate.IsOverloaded(errors.New("request req-15034 failed: invalid argument")), ShouldBeFalse)
		So(generate.IsOverloaded(errors.New("dial tcp 10.0.0.1:5030: connection refused")), ShouldBeFalse)
		So(generate.IsOverloaded(errors.New("Error 400: session 9503a rejected")), ShouldBeFalse)
		So(generate.IsOverloaded(errors.Join(generate.ErrOverloaded, errors.New("x"))), ShouldBeTrue)
	})
}
