package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/pitch"
	"github.com/okian/pepai/pkg/logger"
	"github.com/okian/pepai/pkg/metrics"
)

const channelBuffer = 16

// Bridge runs voice sessions.
type Bridge struct {
	dialer Dialer
	logger logger.Logger
}

// NewBridge creates a Bridge over dialer.
func NewBridge(dialer Dialer, opts ...Option) *Bridge {
	b := &Bridge{dialer: dialer}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Named("voice")
	}
	return b
}

// Run serves one session until the client leaves, the upstream closes or ctx
// is cancelled. Both connections are closed and every goroutine has exited
// when Run returns. The returned drill is the last state the bridge held.
func (b *Bridge) Run(ctx context.Context, client ClientConn, initial drill.Drill) (drill.Drill, error) {
	up, err := b.dialer.Dial(ctx, SessionConfig{SystemInstruction: SystemInstruction(initial)})
	if err != nil {
		_ = client.Close()
		return initial, fmt.Errorf("dial live model: %w", err)
	}

	metrics.IncVoiceSessions()
	defer metrics.DecVoiceSessions()

	s := &session{
		editor: pitch.NewEditor(initial),
		up:     up,
		client: client,
		logger: b.logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	fromClient := make(chan ClientMessage, channelBuffer)
	fromUp := make(chan Message, channelBuffer)

	g.Go(func() error { return readLoop(gctx, client.ReadMessage, fromClient) })
	g.Go(func() error { return readLoop(gctx, up.Receive, fromUp) })
	g.Go(func() error { return s.loop(gctx, fromClient, fromUp) })
	g.Go(func() error {
		<-gctx.Done()
		// Closing both ends unblocks the readers. A close error is not the
		// reason the session ended.
		if err := errors.Join(up.Close(), client.Close()); err != nil {
			b.logger.Debug(ctx, "voice session close", logger.Error(err))
		}
		return nil
	})

	err = g.Wait()
	final := s.editor.Drill()
	if errors.Is(err, errClosed) || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return final, nil
	}
	return final, err
}

// readLoop pumps read into out until read fails or ctx ends.
func readLoop[T any](ctx context.Context, read func(context.Context) (T, error), out chan<- T) error {
	for {
		msg, err := read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// session is the state one Run owns. Only loop touches editor.
type session struct {
	editor     *pitch.Editor
	up         Upstream
	client     ClientConn
	logger     logger.Logger
	transcript strings.Builder
}

func (s *session) loop(ctx context.Context, fromClient <-chan ClientMessage, fromUp <-chan Message) error {
	if err := s.client.WriteMessage(ctx, ServerMessage{Type: ServerReady}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-fromClient:
			if err := s.handleClient(ctx, m); err != nil {
				return err
			}
		case m := <-fromUp:
			if err := s.handleUpstream(ctx, m); err != nil {
				return err
			}
		}
	}
}

func (s *session) handleClient(ctx context.Context, m ClientMessage) error {
	switch m.Type {
	case ClientAudio:
		if len(m.Audio) == 0 {
			return nil
		}
		return s.up.SendAudio(ctx, m.Audio, InputAudioMIME)
	case ClientText:
		// The coach edited the transcript and sends it as a typed turn.
		text := strings.TrimSpace(m.Text)
		if text == "" {
			return nil
		}
		s.transcript.Reset()
		s.transcript.WriteString(text)
		return s.up.SendText(ctx, text)
	case ClientDrill:
		if m.Drill != nil {
			s.editor.Replace(drill.Canonical(*m.Drill))
		}
		return nil
	case ClientStop:
		return errClosed
	}
	s.logger.Debug(ctx, "ignoring client message", logger.String("type", m.Type))
	return nil
}

func (s *session) handleUpstream(ctx context.Context, m Message) error {
	if m.InputTranscript != "" {
		s.transcript.WriteString(m.InputTranscript)
		if err := s.client.WriteMessage(ctx, ServerMessage{
			Type: ServerTranscript, Role: "user", Text: strings.TrimSpace(s.transcript.String()),
		}); err != nil {
			return err
		}
	}
	if m.OutputTranscript != "" {
		if err := s.client.WriteMessage(ctx, ServerMessage{Type: ServerTranscript, Role: "model", Text: m.OutputTranscript}); err != nil {
			return err
		}
	}

	if len(m.ToolCalls) > 0 {
		if err := s.applyTools(ctx, m.ToolCalls); err != nil {
			return err
		}
	}

	if len(m.Audio) > 0 {
		if err := s.client.WriteMessage(ctx, ServerMessage{Type: ServerAudio, Audio: m.Audio, MIME: m.AudioMIME}); err != nil {
			return err
		}
	}
	if m.Interrupted {
		if err := s.client.WriteMessage(ctx, ServerMessage{Type: ServerInterrupted}); err != nil {
			return err
		}
	}
	if m.TurnComplete {
		return s.client.WriteMessage(ctx, ServerMessage{Type: ServerTurnComplete})
	}
	return nil
}

// applyTools runs calls against the drill in order, answers each one and then
// sends the client the updated drill once.
func (s *session) applyTools(ctx context.Context, calls []ToolCall) error {
	results := make([]ToolResult, 0, len(calls))
	changed := false
	for _, c := range calls {
		metrics.RecordVoiceToolCall(c.Name)
		res := ToolResult{ID: c.ID, Name: c.Name, Response: map[string]any{"result": "ok"}}
		if err := s.apply(c); err != nil {
			s.logger.Warn(ctx, "tool call rejected", logger.String("tool", c.Name), logger.Error(err))
			res.Response = map[string]any{"error": err.Error()}
		} else {
			changed = true
		}
		results = append(results, res)
	}
	if err := s.up.SendToolResults(ctx, results); err != nil {
		return err
	}
	if !changed {
		return nil
	}
	d := s.editor.Drill()
	return s.client.WriteMessage(ctx, ServerMessage{Type: ServerDrill, Drill: &d})
}

func (s *session) apply(c ToolCall) error {
	switch c.Name {
	case ToolAddPlayer:
		x, okX := number(c.Args, "x")
		y, okY := number(c.Args, "y")
		label, _ := c.Args["label"].(string)
		if !okX || !okY {
			return fmt.Errorf("%w: x and y are required", ErrBadArgs)
		}
		_, err := s.editor.AddMarker(drill.Player, drill.Point{X: x, Y: y}, label)
		return err
	case ToolAddArrow:
		sx, ok1 := number(c.Args, "startX")
		sy, ok2 := number(c.Args, "startY")
		ex, ok3 := number(c.Args, "endX")
		ey, ok4 := number(c.Args, "endY")
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return fmt.Errorf("%w: startX, startY, endX and endY are required", ErrBadArgs)
		}
		t, _ := c.Args["type"].(string)
		at := drill.ArrowType(strings.ToLower(t))
		if !at.Valid() {
			at = drill.Pass
		}
		_, err := s.editor.AddArrow(drill.Point{X: sx, Y: sy}, drill.Point{X: ex, Y: ey}, at)
		return err
	case ToolClearPitch:
		return s.editor.Clear()
	}
	return fmt.Errorf("%w: %s", ErrUnknownTool, c.Name)
}

func number(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
