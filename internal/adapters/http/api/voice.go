package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/pepai/internal/adapters/http/auth"
	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/voice"
	"github.com/okian/pepai/pkg/logger"
)

const (
	wsWriteWait      = 10 * time.Second
	wsHandshakeWait  = 10 * time.Second
	wsMaxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// handleVoice upgrades to a websocket and runs a voice session. The first
// client frame must be a drill frame carrying the drill being edited.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	const op = "api.voice"
	if s.deps.Voice == nil {
		s.fail(w, r, NewKind(op, ErrUnavailable))
		return
	}
	uid := auth.UID(r.Context())
	if s.deps.Billing != nil && s.deps.Billing.Enforced() && uid == "" {
		s.fail(w, r, NewKind(op, ErrUnauthorized))
		return
	}

	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		s.logger.Debug(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	conn := newWSConn(c)

	// The session outlives nothing but the connection; the request context
	// ends when the handler returns.
	ctx := r.Context()
	hctx, cancel := context.WithTimeout(ctx, wsHandshakeWait)
	first, err := conn.ReadMessage(hctx)
	cancel()
	if err != nil || first.Type != voice.ClientDrill || first.Drill == nil {
		_ = conn.WriteMessage(ctx, voice.ServerMessage{Type: voice.ServerError, Error: "expected a drill frame first"})
		_ = conn.Close()
		return
	}

	initial := drill.Canonical(*first.Drill)
	s.logger.Info(ctx, "voice session started", logger.String("uid", uid), logger.String("drill", initial.ID))
	final, err := s.deps.Voice.Run(ctx, conn, initial)
	if err != nil {
		s.logger.Warn(ctx, "voice session ended with error", logger.String("uid", uid), logger.Error(err))
		return
	}
	s.logger.Info(ctx, "voice session ended",
		logger.String("uid", uid), logger.Int("markers", len(final.Positions)), logger.Int("arrows", len(final.Arrows)))
}

// wsConn adapts a websocket to voice.ClientConn. Reads come from one
// goroutine; writes are serialized.
type wsConn struct {
	c       *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
}

var _ voice.ClientConn = (*wsConn)(nil)

func newWSConn(c *websocket.Conn) *wsConn {
	c.SetReadLimit(wsMaxMessageSize)
	return &wsConn{c: c}
}

// ReadMessage blocks until a frame arrives, ctx is done or the socket
// closes. A normal close reads as io.EOF.
func (w *wsConn) ReadMessage(ctx context.Context) (voice.ClientMessage, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = w.c.SetReadDeadline(dl)
		defer func() { _ = w.c.SetReadDeadline(time.Time{}) }()
	}
	stop := context.AfterFunc(ctx, func() {
		// Unblock the read.
		_ = w.c.SetReadDeadline(time.Now())
	})
	defer stop()

	var msg voice.ClientMessage
	if err := w.c.ReadJSON(&msg); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return msg, fmt.Errorf("%w: %v", io.EOF, err)
		}
		if ctx.Err() != nil {
			return msg, ctx.Err()
		}
		return msg, err
	}
	return msg, nil
}

func (w *wsConn) WriteMessage(ctx context.Context, msg voice.ServerMessage) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteJSON(msg)
}

func (w *wsConn) Close() error {
	var err error
	w.once.Do(func() {
		w.writeMu.Lock()
		_ = w.c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		w.writeMu.Unlock()
		err = w.c.Close()
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
