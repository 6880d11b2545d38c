// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/domain/embed/ports"
	xglog "github.com/ManuGH/embedbridge/internal/log"
)

// Control kinds exchanged before the channel carries traffic. They are
// consumed by the transport and never reach the session.
const (
	KindPrepare = "ChannelPrepare"
	KindReady   = "ChannelReady"
)

const (
	defaultWriteWait = 10 * time.Second
	defaultPongWait  = 60 * time.Second
	maxFrameBytes    = 1 << 20
)

// WebSocket adapts an established WebSocket connection to ports.Channel.
// The channel becomes ready when the content answers the prepare frame
// with a ChannelReady frame, and closes when either side drops the
// connection.
type WebSocket struct {
	conn   *websocket.Conn
	codec  Codec
	logger zerolog.Logger

	writeWait time.Duration
	pongWait  time.Duration

	inbound   chan model.Message
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

var _ ports.Channel = (*WebSocket)(nil)

// WebSocketOption configures a WebSocket channel.
type WebSocketOption func(*WebSocket)

// WithWebSocketLogger overrides the component logger.
func WithWebSocketLogger(l zerolog.Logger) WebSocketOption {
	return func(w *WebSocket) { w.logger = l }
}

// WithPongWait sets how long the peer may stay silent; pings go out at 90% of it.
func WithPongWait(d time.Duration) WebSocketOption {
	return func(w *WebSocket) {
		if d > 0 {
			w.pongWait = d
		}
	}
}

// WithWebSocketInboundBuffer sets the inbound queue depth.
func WithWebSocketInboundBuffer(n int) WebSocketOption {
	return func(w *WebSocket) {
		if n > 0 {
			w.inbound = make(chan model.Message, n)
		}
	}
}

// NewWebSocket starts the read and keepalive loops on conn.
func NewWebSocket(conn *websocket.Conn, codec Codec, opts ...WebSocketOption) *WebSocket {
	if codec == nil {
		codec = JSON()
	}
	w := &WebSocket{
		conn:      conn,
		codec:     codec,
		logger:    xglog.WithComponent("channel.ws"),
		writeWait: defaultWriteWait,
		pongWait:  defaultPongWait,
		inbound:   make(chan model.Message, defaultInboundBuffer),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With().Str(xglog.FieldCodec, codec.Name()).Logger()

	w.wg.Add(2)
	go w.readLoop()
	go w.pingLoop()
	return w
}

func (w *WebSocket) frameType() int {
	if w.codec.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// Prepare invites the content to complete the handshake.
func (w *WebSocket) Prepare(ctx context.Context) error {
	return w.write("prepare", model.Message{Direction: model.HostToContent, Kind: KindPrepare})
}

func (w *WebSocket) Send(ctx context.Context, msg model.Message) error {
	select {
	case <-w.ready:
	default:
		select {
		case <-w.done:
			return &model.ChannelError{Op: "send", Err: model.ErrChannelClosed}
		default:
		}
		return &model.ChannelError{Op: "send", Err: model.ErrChannelNotReady}
	}
	return w.write("send", msg)
}

func (w *WebSocket) write(op string, msg model.Message) error {
	select {
	case <-w.done:
		return &model.ChannelError{Op: op, Err: model.ErrChannelClosed}
	default:
	}

	data, err := w.codec.Marshal(msg)
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeWait))
	err = w.conn.WriteMessage(w.frameType(), data)
	w.writeMu.Unlock()

	if err != nil {
		w.logger.Warn().Err(err).Str("op", op).Msg("websocket write failed")
		w.shutdown()
		return &model.ChannelError{Op: op, Err: err}
	}
	return nil
}

func (w *WebSocket) Inbound() <-chan model.Message { return w.inbound }
func (w *WebSocket) Ready() <-chan struct{}        { return w.ready }
func (w *WebSocket) Done() <-chan struct{}         { return w.done }

// Close sends a close frame, drops the connection and waits for the loops.
func (w *WebSocket) Close() error {
	w.doneOnce.Do(func() {
		close(w.done)
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session disposed"),
			time.Now().Add(w.writeWait))
		w.writeMu.Unlock()
		_ = w.conn.Close()
	})
	w.wg.Wait()
	return nil
}

// shutdown is Close for the loops themselves; it must not wait on wg.
func (w *WebSocket) shutdown() {
	w.doneOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
}

func (w *WebSocket) readLoop() {
	defer w.wg.Done()
	defer w.shutdown()

	w.conn.SetReadLimit(maxFrameBytes)
	_ = w.conn.SetReadDeadline(time.Now().Add(w.pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(w.pongWait))
	})

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				w.logger.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		_ = w.conn.SetReadDeadline(time.Now().Add(w.pongWait))

		msg, err := w.codec.Unmarshal(data)
		if err != nil {
			w.logger.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if msg.Direction != model.ContentToHost {
			w.logger.Warn().Str(xglog.FieldDirection, string(msg.Direction)).Msg("dropping frame with wrong direction")
			continue
		}
		if msg.Kind == KindReady {
			w.readyOnce.Do(func() { close(w.ready) })
			continue
		}

		select {
		case w.inbound <- msg:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocket) pingLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeWait))
			w.writeMu.Unlock()
			if err != nil {
				w.shutdown()
				return
			}
		}
	}
}
