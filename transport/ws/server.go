// Package ws bridges WebSocket clients to a backend. Clients send wire
// command envelopes as text frames and receive every relay message for the
// sessions they subscribed to, optionally narrowed with repeated
// ?session= query parameters.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/switchboard/core/channel"
	"github.com/tailored-agentic-units/switchboard/dispatch"
	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/relay"
	"github.com/tailored-agentic-units/switchboard/transport/wire"
)

// Backend is the part of the chat backend a WebSocket client drives.
type Backend interface {
	TrySend(cmd dispatch.Command) error
	Subscribe(sessions ...string) *relay.Subscription
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithObserver(o observability.Observer) Option {
	return func(s *Server) { s.observer = o }
}

// Server upgrades HTTP requests and serves one client per connection.
type Server struct {
	backend  Backend
	cfg      Config
	logger   *slog.Logger
	observer observability.Observer
	upgrader websocket.Upgrader
	clients  atomic.Int64
}

// New creates a Server over b. Zero fields in cfg take their defaults.
func New(b Backend, cfg Config, opts ...Option) *Server {
	merged := DefaultConfig()
	merged.Merge(&cfg)

	s := &Server{
		backend:  b,
		cfg:      merged,
		logger:   slog.Default(),
		observer: observability.NoOpObserver{},
		upgrader: websocket.Upgrader{
			// The listener is loopback by default.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	return int(s.clients.Load())
}

// ServeHTTP upgrades the request and blocks until the connection ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	c := &client{
		server: s,
		conn:   conn,
		sub:    s.backend.Subscribe(r.URL.Query()["session"]...),
		send:   make(chan []byte, s.cfg.SendBuffer),
		done:   make(chan struct{}),
	}

	s.clients.Add(1)
	s.emit(ctx, EventClientConnected, observability.LevelInfo, c, map[string]any{
		"remote": r.RemoteAddr,
	})

	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writePump()
	}()

	c.readPump(ctx)
	close(c.done)
	<-written
	c.sub.Close()

	s.clients.Add(-1)
	s.emit(ctx, EventClientDisconnected, observability.LevelInfo, c, nil)
}

func (s *Server) emit(ctx context.Context, typ observability.EventType, level observability.Level, c *client, data map[string]any) {
	if data == nil {
		data = make(map[string]any, 1)
	}
	data["subscription"] = c.sub.ID()
	s.observer.OnEvent(ctx, observability.NewEvent(typ, level, "ws", data))
}

type client struct {
	server *Server
	conn   *websocket.Conn
	sub    *relay.Subscription
	send   chan []byte
	done   chan struct{}
}

// readPump is the only reader. It returns when the peer closes or the
// connection fails.
func (c *client) readPump(ctx context.Context) {
	cfg := c.server.cfg

	c.conn.SetReadLimit(cfg.MaxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		c.handle(ctx, raw)
	}
}

func (c *client) handle(ctx context.Context, raw []byte) {
	cmd, env, err := wire.DecodeCommand(raw)
	if err == nil {
		err = c.server.backend.TrySend(cmd)
	}
	if err == nil {
		return
	}

	var requestID string
	if env != nil {
		requestID = env.ID
	}
	c.reject(ctx, err, requestID)
}

func (c *client) reject(ctx context.Context, err error, requestID string) {
	data, merr := wire.Error(err, requestID).Marshal()
	if merr != nil {
		return
	}

	c.server.emit(ctx, EventFrameRejected, observability.LevelWarning, c, map[string]any{
		"request_id": requestID,
		"code":       wire.Code(err),
		"error":      err.Error(),
	})

	select {
	case c.send <- data:
	default:
		c.server.logger.Warn("websocket error reply dropped", slog.String("request_id", requestID))
	}
}

// writePump is the only writer. It returns when the reader is done, the
// subscription ends, or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(c.server.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case msg, ok := <-c.sub.C():
			if !ok {
				c.closeWith(c.sub.Err())
				return
			}
			env, err := wire.EncodeMessage(msg)
			if err != nil {
				c.server.logger.Error("encode outbound message", slog.String("error", err.Error()))
				continue
			}
			data, err := env.Marshal()
			if err != nil {
				continue
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}

		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
	return c.conn.WriteMessage(kind, data)
}

// closeWith tells the peer why its subscription ended.
func (c *client) closeWith(reason error) {
	code, text := websocket.CloseNormalClosure, ""
	switch {
	case errors.Is(reason, relay.ErrEvicted):
		code, text = websocket.CloseTryAgainLater, "subscriber fell behind"
	case errors.Is(reason, channel.ErrClosed):
		code, text = websocket.CloseGoingAway, "backend stopped"
	}
	c.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}
