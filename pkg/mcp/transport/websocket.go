// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/pkg/mcp/session"
)

const (
	defaultWriteTimeout = 10 * time.Second
	closeGracePeriod    = time.Second

	// DefaultPingInterval is how often an idle WebSocket is pinged. A peer
	// that misses two pings in a row is dropped.
	DefaultPingInterval = 30 * time.Second
)

// WebSocketTransport carries one JSON-RPC frame per text message.
type WebSocketTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewWebSocketTransport wraps an upgraded connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn, writeTimeout: defaultWriteTimeout}
}

// Send writes message as a text frame.
func (t *WebSocketTransport) Send(_ context.Context, message []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return errors.Wrap(err, "write websocket message")
	}
	return nil
}

// Receive returns the next text frame. Binary frames are skipped. A close
// by either side reads as io.EOF.
func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
				errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, errors.Wrap(err, "read websocket message")
		}
		if kind != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

// Close sends a close frame and closes the connection.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

// keepalive pings the peer every interval until ctx is done or a ping
// cannot be written.
func (t *WebSocketTransport) keepalive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

var _ Transport = (*WebSocketTransport)(nil)

// WebSocketHandlerConfig configures the WebSocket endpoint.
type WebSocketHandlerConfig struct {
	Dispatcher Dispatcher // Required
	Logger     *zap.Logger
	// AllowedOrigins lists accepted Origin headers. Empty means same
	// origin only; "*" accepts any.
	AllowedOrigins []string
	// MaxMessageBytes bounds inbound frames. Zero means DefaultMaxBodyBytes.
	MaxMessageBytes int64
	// PingInterval is the keepalive period. Zero means DefaultPingInterval.
	PingInterval time.Duration
}

// WebSocketHandler upgrades each request and serves one session over it.
type WebSocketHandler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
	maxMessage int64
	ping       time.Duration
	upgrader   websocket.Upgrader
}

// NewWebSocketHandler creates the WebSocket endpoint.
func NewWebSocketHandler(config WebSocketHandlerConfig) (*WebSocketHandler, error) {
	if config.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = DefaultMaxBodyBytes
	}
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	return &WebSocketHandler{
		dispatcher: config.Dispatcher,
		logger:     config.Logger,
		maxMessage: config.MaxMessageBytes,
		ping:       config.PingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     OriginChecker(config.AllowedOrigins),
		},
	}, nil
}

// ServeHTTP implements http.Handler.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(h.maxMessage)

	t := NewWebSocketTransport(conn)
	defer t.Close()

	// Pongs extend the read deadline, so a half-open connection fails its
	// next read instead of holding the session forever.
	wait := 2 * h.ping
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go t.keepalive(ctx, h.ping)

	if err := h.dispatcher.Serve(ctx, t, session.KindWebSocket); err != nil {
		h.logger.Warn("websocket session ended with error", zap.String("remote", r.RemoteAddr), zap.Error(err))
	}
}

// OriginChecker builds an upgrader origin check from an allow list. It
// returns nil for an empty list, which selects gorilla's same-origin check.
func OriginChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
