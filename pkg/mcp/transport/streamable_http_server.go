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
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/pkg/mcp/protocol"
	"github.com/teradata-labs/promptd/pkg/mcp/session"
)

// HeaderSessionID carries the session id on every request after the
// handshake.
const HeaderSessionID = "Mcp-Session-Id"

// DefaultMaxBodyBytes bounds POST bodies.
const DefaultMaxBodyBytes = 10 << 20

// StreamableHTTPServer implements the MCP streamable-http transport on a
// single endpoint:
//   - POST carries JSON-RPC requests and returns their responses
//   - GET opens the session's server-sent event stream of push frames
//   - DELETE ends the session
//
// The first POST must be an initialize request without a session header;
// the new session id is returned in the Mcp-Session-Id response header.
type StreamableHTTPServer struct {
	dispatcher Dispatcher
	logger     *zap.Logger
	maxBody    int64
	events     *sse.Server

	mu        sync.Mutex
	streaming map[string]struct{}
}

// StreamableHTTPServerConfig configures the HTTP server transport.
type StreamableHTTPServerConfig struct {
	Dispatcher   Dispatcher // Required
	Logger       *zap.Logger
	MaxBodyBytes int64 // Zero means DefaultMaxBodyBytes
}

// NewStreamableHTTPServer creates the MCP HTTP handler.
func NewStreamableHTTPServer(config StreamableHTTPServerConfig) (*StreamableHTTPServer, error) {
	if config.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}

	events := sse.New()
	events.AutoStream = false
	events.AutoReplay = false

	return &StreamableHTTPServer{
		dispatcher: config.Dispatcher,
		logger:     config.Logger,
		maxBody:    config.MaxBodyBytes,
		events:     events,
		streaming:  make(map[string]struct{}),
	}, nil
}

// ServeHTTP implements http.Handler for the MCP endpoint.
func (s *StreamableHTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *StreamableHTTPServer) handlePost(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	// Accept "application/json" with optional params like charset.
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, _ := mime.ParseMediaType(ct)
		if mediaType != "application/json" {
			http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Warn("failed to read request body", zap.Error(err))
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "Empty request body", http.StatusBadRequest)
		return
	}

	sessionID := r.Header.Get(HeaderSessionID)
	created := false
	if sessionID == "" {
		if !isInitializeRequest(body) {
			http.Error(w, HeaderSessionID+" header required", http.StatusBadRequest)
			return
		}
		sessionID = s.dispatcher.Connect(session.KindHTTP).ID()
		created = true
	} else if _, ok := s.dispatcher.Session(sessionID); !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	resp, err := s.dispatcher.HandleRequest(r.Context(), sessionID, body)
	if err != nil {
		if errors.Is(err, session.ErrUnknown) || errors.Is(err, session.ErrClosed) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		s.logger.Error("handler error", zap.String("session_id", sessionID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if created {
		// A rejected handshake leaves nothing behind.
		if sess, ok := s.dispatcher.Session(sessionID); ok && sess.Active() {
			w.Header().Set(HeaderSessionID, sessionID)
			s.logger.Info("created new session", zap.String("session_id", sessionID))
		} else {
			s.dispatcher.Disconnect(sessionID, "handshake failed")
		}
	}

	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

// handleGet streams push frames for one session until the client goes
// away or the session closes. The session ends with its stream.
func (s *StreamableHTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		http.Error(w, HeaderSessionID+" header required", http.StatusBadRequest)
		return
	}
	sess, ok := s.dispatcher.Session(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if _, isFlusher := w.(http.Flusher); !isFlusher {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	if _, busy := s.streaming[sessionID]; busy {
		s.mu.Unlock()
		http.Error(w, "Stream already open for session", http.StatusConflict)
		return
	}
	s.streaming[sessionID] = struct{}{}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sess.OnClose(cancel)
	detach := sess.Attach()
	defer func() { detach(time.Now()) }()

	s.events.CreateStream(sessionID)
	defer func() {
		s.events.RemoveStream(sessionID)
		s.mu.Lock()
		delete(s.streaming, sessionID)
		s.mu.Unlock()
		s.dispatcher.Disconnect(sessionID, "event stream closed")
	}()

	// The sse server subscribes before it writes the header, so frames
	// published after that point reach this client.
	sw := &subscribedWriter{ResponseWriter: w, ready: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-sw.ready:
		}
		s.pump(ctx, sess)
	}()

	q := r.URL.Query()
	q.Set("stream", sessionID)
	r = r.WithContext(ctx)
	r.URL.RawQuery = q.Encode()

	s.logger.Debug("event stream opened", zap.String("session_id", sessionID))
	s.events.ServeHTTP(sw, r)
	s.logger.Debug("event stream closed", zap.String("session_id", sessionID))
}

// pump moves frames from the session queue onto its event stream.
func (s *StreamableHTTPServer) pump(ctx context.Context, sess *session.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-sess.Queue():
			s.events.Publish(sess.ID(), &sse.Event{Data: frame})
		}
	}
}

func (s *StreamableHTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		http.Error(w, HeaderSessionID+" header required", http.StatusBadRequest)
		return
	}
	if !s.dispatcher.Disconnect(sessionID, "client terminated session") {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	s.logger.Info("session terminated", zap.String("session_id", sessionID))
	w.WriteHeader(http.StatusOK)
}

// isInitializeRequest checks if the body contains an initialize method call.
func isInitializeRequest(body []byte) bool {
	var req struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	return req.Method == protocol.MethodInitialize
}

// Close ends every open event stream.
func (s *StreamableHTTPServer) Close() {
	s.events.Close()
}

// subscribedWriter signals when the first header is written.
type subscribedWriter struct {
	http.ResponseWriter
	once  sync.Once
	ready chan struct{}
}

func (w *subscribedWriter) WriteHeader(code int) {
	if code == http.StatusOK {
		w.once.Do(func() { close(w.ready) })
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *subscribedWriter) Flush() {
	w.once.Do(func() { close(w.ready) })
	w.ResponseWriter.(http.Flusher).Flush()
}

// WarnIfNotLocalhost logs a warning if addr binds a non-loopback
// interface while authentication is disabled.
func WarnIfNotLocalhost(logger *zap.Logger, addr string) {
	if logger == nil {
		return
	}
	host := addr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		host = addr[:idx]
	}
	host = strings.Trim(host, "[]")

	switch host {
	case "127.0.0.1", "::1", "localhost":
	case "", "0.0.0.0", "::":
		logger.Warn("serving without authentication on all interfaces",
			zap.String("addr", addr),
			zap.String("recommendation", "bind to 127.0.0.1 or install an authenticator"),
		)
	default:
		logger.Warn("serving without authentication on a non-loopback address",
			zap.String("addr", addr),
			zap.String("recommendation", "bind to 127.0.0.1 or install an authenticator"),
		)
	}
}
