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

// Package server dispatches JSON-RPC requests from protocol sessions onto
// the prompt registry and fans change events out to subscribed sessions.
package server

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/internal/version"
	"github.com/teradata-labs/promptd/pkg/events"
	"github.com/teradata-labs/promptd/pkg/mcp/protocol"
	"github.com/teradata-labs/promptd/pkg/mcp/session"
	"github.com/teradata-labs/promptd/pkg/mcp/transport"
	"github.com/teradata-labs/promptd/pkg/observability"
	"github.com/teradata-labs/promptd/pkg/prompts"
)

// ServerName is reported in the initialize result.
const ServerName = "promptd"

// handlerFunc processes the params of one method for a session.
type handlerFunc func(ctx context.Context, sess *session.Session, params json.RawMessage) (interface{}, error)

// Config configures a Server.
type Config struct {
	Service  prompts.Service  // Required
	Sessions *session.Manager // Required
	Tracer   observability.Tracer
	Logger   *zap.Logger
	// RetryAttempts bounds attempts of idempotent reads that hit
	// IOFailure. Zero means DefaultRetryAttempts.
	RetryAttempts int
	// Instructions is returned to clients in the initialize result.
	Instructions string
}

// Server is the protocol session layer. It is safe for concurrent use by
// any number of sessions.
type Server struct {
	service  prompts.Service
	sessions *session.Manager
	tracer   observability.Tracer
	logger   *zap.Logger
	retry    retryPolicy

	info         protocol.Implementation
	instructions string
	handlers     map[string]handlerFunc
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("server: service is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("server: session manager is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}

	s := &Server{
		service:      cfg.Service,
		sessions:     cfg.Sessions,
		tracer:       cfg.Tracer,
		logger:       cfg.Logger,
		retry:        newRetryPolicy(cfg.RetryAttempts),
		info:         protocol.Implementation{Name: ServerName, Version: version.Get()},
		instructions: cfg.Instructions,
	}
	s.registerHandlers()
	return s, nil
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager { return s.sessions }

// Connect opens a session on a transport of the given kind.
func (s *Server) Connect(kind session.Kind) *session.Session {
	return s.sessions.Connect(kind)
}

// Session looks up a live session.
func (s *Server) Session(id string) (*session.Session, bool) {
	return s.sessions.Get(id)
}

// Disconnect closes a session and drops its subscriptions.
func (s *Server) Disconnect(sessionID, reason string) bool {
	return s.sessions.Disconnect(sessionID, reason)
}

// Listen feeds change events from bus to subscribed sessions. The returned
// function stops it.
func (s *Server) Listen(bus events.Bus) (cancel func()) {
	return bus.Listen(s.sessions.Broadcast)
}

// HandleRequest processes one JSON-RPC frame for a session and returns the
// encoded response, or nil for notifications. Protocol-level failures are
// encoded as error responses; the error return is reserved for unknown or
// closed sessions.
func (s *Server) HandleRequest(ctx context.Context, sessionID string, msg []byte) ([]byte, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, errors.Wrapf(session.ErrUnknown, "session %s", sessionID)
	}
	sess.Touch(s.sessions.Now())

	req, perr := protocol.ParseRequest(msg)
	if perr != nil {
		var id *protocol.RequestID
		if req != nil {
			id = req.ID
		}
		return encodeResponse(protocol.NewErrorResponse(id, perr))
	}

	ctx, span := s.tracer.StartSpan(ctx, "mcp."+req.Method,
		observability.WithAttribute("session_id", sessionID),
		observability.WithAttribute("transport", string(sess.Kind())))
	defer s.tracer.EndSpan(span)
	start := time.Now()

	result, rpcErr := s.dispatch(ctx, sess, req)

	if rpcErr != nil {
		span.RecordError(rpcErr)
	}
	s.logger.Debug("request handled",
		zap.String("session_id", sessionID),
		zap.String("method", req.Method),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("error", rpcErr != nil))

	// A session that went away mid-request never sees the result. Writes
	// have already committed and published their events.
	select {
	case <-sess.Done():
		s.logger.Debug("discarding result for closed session",
			zap.String("session_id", sessionID), zap.String("method", req.Method))
		return nil, errors.Wrapf(session.ErrClosed, "session %s", sessionID)
	default:
	}

	if req.IsNotification() {
		return nil, nil
	}
	if rpcErr != nil {
		return encodeResponse(protocol.NewErrorResponse(req.ID, rpcErr))
	}
	resp, err := protocol.NewResult(req.ID, result)
	if err != nil {
		s.logger.Error("failed to encode result", zap.String("method", req.Method), zap.Error(err))
		return encodeResponse(protocol.NewErrorResponse(req.ID, protocol.ErrorFromDomain(err)))
	}
	return encodeResponse(resp)
}

// dispatch gates the method on the session state, validates params and
// runs the handler.
func (s *Server) dispatch(ctx context.Context, sess *session.Session, req *protocol.Request) (interface{}, *protocol.Error) {
	h, ok := s.handlers[req.Method]
	if !ok {
		return nil, protocol.NewError(protocol.MethodNotFound, "method not found: "+req.Method, nil)
	}
	if !sess.Active() && !req.IsNotification() &&
		req.Method != protocol.MethodInitialize && req.Method != protocol.MethodPing {
		return nil, protocol.NewError(protocol.SessionNotInitialized, "session not initialized", nil)
	}
	if perr := protocol.ValidateParams(req.Method, req.Params); perr != nil {
		return nil, perr
	}

	result, err := h(ctx, sess, req.Params)
	if err != nil {
		rpcErr := protocol.ErrorFromDomain(err)
		if rpcErr.Code == protocol.InternalError {
			s.logger.Error("handler error",
				zap.String("session_id", sess.ID()), zap.String("method", req.Method), zap.Error(err))
		}
		return nil, rpcErr
	}
	return result, nil
}

// Serve runs one session over a stream transport: a receive loop for
// requests and a pump for push frames. It returns when the peer goes away,
// the session is closed or ctx is done. The session is always closed on
// return.
func (s *Server) Serve(ctx context.Context, t transport.Transport, kind session.Kind) error {
	sess := s.Connect(kind)
	sessionID := sess.ID()
	// The connection itself is the liveness signal; a subscriber that only
	// listens is not idle.
	detach := sess.Attach()
	defer func() { detach(s.sessions.Now()) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	reason := "transport closed"
	defer func() { s.Disconnect(sessionID, reason) }()
	// Closing the session from elsewhere (reaper, shutdown) unblocks the
	// receive loop.
	sess.OnClose(func() {
		cancel()
		_ = t.Close()
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-sess.Queue():
				if err := t.Send(ctx, frame); err != nil {
					s.logger.Debug("push send failed", zap.String("session_id", sessionID), zap.Error(err))
					cancel()
					return
				}
			}
		}
	}()

	for {
		msg, err := t.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, transport.ErrClosed):
				return nil
			case ctx.Err() != nil:
				reason = "context done"
				return nil
			}
			reason = "receive error"
			return errors.Wrap(err, "receive")
		}

		resp, err := s.HandleRequest(ctx, sessionID, msg)
		if err != nil {
			if errors.Is(err, session.ErrClosed) || errors.Is(err, session.ErrUnknown) {
				return nil
			}
			return err
		}
		if resp == nil {
			continue
		}
		if err := t.Send(ctx, resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			reason = "send error"
			return errors.Wrap(err, "send")
		}
	}
}

func encodeResponse(resp *protocol.Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal response")
	}
	return data, nil
}
