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

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPServer runs the router on a TCP listener.
type HTTPServer struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewHTTPServer creates a server for handler on addr.
func NewHTTPServer(addr string, handler http.Handler, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      0, // No timeout for SSE
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Addr returns the configured listen address.
func (h *HTTPServer) Addr() string { return h.httpServer.Addr }

// Start listens on the configured address and serves until Stop.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.httpServer.Addr, err)
	}
	return h.Serve(ln)
}

// Serve serves on ln until Stop.
func (h *HTTPServer) Serve(ln net.Listener) error {
	h.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := h.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server. Hijacked WebSocket connections
// are not tracked here; close them through the session manager.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server")
	return h.httpServer.Shutdown(ctx)
}
