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

// Package transport carries JSON-RPC frames between clients and the
// protocol server. Every transport is a thin front door: requests are
// handed to a Dispatcher and push frames are drained from the session
// queue.
package transport

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/teradata-labs/promptd/pkg/mcp/session"
)

// ErrClosed is returned by Send and Receive after Close.
var ErrClosed = errors.New("transport closed")

// Transport is a bidirectional message stream. Receive blocks until a
// frame arrives; Send may be called concurrently with Receive.
type Transport interface {
	// Send writes one frame.
	Send(ctx context.Context, message []byte) error

	// Receive reads the next frame. It returns io.EOF when the peer is gone.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the transport.
	Close() error
}

// Dispatcher is the protocol server as seen by transports.
type Dispatcher interface {
	// Connect opens a session.
	Connect(kind session.Kind) *session.Session
	// Session looks up a live session.
	Session(id string) (*session.Session, bool)
	// HandleRequest processes one frame for a session. A nil response means
	// the frame was a notification.
	HandleRequest(ctx context.Context, sessionID string, msg []byte) ([]byte, error)
	// Disconnect closes a session.
	Disconnect(sessionID, reason string) bool
	// Serve runs one session over a stream transport until it ends.
	Serve(ctx context.Context, t Transport, kind session.Kind) error
}
