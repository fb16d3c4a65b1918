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

// Package session tracks connected protocol sessions: their lifecycle,
// their subscriptions and the bounded queue of push frames waiting to be
// written to them.
package session

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/looplab/fsm"
)

// State is a session lifecycle state.
type State string

// Session states. Closed is terminal.
const (
	StateConnected State = "connected"
	StateActive    State = "active"
	StateClosed    State = "closed"
)

const (
	eventActivate = "activate"
	eventClose    = "close"
)

// Kind identifies the transport a session arrived on.
type Kind string

// Transport kinds.
const (
	KindHTTP      Kind = "http"
	KindWebSocket Kind = "websocket"
	KindStdio     Kind = "stdio"
)

// DefaultQueueSize bounds the pending push frames of one session.
const DefaultQueueSize = 64

var (
	// ErrClosed is returned for operations on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrUnknown is returned for session ids the manager does not hold.
	ErrUnknown = errors.New("unknown session")
)

// Session is one client connection. All methods are safe for concurrent
// use.
type Session struct {
	id        string
	kind      Kind
	createdAt time.Time

	machine *fsm.FSM

	mu     sync.Mutex
	all    bool
	ids    map[string]struct{}
	closed bool
	hooks  []func()
	reason string
	client string

	queue      chan []byte
	done       chan struct{}
	lastActive atomic.Int64
	streams    atomic.Int32
	dropped    atomic.Uint64
}

func newSession(id string, kind Kind, queueSize int, now time.Time) *Session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	s := &Session{
		id:        id,
		kind:      kind,
		createdAt: now,
		ids:       make(map[string]struct{}),
		queue:     make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}
	s.machine = fsm.NewFSM(
		string(StateConnected),
		fsm.Events{
			{Name: eventActivate, Src: []string{string(StateConnected)}, Dst: string(StateActive)},
			{Name: eventClose, Src: []string{string(StateConnected), string(StateActive)}, Dst: string(StateClosed)},
		},
		fsm.Callbacks{},
	)
	s.lastActive.Store(now.UnixNano())
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Kind returns the transport kind.
func (s *Session) Kind() Kind { return s.kind }

// CreatedAt returns when the session connected.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State returns the lifecycle state.
func (s *Session) State() State { return State(s.machine.Current()) }

// Active reports whether the handshake completed and the session is open.
func (s *Session) Active() bool { return s.machine.Is(string(StateActive)) }

// Activate moves a connected session to active.
func (s *Session) Activate(ctx context.Context, client string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.machine.Event(ctx, eventActivate); err != nil {
		return errors.Wrapf(err, "session %s cannot activate from %s", s.id, s.machine.Current())
	}
	s.client = client
	return nil
}

// Client returns the client name reported in the handshake.
func (s *Session) Client() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// close moves the session to closed, clears its subscriptions and runs
// the close hooks. It reports false if the session was already closed.
func (s *Session) close(reason string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	// Both non-terminal states accept close, so this cannot fail.
	_ = s.machine.Event(context.Background(), eventClose)
	s.closed = true
	s.reason = reason
	s.all = false
	clear(s.ids)
	hooks := s.hooks
	s.hooks = nil
	close(s.done)
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	return true
}

// CloseReason returns why the session was closed.
func (s *Session) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// OnClose registers fn to run when the session closes. Hooks run in
// reverse registration order. If the session is already closed fn runs
// immediately.
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Queue delivers pending push frames. It is never closed; select on Done
// as well.
func (s *Session) Queue() <-chan []byte { return s.queue }

// Enqueue adds a push frame without blocking. It reports false when the
// queue is full or the session is closed; full-queue drops are counted.
func (s *Session) Enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- frame:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Dropped returns how many frames were discarded because the queue was
// full.
func (s *Session) Dropped() uint64 { return s.dropped.Load() }

// Subscribe adds ids to the subscription set, or subscribes to every
// prompt when all is set.
func (s *Session) Subscribe(all bool, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if all {
		s.all = true
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return nil
}

// Unsubscribe removes ids. With all set the whole set is cleared,
// wildcard included.
func (s *Session) Unsubscribe(all bool, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if all {
		s.all = false
		clear(s.ids)
		return nil
	}
	for _, id := range ids {
		delete(s.ids, id)
	}
	return nil
}

// Subscriptions returns the wildcard flag and the sorted explicit ids.
func (s *Session) Subscriptions() (all bool, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids = make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return s.all, ids
}

// Wants reports whether a change to id should be pushed to this session.
func (s *Session) Wants(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.all {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// Touch records activity.
func (s *Session) Touch(now time.Time) {
	s.lastActive.Store(now.UnixNano())
}

// Attach marks an open push stream (an SSE response or a WebSocket
// connection). A session with an attached stream is never idle. The
// returned function detaches it and records activity at that moment.
func (s *Session) Attach() (detach func(now time.Time)) {
	s.streams.Add(1)
	var once sync.Once
	return func(now time.Time) {
		once.Do(func() {
			s.Touch(now)
			s.streams.Add(-1)
		})
	}
}

// Attached reports whether a push stream is open.
func (s *Session) Attached() bool { return s.streams.Load() > 0 }

// IdleFor returns the time since the last activity, or zero while a push
// stream is attached.
func (s *Session) IdleFor(now time.Time) time.Duration {
	if s.Attached() {
		return 0
	}
	return now.Sub(time.Unix(0, s.lastActive.Load()))
}
