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

package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/pkg/mcp/protocol"
	"github.com/teradata-labs/promptd/pkg/observability"
	"github.com/teradata-labs/promptd/pkg/prompts"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// IdleTimeout closes sessions without activity for this long. Zero
	// disables the reaper. Stdio sessions are never reaped.
	IdleTimeout time.Duration
	// QueueSize bounds each session's push queue.
	QueueSize int

	Tracer observability.Tracer
	Logger *zap.Logger
	Now    func() time.Time
}

// Manager owns every live session.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleTimeout time.Duration
	queueSize   int
	tracer      observability.Tracer
	logger      *zap.Logger
	now         func() time.Time
}

// NewManager creates an empty manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		idleTimeout: cfg.IdleTimeout,
		queueSize:   cfg.QueueSize,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
}

// Connect registers a new session in the connected state.
func (m *Manager) Connect(kind Kind) *Session {
	s := newSession(uuid.NewString(), kind, m.queueSize, m.now())
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.tracer.RecordMetric(observability.MetricSessionsActive, 1, nil)
	m.logger.Debug("session connected", zap.String("session_id", s.id), zap.String("transport", string(kind)))
	return s
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Disconnect closes and forgets a session. It reports false for unknown
// ids.
func (m *Manager) Disconnect(id, reason string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	if s.close(reason) {
		m.tracer.RecordMetric(observability.MetricSessionsActive, -1, nil)
		m.logger.Debug("session closed",
			zap.String("session_id", id), zap.String("reason", reason), zap.Uint64("dropped", s.Dropped()))
	}
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast queues the push frame for ev on every active session that
// subscribed to its id. It never blocks: a full queue drops the frame for
// that session only.
func (m *Manager) Broadcast(ev prompts.ChangeEvent) {
	var frame []byte
	for _, s := range m.snapshot() {
		if !s.Active() || !s.Wants(ev.ID) {
			continue
		}
		if frame == nil {
			var err error
			if frame, err = protocol.EncodeChange(ev); err != nil {
				m.logger.Error("failed to encode change notification", zap.Error(err))
				return
			}
		}
		if s.Enqueue(frame) {
			m.tracer.RecordMetric(observability.MetricNotifications, 1, map[string]string{"result": "delivered"})
			continue
		}
		m.tracer.RecordMetric(observability.MetricNotifications, 1, map[string]string{"result": "dropped"})
		m.logger.Warn("session queue full, dropped change notification",
			zap.String("session_id", s.id),
			zap.String("prompt_id", ev.ID),
			zap.Int("version", ev.Version),
			zap.Uint64("dropped_total", s.Dropped()))
	}
}

// Run closes idle sessions until ctx is done. The sweep interval is half
// the idle timeout, at least one second.
func (m *Manager) Run(ctx context.Context) error {
	if m.idleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}
	interval := m.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Reap()
		}
	}
}

// Reap closes sessions idle longer than the timeout and returns how many
// were closed.
func (m *Manager) Reap() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	now := m.now()
	n := 0
	for _, s := range m.snapshot() {
		if s.kind == KindStdio || s.IdleFor(now) <= m.idleTimeout {
			continue
		}
		if m.Disconnect(s.id, "idle timeout") {
			m.logger.Info("session expired", zap.String("session_id", s.id))
			n++
		}
	}
	return n
}

// CloseAll closes every session.
func (m *Manager) CloseAll(reason string) {
	for _, s := range m.snapshot() {
		m.Disconnect(s.id, reason)
	}
}

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time { return m.now() }
