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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newSession("s1", KindHTTP, 4, time.Now())
	assert.Equal(t, StateConnected, s.State())
	assert.False(t, s.Active())

	require.NoError(t, s.Activate(ctx, "test-client"))
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, "test-client", s.Client())

	// A second handshake is rejected.
	require.Error(t, s.Activate(ctx, "again"))

	var order []int
	s.OnClose(func() { order = append(order, 1) })
	s.OnClose(func() { order = append(order, 2) })

	assert.True(t, s.close("bye"))
	assert.False(t, s.close("again"))
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, "bye", s.CloseReason())
	assert.Equal(t, []int{2, 1}, order)

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}

	assert.ErrorIs(t, s.Activate(ctx, "late"), ErrClosed)
	ran := false
	s.OnClose(func() { ran = true })
	assert.True(t, ran)
}

func TestSession_CloseFromConnected(t *testing.T) {
	s := newSession("s1", KindHTTP, 4, time.Now())
	assert.True(t, s.close("never initialized"))
	assert.Equal(t, StateClosed, s.State())
}

func TestSession_Subscriptions(t *testing.T) {
	s := newSession("s1", KindWebSocket, 4, time.Now())

	require.NoError(t, s.Subscribe(false, []string{"b", "a", "a"}))
	all, ids := s.Subscriptions()
	assert.False(t, all)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.True(t, s.Wants("a"))
	assert.False(t, s.Wants("c"))

	require.NoError(t, s.Subscribe(true, nil))
	assert.True(t, s.Wants("c"))

	require.NoError(t, s.Unsubscribe(false, []string{"a"}))
	assert.True(t, s.Wants("a"), "wildcard still matches")

	require.NoError(t, s.Unsubscribe(true, nil))
	all, ids = s.Subscriptions()
	assert.False(t, all)
	assert.Empty(t, ids)
	assert.False(t, s.Wants("b"))

	require.NoError(t, s.Subscribe(false, []string{"x"}))
	s.close("done")
	all, ids = s.Subscriptions()
	assert.False(t, all)
	assert.Empty(t, ids)
	assert.ErrorIs(t, s.Subscribe(false, []string{"x"}), ErrClosed)
	assert.ErrorIs(t, s.Unsubscribe(true, nil), ErrClosed)
}

func TestSession_QueueBounded(t *testing.T) {
	s := newSession("s1", KindHTTP, 2, time.Now())

	assert.True(t, s.Enqueue([]byte("1")))
	assert.True(t, s.Enqueue([]byte("2")))
	assert.False(t, s.Enqueue([]byte("3")))
	assert.EqualValues(t, 1, s.Dropped())

	assert.Equal(t, []byte("1"), <-s.Queue())
	assert.True(t, s.Enqueue([]byte("4")))

	s.close("done")
	assert.False(t, s.Enqueue([]byte("5")))
	assert.EqualValues(t, 1, s.Dropped(), "closed sessions do not count drops")
}

func TestSession_Idle(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newSession("s1", KindHTTP, 0, start)
	assert.Equal(t, 10*time.Second, s.IdleFor(start.Add(10*time.Second)))

	s.Touch(start.Add(8 * time.Second))
	assert.Equal(t, 2*time.Second, s.IdleFor(start.Add(10*time.Second)))
	assert.Equal(t, DefaultQueueSize, cap(s.queue))
}

func TestSession_AttachedStreamIsNeverIdle(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newSession("s1", KindWebSocket, 0, start)

	detach := s.Attach()
	assert.True(t, s.Attached())
	assert.Zero(t, s.IdleFor(start.Add(time.Hour)))

	detach(start.Add(time.Hour))
	detach(start.Add(2 * time.Hour))
	assert.False(t, s.Attached())
	assert.Equal(t, time.Minute, s.IdleFor(start.Add(time.Hour+time.Minute)), "detach counts once and records activity")
}
