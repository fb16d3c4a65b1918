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

package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

type recorder struct {
	mu     sync.Mutex
	events []prompts.ChangeEvent
}

func (r *recorder) add(ev prompts.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []prompts.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]prompts.ChangeEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestLocalBus_SynchronousDelivery(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()

	var rec recorder
	cancel := bus.Listen(rec.add)

	ev := prompts.ChangeEvent{Kind: prompts.EventCreated, ID: "greet", Version: 0}
	require.NoError(t, bus.Publish(context.Background(), ev))
	assert.Equal(t, []prompts.ChangeEvent{ev}, rec.snapshot(), "delivered before Publish returns")

	cancel()
	require.NoError(t, bus.Publish(context.Background(), ev))
	assert.Len(t, rec.snapshot(), 1)
}

func TestRedisBus_CrossInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	url := "redis://" + mr.Addr()

	a, err := NewRedisBus(ctx, RedisConfig{URL: url, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisBus(ctx, RedisConfig{URL: url, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer b.Close()

	var onA, onB recorder
	a.Listen(onA.add)
	b.Listen(onB.add)

	ev := prompts.ChangeEvent{Kind: prompts.EventUpdated, ID: "greet", Version: 1, At: time.Now().UTC()}
	require.NoError(t, a.Publish(ctx, ev))

	// Local delivery is immediate.
	require.Len(t, onA.snapshot(), 1)

	require.Eventually(t, func() bool { return len(onB.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := onB.snapshot()[0]
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.Kind, got.Kind)
	assert.Equal(t, ev.Version, got.Version)

	// The publisher must not see its own event twice.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, onA.snapshot(), 1)
}

func TestNewRedisBus_BadURL(t *testing.T) {
	_, err := NewRedisBus(context.Background(), RedisConfig{URL: "not-a-url"})
	require.Error(t, err)
}
