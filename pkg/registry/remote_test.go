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

package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/promptd/pkg/events"
	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/search"
	"github.com/teradata-labs/promptd/pkg/storage/memory"
)

// observed is what a listener on the second instance could read at the
// moment it was notified.
type observed struct {
	ev        prompts.ChangeEvent
	latest    *prompts.Prompt
	latestErr error
	exact     *prompts.Prompt
	exactErr  error
}

func TestRegistry_RemoteChangesAreReadableWhenNotified(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := memory.New()

	newBus := func() *events.RedisBus {
		b, err := events.NewRedisBus(ctx, events.RedisConfig{URL: "redis://" + mr.Addr(), Logger: zaptest.NewLogger(t)})
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })
		return b
	}
	idx, err := search.New()
	require.NoError(t, err)
	defer idx.Close()

	policy := Policy{RetainHistory: true}
	writer, _ := newTestRegistryOn(t, store, policy, WithBus(newBus()))
	reader, _ := newTestRegistryOn(t, store, policy, WithBus(newBus()), WithSearchIndex(idx))
	_, err = reader.Warm(ctx)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []observed
	stop := reader.Bus().Listen(func(ev prompts.ChangeEvent) {
		o := observed{ev: ev}
		o.latest, o.latestErr = reader.Get(ctx, ev.ID, prompts.LatestVersion)
		if ev.Kind != prompts.EventDeleted {
			o.exact, o.exactErr = reader.Get(ctx, ev.ID, ev.Version)
		}
		mu.Lock()
		seen = append(seen, o)
		mu.Unlock()
	})
	defer stop()

	waitFor := func(kind prompts.EventKind) observed {
		t.Helper()
		var got observed
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			for _, o := range seen {
				if o.ev.Kind == kind {
					got = o
					return true
				}
			}
			return false
		}, 3*time.Second, 10*time.Millisecond, "no %s event on the reader", kind)
		return got
	}

	_, err = writer.Create(ctx, greetSpec())
	require.NoError(t, err)
	created := waitFor(prompts.EventCreated)
	require.NoError(t, created.latestErr)
	assert.Equal(t, 0, created.latest.Version)

	// Cache the current record on the reader before it changes elsewhere.
	_, err = reader.Get(ctx, "greet", prompts.LatestVersion)
	require.NoError(t, err)

	_, err = writer.Update(ctx, "greet", 0, prompts.Patch{TemplateBody: strPtr("Hi, {{name}}")})
	require.NoError(t, err)
	updated := waitFor(prompts.EventUpdated)
	require.NoError(t, updated.latestErr)
	assert.Equal(t, 1, updated.latest.Version)
	assert.Equal(t, "Hi, {{name}}", updated.latest.TemplateBody)
	require.NoError(t, updated.exactErr)
	assert.Equal(t, 1, updated.exact.Version)

	out, err := reader.Render(ctx, prompts.RenderRequest{ID: "greet", Version: prompts.LatestVersion, Arguments: map[string]string{"name": "W"}})
	require.NoError(t, err)
	assert.Equal(t, "Hi, W", out.Text)

	hits, err := reader.Search(ctx, "hi", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "greet", hits[0].ID)

	require.NoError(t, writer.Delete(ctx, "greet"))
	deleted := waitFor(prompts.EventDeleted)
	assert.ErrorIs(t, deleted.latestErr, prompts.ErrNotFound)
	_, err = reader.Get(ctx, "greet", 1)
	require.NoError(t, err, "history stays readable")

	hits, err = reader.Search(ctx, "hi", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
