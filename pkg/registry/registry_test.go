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
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/search"
	"github.com/teradata-labs/promptd/pkg/storage"
	"github.com/teradata-labs/promptd/pkg/storage/memory"
)

type recorder struct {
	mu     sync.Mutex
	events []prompts.ChangeEvent
}

func (r *recorder) add(ev prompts.ChangeEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []prompts.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]prompts.ChangeEvent, len(r.events))
	for i, ev := range r.events {
		ev.At = time.Time{}
		out[i] = ev
	}
	return out
}

func newTestRegistry(t *testing.T, policy Policy, opts ...Option) (*Registry, *recorder) {
	t.Helper()
	return newTestRegistryOn(t, memory.New(), policy, opts...)
}

func newTestRegistryOn(t *testing.T, store storage.Adapter, policy Policy, opts ...Option) (*Registry, *recorder) {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	r := New(store, policy, opts...)
	rec := &recorder{}
	cancel := r.Bus().Listen(rec.add)
	t.Cleanup(cancel)
	return r, rec
}

func strPtr(s string) *string { return &s }

func greetSpec() prompts.Spec {
	return prompts.Spec{
		ID:           "greet",
		Name:         "Greeting",
		TemplateBody: "Hello, {{name}}!",
		Arguments:    []prompts.Argument{{Name: "name", Required: true}},
		Tags:         []string{"demo"},
	}
}

func ev(kind prompts.EventKind, id string, version int) prompts.ChangeEvent {
	return prompts.ChangeEvent{Kind: kind, ID: id, Version: version}
}

func TestRegistry_CreateGet(t *testing.T) {
	ctx := context.Background()
	r, rec := newTestRegistry(t, Policy{})

	created, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)
	assert.Equal(t, 0, created.Version)
	assert.Equal(t, "Greeting", created.Name)
	assert.Equal(t, []string{"demo"}, created.Tags)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.Equal(t, time.UTC, created.CreatedAt.Location())

	got, err := r.Get(ctx, "greet", prompts.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	got, err = r.Get(ctx, "greet", 0)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = r.Get(ctx, "greet", 1)
	assert.ErrorIs(t, err, prompts.ErrNotFound)
	_, err = r.Get(ctx, "nope", prompts.LatestVersion)
	assert.ErrorIs(t, err, prompts.ErrNotFound)

	assert.Equal(t, []prompts.ChangeEvent{ev(prompts.EventCreated, "greet", 0)}, rec.all())
}

func TestRegistry_CreateAssignsID(t *testing.T) {
	r, _ := newTestRegistry(t, Policy{})
	spec := greetSpec()
	spec.ID = ""

	p, err := r.Create(context.Background(), spec)
	require.NoError(t, err)
	assert.Len(t, p.ID, 36)
}

func TestRegistry_CreateRejects(t *testing.T) {
	ctx := context.Background()
	r, rec := newTestRegistry(t, Policy{})

	_, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)

	_, err = r.Create(ctx, greetSpec())
	assert.ErrorIs(t, err, prompts.ErrDuplicateID)

	tests := []struct {
		name   string
		mutate func(*prompts.Spec)
	}{
		{"missing name", func(s *prompts.Spec) { s.Name = "" }},
		{"bad id", func(s *prompts.Spec) { s.ID = "has space" }},
		{"undeclared placeholder", func(s *prompts.Spec) { s.TemplateBody = "{{who}}" }},
		{"unterminated placeholder", func(s *prompts.Spec) { s.TemplateBody = "Hi {{name" }},
		{"duplicate argument", func(s *prompts.Spec) {
			s.Arguments = append(s.Arguments, prompts.Argument{Name: "name"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := greetSpec()
			spec.ID = "other"
			tt.mutate(&spec)
			_, err := r.Create(ctx, spec)
			assert.ErrorIs(t, err, prompts.ErrValidationFailed)
		})
	}

	// Only the first create emitted an event.
	assert.Len(t, rec.all(), 1)
}

func TestRegistry_DeletedIDIsNotReused(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, Policy{})

	_, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, "greet"))

	_, err = r.Create(ctx, greetSpec())
	assert.ErrorIs(t, err, prompts.ErrDuplicateID)

	// A fresh registry over the same store agrees.
	fresh := New(r.Store(), Policy{})
	_, err = fresh.Create(ctx, greetSpec())
	assert.ErrorIs(t, err, prompts.ErrDuplicateID)
}

func TestRegistry_UpdateScenario(t *testing.T) {
	ctx := context.Background()
	r, rec := newTestRegistry(t, Policy{RetainHistory: true})

	_, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)

	out, err := r.Render(ctx, prompts.RenderRequest{ID: "greet", Version: prompts.LatestVersion, Arguments: map[string]string{"name": "Ada"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada!", out.Text)

	updated, err := r.Update(ctx, "greet", 0, prompts.Patch{TemplateBody: strPtr("Hi, {{name}}.")})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt) || updated.UpdatedAt.Equal(updated.CreatedAt))

	_, err = r.Update(ctx, "greet", 0, prompts.Patch{TemplateBody: strPtr("stale")})
	assert.ErrorIs(t, err, prompts.ErrVersionConflict)

	out, err = r.Render(ctx, prompts.RenderRequest{ID: "greet", Version: prompts.LatestVersion, Arguments: map[string]string{"name": "Ada"}})
	require.NoError(t, err)
	assert.Equal(t, "Hi, Ada.", out.Text)
	assert.Equal(t, 1, out.Version)

	old, err := r.Render(ctx, prompts.RenderRequest{ID: "greet", Version: 0, Arguments: map[string]string{"name": "Ada"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada!", old.Text)

	require.NoError(t, r.Delete(ctx, "greet"))
	_, err = r.Get(ctx, "greet", prompts.LatestVersion)
	assert.ErrorIs(t, err, prompts.ErrNotFound)
	v1, err := r.Get(ctx, "greet", 1)
	require.NoError(t, err)
	assert.Equal(t, "Hi, {{name}}.", v1.TemplateBody)
	_, err = r.Get(ctx, "greet", 2)
	assert.ErrorIs(t, err, prompts.ErrNotFound, "the tombstone is not readable")

	versions, err := r.Versions(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, versions)

	assert.Equal(t, []prompts.ChangeEvent{
		ev(prompts.EventCreated, "greet", 0),
		ev(prompts.EventUpdated, "greet", 1),
		ev(prompts.EventDeleted, "greet", 2),
	}, rec.all())

	err = r.Delete(ctx, "greet")
	assert.ErrorIs(t, err, prompts.ErrNotFound)
	_, err = r.Update(ctx, "greet", 2, prompts.Patch{Name: strPtr("x")})
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}

func TestRegistry_DeleteWithoutHistory(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, Policy{RetainHistory: false})

	_, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)
	_, err = r.Update(ctx, "greet", 0, prompts.Patch{Description: strPtr("d")})
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, "greet"))

	for _, v := range []int{prompts.LatestVersion, 0, 1, 2} {
		_, err := r.Get(ctx, "greet", v)
		assert.ErrorIs(t, err, prompts.ErrNotFound, "version %d", v)
	}
	_, err = r.Versions(ctx, "greet")
	assert.ErrorIs(t, err, prompts.ErrNotFound)

	// Only the tombstone is left in storage.
	stored, err := r.Store().Versions(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, stored)
}

func TestRegistry_UpdateNoop(t *testing.T) {
	ctx := context.Background()
	r, rec := newTestRegistry(t, Policy{})

	created, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)

	same, err := r.Update(ctx, "greet", 0, prompts.Patch{Name: strPtr("Greeting"), Tags: &[]string{"demo", "demo"}})
	require.NoError(t, err)
	assert.Equal(t, created, same)

	same, err = r.Update(ctx, "greet", 0, prompts.Patch{})
	require.NoError(t, err)
	assert.Equal(t, 0, same.Version)
	assert.Len(t, rec.all(), 1)
}

func TestRegistry_UpdateValidates(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, Policy{})
	_, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)

	_, err = r.Update(ctx, "greet", 0, prompts.Patch{TemplateBody: strPtr("{{unknown}}")})
	assert.ErrorIs(t, err, prompts.ErrValidationFailed)

	p, err := r.Get(ctx, "greet", prompts.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Version)
}

func TestRegistry_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	r, rec := newTestRegistry(t, Policy{})
	_, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Update(ctx, "greet", 0, prompts.Patch{Description: strPtr(fmt.Sprintf("writer %d", i))})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case prompts.KindOf(err) == prompts.KindVersionConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, conflicts)

	p, err := r.Get(ctx, "greet", prompts.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Version)
	assert.Len(t, rec.all(), 2)
}

func TestRegistry_ParallelIDs(t *testing.T) {
	ctx := context.Background()
	r, rec := newTestRegistry(t, Policy{})

	const ids = 32
	var wg sync.WaitGroup
	for i := 0; i < ids; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			spec := greetSpec()
			spec.ID = fmt.Sprintf("p%02d", i)
			if _, err := r.Create(ctx, spec); err != nil {
				t.Errorf("create %s: %v", spec.ID, err)
				return
			}
			for v := 0; v < 3; v++ {
				if _, err := r.Update(ctx, spec.ID, v, prompts.Patch{Description: strPtr(fmt.Sprint(v))}); err != nil {
					t.Errorf("update %s: %v", spec.ID, err)
				}
			}
		}(i)
	}
	wg.Wait()

	// Per-id events arrive in commit order.
	last := map[string]int{}
	for _, e := range rec.all() {
		prev, seen := last[e.ID]
		if seen {
			assert.Equal(t, prev+1, e.Version, e.ID)
		} else {
			assert.Equal(t, 0, e.Version, e.ID)
		}
		last[e.ID] = e.Version
	}
	assert.Len(t, last, ids)
}

func TestRegistry_Render(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, Policy{})

	_, err := r.Create(ctx, prompts.Spec{
		ID:           "letter",
		Name:         "Letter",
		TemplateBody: "{{salutation}} {{name}},{{ps}}",
		Arguments: []prompts.Argument{
			{Name: "name", Required: true},
			{Name: "salutation", Required: true, Default: strPtr("Dear")},
			{Name: "ps"},
		},
	})
	require.NoError(t, err)

	out, err := r.Render(ctx, prompts.RenderRequest{ID: "letter", Version: prompts.LatestVersion,
		Arguments: map[string]string{"name": "Ada", "extra": "ignored"}})
	require.NoError(t, err)
	assert.Equal(t, "Dear Ada,", out.Text)

	again, err := r.Render(ctx, prompts.RenderRequest{ID: "letter", Version: prompts.LatestVersion,
		Arguments: map[string]string{"name": "Ada", "extra": "ignored"}})
	require.NoError(t, err)
	assert.Equal(t, out, again)

	out, err = r.Render(ctx, prompts.RenderRequest{ID: "letter", Version: prompts.LatestVersion,
		Arguments: map[string]string{"name": "Ada", "salutation": "Hi", "ps": " bye"}})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada, bye", out.Text)

	_, err = r.Render(ctx, prompts.RenderRequest{ID: "letter", Version: prompts.LatestVersion})
	require.Error(t, err)
	assert.ErrorIs(t, err, prompts.ErrMissingArgument)
	assert.ErrorIs(t, err, prompts.ErrValidationFailed)
	assert.Contains(t, err.Error(), "name")

	_, err = r.Render(ctx, prompts.RenderRequest{ID: "missing", Version: prompts.LatestVersion})
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}

func TestRegistry_ListPagination(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, Policy{})

	for i := 0; i < 23; i++ {
		spec := greetSpec()
		spec.ID = fmt.Sprintf("p%02d", i)
		if i%2 == 0 {
			spec.Tags = []string{"even", "demo"}
		}
		_, err := r.Create(ctx, spec)
		require.NoError(t, err)
	}
	require.NoError(t, r.Delete(ctx, "p05"))

	var ids []string
	cursor := ""
	pages := 0
	for {
		page, err := r.List(ctx, prompts.ListFilter{Limit: 5, Cursor: cursor})
		require.NoError(t, err)
		pages++
		for _, p := range page.Prompts {
			ids = append(ids, p.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, ids, 22)
	assert.IsIncreasing(t, ids)
	assert.NotContains(t, ids, "p05")
	assert.Equal(t, 5, pages)

	page, err := r.List(ctx, prompts.ListFilter{Tags: []string{"even"}, Limit: 100})
	require.NoError(t, err)
	assert.Len(t, page.Prompts, 12)
	assert.Empty(t, page.NextCursor)

	_, err = r.List(ctx, prompts.ListFilter{Cursor: "!!not-a-cursor"})
	assert.ErrorIs(t, err, prompts.ErrValidationFailed)

	empty, err := r.List(ctx, prompts.ListFilter{NamePrefix: "zzz"})
	require.NoError(t, err)
	assert.NotNil(t, empty.Prompts)
	assert.Empty(t, empty.Prompts)
}

func TestRegistry_MaxVersions(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, Policy{RetainHistory: true, MaxVersions: 2})

	_, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)
	for v := 0; v < 4; v++ {
		_, err := r.Update(ctx, "greet", v, prompts.Patch{Description: strPtr(fmt.Sprint(v))})
		require.NoError(t, err)
	}

	versions, err := r.Versions(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, versions)

	_, err = r.Get(ctx, "greet", 1)
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}

func TestRegistry_Diff(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, Policy{})

	_, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)
	_, err = r.Update(ctx, "greet", 0, prompts.Patch{TemplateBody: strPtr("Hello there, {{name}}!")})
	require.NoError(t, err)

	d, err := r.Diff(ctx, "greet", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 6, d.Insertions)
	assert.Equal(t, 0, d.Deletions)
	assert.Contains(t, d.Patch, "@@")

	same, err := r.Diff(ctx, "greet", 1, 1)
	require.NoError(t, err)
	assert.Zero(t, same.Insertions)
	assert.Empty(t, same.Patch)

	_, err = r.Diff(ctx, "greet", 0, 7)
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}

func TestRegistry_Search(t *testing.T) {
	ctx := context.Background()

	r, _ := newTestRegistry(t, Policy{})
	_, err := r.Search(ctx, "hello", 10)
	assert.ErrorIs(t, err, prompts.ErrValidationFailed)

	idx, err := search.New()
	require.NoError(t, err)
	defer idx.Close()
	r, _ = newTestRegistry(t, Policy{}, WithSearchIndex(idx))

	_, err = r.Create(ctx, greetSpec())
	require.NoError(t, err)
	hits, err := r.Search(ctx, "hello", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "greet", hits[0].ID)

	require.NoError(t, r.Delete(ctx, "greet"))
	hits, err = r.Search(ctx, "hello", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRegistry_Warm(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed := New(store, Policy{})
	for _, id := range []string{"a", "b", "c"} {
		spec := greetSpec()
		spec.ID = id
		_, err := seed.Create(ctx, spec)
		require.NoError(t, err)
	}

	idx, err := search.New()
	require.NoError(t, err)
	defer idx.Close()
	r, _ := newTestRegistryOn(t, store, Policy{}, WithSearchIndex(idx))

	n, err := r.Warm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	count, err := idx.Len()
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestRegistry_CacheServesReads(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, Policy{})
	_, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)

	// Remove the record behind the registry's back. The cached copy keeps
	// serving until invalidated.
	require.NoError(t, r.Store().Delete(ctx, "greet"))
	_, err = r.Get(ctx, "greet", prompts.LatestVersion)
	require.NoError(t, err)

	r.Invalidate("greet")
	_, err = r.Get(ctx, "greet", prompts.LatestVersion)
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}

func TestRegistry_Clock(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 891234567, time.FixedZone("X", 3600))
	r, _ := newTestRegistry(t, Policy{}, WithClock(func() time.Time { return at }))

	p, err := r.Create(context.Background(), greetSpec())
	require.NoError(t, err)
	assert.Equal(t, at.UTC().Truncate(time.Microsecond), p.CreatedAt)
}

func TestRegistry_MaxVersionsExcludesTombstone(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, Policy{RetainHistory: true, MaxVersions: 1})

	_, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)
	_, err = r.Update(ctx, "greet", 0, prompts.Patch{TemplateBody: strPtr("Hi, {{name}}")})
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, "greet"))

	_, err = r.Get(ctx, "greet", prompts.LatestVersion)
	assert.ErrorIs(t, err, prompts.ErrNotFound)
	p, err := r.Get(ctx, "greet", 1)
	require.NoError(t, err)
	assert.Equal(t, "Hi, {{name}}", p.TemplateBody)

	versions, err := r.Versions(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions)

	removed, err := r.Compact(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

// gatedStore holds latest-version reads until released. A read honours
// its context, like a network-backed adapter would.
type gatedStore struct {
	storage.Adapter
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Get(ctx context.Context, id string, version int) (*prompts.Prompt, error) {
	if s.armed.Load() && version == prompts.LatestVersion {
		s.entered <- struct{}{}
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Adapter.Get(ctx, id, version)
}

func TestRegistry_CoalescedLoadSurvivesCallerCancel(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{Adapter: memory.New(), entered: make(chan struct{}, 2), release: make(chan struct{})}
	r, _ := newTestRegistryOn(t, store, Policy{})
	_, err := r.Create(ctx, greetSpec())
	require.NoError(t, err)
	r.Invalidate("greet")
	store.armed.Store(true)

	first, cancelFirst := context.WithCancel(ctx)
	errs := make(chan error, 2)
	go func() {
		_, err := r.Get(first, "greet", prompts.LatestVersion)
		errs <- err
	}()
	<-store.entered
	go func() {
		_, err := r.Get(ctx, "greet", prompts.LatestVersion)
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("get did not return")
		}
	}
}
