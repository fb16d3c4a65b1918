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

// Package storagetest is a conformance suite for storage.Adapter
// implementations. Every backend must behave like the memory adapter.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/storage"
)

// Factory returns a fresh, empty adapter. Cleanup is registered on t.
type Factory func(t *testing.T) storage.Adapter

// Run executes the full suite against adapters produced by newAdapter.
func Run(t *testing.T, newAdapter Factory) {
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, newAdapter(t)) })
	t.Run("PutConflict", func(t *testing.T) { testPutConflict(t, newAdapter(t)) })
	t.Run("GetVersions", func(t *testing.T) { testGetVersions(t, newAdapter(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newAdapter(t)) })
	t.Run("ScanOrderAndPages", func(t *testing.T) { testScanPages(t, newAdapter(t)) })
	t.Run("ScanFilters", func(t *testing.T) { testScanFilters(t, newAdapter(t)) })
	t.Run("ScanSkipsTombstones", func(t *testing.T) { testScanTombstones(t, newAdapter(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newAdapter(t)) })
	t.Run("DeleteVersion", func(t *testing.T) { testDeleteVersion(t, newAdapter(t)) })
	t.Run("ConcurrentPutSameVersion", func(t *testing.T) { testConcurrentPut(t, newAdapter(t)) })
	t.Run("Prune", func(t *testing.T) { testPrune(t, newAdapter(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newAdapter(t).Ping(context.Background())) })
}

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)

// NewPrompt builds a valid record at version 0 for tests.
func NewPrompt(id string, tags ...string) *prompts.Prompt {
	def := "friend"
	return &prompts.Prompt{
		ID:           id,
		Version:      0,
		Name:         "Prompt " + id,
		Description:  "test prompt " + id,
		TemplateBody: "Hello, {{name}}! {{greeting}}",
		Arguments: []prompts.Argument{
			{Name: "name", Required: true, Description: "who to greet"},
			{Name: "greeting", Default: &def},
		},
		Tags:      prompts.NormalizeTags(tags),
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
}

// NextVersion returns a copy of p one version later.
func NextVersion(p *prompts.Prompt, body string) *prompts.Prompt {
	n := p.Clone()
	n.Version++
	n.TemplateBody = body
	n.UpdatedAt = p.UpdatedAt.Add(time.Second)
	return n
}

// Tombstone returns the tombstone version that follows p.
func Tombstone(p *prompts.Prompt) *prompts.Prompt {
	n := p.Clone()
	n.Version++
	at := p.UpdatedAt.Add(time.Second)
	n.UpdatedAt = at
	n.DeletedAt = &at
	return n
}

// AssertSamePrompt compares records, tolerating nil versus empty slices
// and time zone representation.
func AssertSamePrompt(t *testing.T, want, got *prompts.Prompt) {
	t.Helper()
	require.NotNil(t, got)
	w, g := normalize(want), normalize(got)

	assert.True(t, w.CreatedAt.Equal(g.CreatedAt), "created_at: want %v got %v", w.CreatedAt, g.CreatedAt)
	assert.True(t, w.UpdatedAt.Equal(g.UpdatedAt), "updated_at: want %v got %v", w.UpdatedAt, g.UpdatedAt)
	if w.DeletedAt == nil {
		assert.Nil(t, g.DeletedAt)
	} else if assert.NotNil(t, g.DeletedAt) {
		assert.True(t, w.DeletedAt.Equal(*g.DeletedAt))
	}

	w.CreatedAt, w.UpdatedAt, w.DeletedAt = time.Time{}, time.Time{}, nil
	g.CreatedAt, g.UpdatedAt, g.DeletedAt = time.Time{}, time.Time{}, nil
	assert.Equal(t, w, g)
}

func normalize(p *prompts.Prompt) *prompts.Prompt {
	c := p.Clone()
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Arguments == nil {
		c.Arguments = []prompts.Argument{}
	}
	return c
}

func put(t *testing.T, a storage.Adapter, p *prompts.Prompt) {
	t.Helper()
	require.NoError(t, a.Put(context.Background(), p))
}

func testPutGet(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	p := NewPrompt("greet", "b", "a")
	put(t, a, p)

	got, err := a.Get(ctx, "greet", prompts.LatestVersion)
	require.NoError(t, err)
	AssertSamePrompt(t, p, got)

	got, err = a.Get(ctx, "greet", 0)
	require.NoError(t, err)
	AssertSamePrompt(t, p, got)

	// Mutating the returned record must not affect storage.
	got.Name = "changed"
	again, err := a.Get(ctx, "greet", 0)
	require.NoError(t, err)
	assert.Equal(t, p.Name, again.Name)

	// No arguments and no tags round-trip too.
	bare := &prompts.Prompt{ID: "bare", Name: "Bare", TemplateBody: "static", CreatedAt: epoch, UpdatedAt: epoch}
	put(t, a, bare)
	got, err = a.Get(ctx, "bare", prompts.LatestVersion)
	require.NoError(t, err)
	AssertSamePrompt(t, bare, got)
}

func testPutConflict(t *testing.T, a storage.Adapter) {
	p := NewPrompt("greet")
	put(t, a, p)

	err := a.Put(context.Background(), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, prompts.ErrConflict)
}

func testGetVersions(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	v0 := NewPrompt("greet")
	v1 := NextVersion(v0, "Hi, {{name}}")
	v2 := NextVersion(v1, "Hey, {{name}}")
	put(t, a, v0)
	put(t, a, v1)
	put(t, a, v2)

	cur, err := a.Get(ctx, "greet", prompts.LatestVersion)
	require.NoError(t, err)
	AssertSamePrompt(t, v2, cur)

	old, err := a.Get(ctx, "greet", 1)
	require.NoError(t, err)
	AssertSamePrompt(t, v1, old)

	versions, err := a.Versions(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, versions)
}

func testGetMissing(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	_, err := a.Get(ctx, "nope", prompts.LatestVersion)
	assert.ErrorIs(t, err, prompts.ErrNotFound)

	put(t, a, NewPrompt("greet"))
	_, err = a.Get(ctx, "greet", 7)
	assert.ErrorIs(t, err, prompts.ErrNotFound)

	_, err = a.Versions(ctx, "nope")
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}

func testScanPages(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	ids := []string{"e", "a", "d", "b", "c", "f", "g"}
	for _, id := range ids {
		put(t, a, NewPrompt(id))
	}
	// A second version must not produce a second row.
	v0, err := a.Get(ctx, "c", 0)
	require.NoError(t, err)
	put(t, a, NextVersion(v0, "changed {{name}} {{greeting}}"))

	var seen []string
	after := ""
	for pages := 0; pages < 10; pages++ {
		res, err := a.Scan(ctx, storage.ScanFilter{After: after, Limit: 3})
		require.NoError(t, err)
		for _, p := range res.Prompts {
			seen = append(seen, p.ID)
			if p.ID == "c" {
				assert.Equal(t, 1, p.Version, "scan returns the current version")
			}
		}
		if res.Next == "" {
			break
		}
		assert.Len(t, res.Prompts, 3)
		assert.Equal(t, res.Prompts[len(res.Prompts)-1].ID, res.Next)
		after = res.Next
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g"}, seen)

	// An exact multiple of the page size ends without an empty trailing page.
	res, err := a.Scan(ctx, storage.ScanFilter{After: "d", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, res.Prompts, 3)
	assert.Empty(t, res.Next)
}

func testScanFilters(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	p1 := NewPrompt("p1", "sql", "agent")
	p1.Name = "Alpha one"
	p2 := NewPrompt("p2", "sql")
	p2.Name = "Alpha two"
	p3 := NewPrompt("p3", "agent")
	p3.Name = "Beta"
	p4 := NewPrompt("p4")
	p4.Name = "alpha lower_%"
	for _, p := range []*prompts.Prompt{p1, p2, p3, p4} {
		put(t, a, p)
	}

	ids := func(f storage.ScanFilter) []string {
		res, err := a.Scan(ctx, f)
		require.NoError(t, err)
		out := []string{}
		for _, p := range res.Prompts {
			out = append(out, p.ID)
		}
		return out
	}

	assert.Equal(t, []string{"p1", "p2"}, ids(storage.ScanFilter{Tags: []string{"sql"}}))
	assert.Equal(t, []string{"p1"}, ids(storage.ScanFilter{Tags: []string{"sql", "agent"}}))
	assert.Equal(t, []string{"p1", "p2"}, ids(storage.ScanFilter{NamePrefix: "Alpha"}))
	assert.Equal(t, []string{"p2"}, ids(storage.ScanFilter{NamePrefix: "Alpha", Tags: []string{"sql"}, After: "p1"}))
	assert.Equal(t, []string{"p4"}, ids(storage.ScanFilter{NamePrefix: "alpha lower_%"}), "prefix is literal")
	assert.Equal(t, []string{}, ids(storage.ScanFilter{NamePrefix: "alpha lower_x"}))
	assert.Equal(t, []string{}, ids(storage.ScanFilter{Tags: []string{"missing"}}))
}

func testScanTombstones(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	live := NewPrompt("live")
	gone := NewPrompt("gone")
	put(t, a, live)
	put(t, a, gone)
	put(t, a, Tombstone(gone))

	res, err := a.Scan(ctx, storage.ScanFilter{})
	require.NoError(t, err)
	require.Len(t, res.Prompts, 1)
	assert.Equal(t, "live", res.Prompts[0].ID)

	// The tombstone itself is still readable.
	cur, err := a.Get(ctx, "gone", prompts.LatestVersion)
	require.NoError(t, err)
	assert.True(t, cur.Deleted())
	assert.Equal(t, 1, cur.Version)
}

func testDelete(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	v0 := NewPrompt("greet")
	put(t, a, v0)
	put(t, a, NextVersion(v0, "Hi {{name}} {{greeting}}"))

	require.NoError(t, a.Delete(ctx, "greet"))
	_, err := a.Get(ctx, "greet", prompts.LatestVersion)
	assert.ErrorIs(t, err, prompts.ErrNotFound)
	_, err = a.Get(ctx, "greet", 0)
	assert.ErrorIs(t, err, prompts.ErrNotFound)

	err = a.Delete(ctx, "greet")
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}

func testDeleteVersion(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	v0 := NewPrompt("greet")
	v1 := NextVersion(v0, "v1 {{name}}")
	v2 := NextVersion(v1, "v2 {{name}}")
	put(t, a, v0)
	put(t, a, v1)
	put(t, a, v2)

	require.NoError(t, a.DeleteVersion(ctx, "greet", 0))
	versions, err := a.Versions(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)

	_, err = a.Get(ctx, "greet", 0)
	assert.ErrorIs(t, err, prompts.ErrNotFound)

	err = a.DeleteVersion(ctx, "greet", 0)
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}

func testConcurrentPut(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	base := NewPrompt("race")
	put(t, a, base)

	const writers = 8
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
			err := a.Put(ctx, NextVersion(base, fmt.Sprintf("writer %d {{name}}", i)))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if prompts.KindOf(err) == prompts.KindConflict {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, conflicts)
}

func testPrune(t *testing.T, a storage.Adapter) {
	pruner, ok := a.(storage.Pruner)
	if !ok {
		t.Skip("adapter does not implement storage.Pruner")
	}
	ctx := context.Background()
	p := NewPrompt("greet")
	put(t, a, p)
	for i := 1; i <= 4; i++ {
		p = NextVersion(p, fmt.Sprintf("v%d {{name}}", i))
		put(t, a, p)
	}

	removed, err := pruner.Prune(ctx, "greet", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	versions, err := a.Versions(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, versions)

	removed, err = pruner.Prune(ctx, "greet", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	_, err = pruner.Prune(ctx, "greet", 0)
	assert.ErrorIs(t, err, prompts.ErrValidationFailed)
}
