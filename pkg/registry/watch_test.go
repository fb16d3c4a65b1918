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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/storage/file"
	"github.com/teradata-labs/promptd/pkg/storage/storagetest"
)

func TestRegistry_FollowFileChanges(t *testing.T) {
	dir := t.TempDir()
	store, err := file.New(dir, file.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	r, rec := newTestRegistryOn(t, store, Policy{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := store.Watch(ctx)
	require.NoError(t, err)
	followed := make(chan error, 1)
	go func() { followed <- r.Follow(ctx, changes) }()

	// Our own write is announced exactly once.
	_, err = r.Create(ctx, greetSpec())
	require.NoError(t, err)

	// A second process adds a version.
	other, err := file.New(dir)
	require.NoError(t, err)
	p, err := other.Get(ctx, "greet", prompts.LatestVersion)
	require.NoError(t, err)
	require.NoError(t, other.Put(ctx, storagetest.NextVersion(p, "Yo {{name}}")))

	require.Eventually(t, func() bool {
		for _, e := range rec.all() {
			if e.Kind == prompts.EventUpdated && e.Version == 1 {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	got, err := r.Get(ctx, "greet", prompts.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, "Yo {{name}}", got.TemplateBody)

	created := 0
	for _, e := range rec.all() {
		if e.Kind == prompts.EventCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)

	// The directory disappears entirely.
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "greet")))
	require.Eventually(t, func() bool {
		_, err := r.Get(ctx, "greet", prompts.LatestVersion)
		return prompts.KindOf(err) == prompts.KindNotFound
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-followed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("follow did not return")
	}
}
