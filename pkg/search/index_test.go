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

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/storage/storagetest"
)

func hitIDs(hits []prompts.SearchHit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

func TestIndex_Search(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	defer idx.Close()

	greet := storagetest.NewPrompt("greet", "chat")
	explain := storagetest.NewPrompt("sql.explain", "sql")
	explain.Name = "Explain query plan"
	explain.TemplateBody = "Explain the plan for {{name}} in detail"
	require.NoError(t, idx.Put(greet))
	require.NoError(t, idx.Put(explain))

	n, err := idx.Len()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	hits, err := idx.Search("plan", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"sql.explain"}, hitIDs(hits))

	hits, err = idx.Search("chat", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"greet"}, hitIDs(hits))

	hits, err = idx.Search("sql.explain", 0)
	require.NoError(t, err)
	assert.Contains(t, hitIDs(hits), "sql.explain")

	_, err = idx.Search("  ", 0)
	assert.ErrorIs(t, err, prompts.ErrValidationFailed)
}

func TestIndex_PutReplacesAndTombstoneRemoves(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	defer idx.Close()

	p := storagetest.NewPrompt("greet")
	require.NoError(t, idx.Put(p))

	next := storagetest.NextVersion(p, "Goodbye, {{name}}")
	require.NoError(t, idx.Put(next))

	hits, err := idx.Search("goodbye", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"greet"}, hitIDs(hits))
	hits, err = idx.Search("hello", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, idx.Put(storagetest.Tombstone(next)))
	n, err := idx.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndex_Reset(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Put(storagetest.NewPrompt("a")))
	require.NoError(t, idx.Reset())
	n, err := idx.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}
