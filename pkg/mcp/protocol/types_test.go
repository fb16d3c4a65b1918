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

package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

func TestSelector(t *testing.T) {
	var p SubscribeParams
	require.NoError(t, json.Unmarshal([]byte(`{"ids":"*"}`), &p))
	assert.True(t, p.IDs.All)

	require.NoError(t, json.Unmarshal([]byte(`{"ids":["greet","other"]}`), &p))
	assert.False(t, p.IDs.All)
	assert.Equal(t, []string{"greet", "other"}, p.IDs.IDs)

	assert.Error(t, json.Unmarshal([]byte(`{"ids":"greet"}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"ids":42}`), &p))

	data, err := json.Marshal(Selector{All: true})
	require.NoError(t, err)
	assert.Equal(t, `"*"`, string(data))
	data, err = json.Marshal(Selector{})
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestEncodeChange(t *testing.T) {
	data, err := EncodeChange(prompts.ChangeEvent{
		Kind: prompts.EventUpdated, ID: "greet", Version: 1, At: time.Now(),
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"jsonrpc":"2.0","method":"notifications/prompts/changed","params":{"event":"updated","id":"greet","version":1}}`,
		string(data))
}

func TestFromPrompt(t *testing.T) {
	def := "friend"
	p := &prompts.Prompt{
		ID:   "greet",
		Name: "Greeting",
		Arguments: []prompts.Argument{
			{Name: "name", Required: true, Description: "who"},
			{Name: "greeting", Required: true, Default: &def},
		},
	}
	got := FromPrompt(p)
	assert.Equal(t, Prompt{
		Name:        "greet",
		Description: "Greeting",
		Arguments: []PromptArgument{
			{Name: "name", Description: "who", Required: true},
			{Name: "greeting"},
		},
	}, got)
}

func TestListResult_NullCursor(t *testing.T) {
	data, err := json.Marshal(ListResult{Prompts: []*prompts.Prompt{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompts":[],"next_cursor":null}`, string(data))
}
