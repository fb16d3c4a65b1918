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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

func TestErrorFromDomain(t *testing.T) {
	tests := []struct {
		kind prompts.Kind
		code int
	}{
		{prompts.KindNotFound, -32040},
		{prompts.KindDuplicateID, -32041},
		{prompts.KindValidationFailed, -32042},
		{prompts.KindMissingArgument, -32043},
		{prompts.KindVersionConflict, -32044},
		{prompts.KindIOFailure, -32045},
		{prompts.KindTemplateError, -32046},
		{prompts.KindConflict, -32047},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := fmt.Errorf("handler: %w", prompts.NewError(tt.kind, "greet", "boom"))
			rpcErr := ErrorFromDomain(err)
			assert.Equal(t, tt.code, rpcErr.Code)
			assert.Equal(t, "boom", rpcErr.Message)

			var data ErrorData
			require.NoError(t, json.Unmarshal(rpcErr.Data, &data))
			assert.Equal(t, ErrorData{Kind: string(tt.kind), ID: "greet"}, data)
		})
	}
}

func TestErrorFromDomain_Other(t *testing.T) {
	passthrough := NewError(InvalidParams, "bad", nil)
	assert.Same(t, passthrough, ErrorFromDomain(passthrough))

	assert.Equal(t, InternalError, ErrorFromDomain(context.Canceled).Code)

	rpcErr := ErrorFromDomain(errors.New("secret detail"))
	assert.Equal(t, InternalError, rpcErr.Code)
	assert.NotContains(t, rpcErr.Message, "secret")
}
