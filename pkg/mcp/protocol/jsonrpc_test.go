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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stringPtr(s string) *string { return &s }
func int64Ptr(n int64) *int64    { return &n }

func TestRequestID_MarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		id       *RequestID
		expected string
	}{
		{name: "string ID", id: NewStringRequestID("test-123"), expected: `"test-123"`},
		{name: "number ID", id: NewNumericRequestID(42), expected: `42`},
		{name: "nil ID", id: nil, expected: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.id)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestRequestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantStr *string
		wantNum *int64
		wantErr bool
	}{
		{name: "string ID", input: `"test-123"`, wantStr: stringPtr("test-123")},
		{name: "number ID", input: `42`, wantNum: int64Ptr(42)},
		{name: "null ID", input: `null`},
		{name: "invalid type", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id RequestID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStr, id.Str)
			assert.Equal(t, tt.wantNum, id.Num)
		})
	}
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode int
		notify   bool
	}{
		{name: "request", input: `{"jsonrpc":"2.0","id":1,"method":"list"}`},
		{name: "notification", input: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, notify: true},
		{name: "malformed", input: `{"jsonrpc":"2.0",`, wantCode: ParseError},
		{name: "batch", input: `[{"jsonrpc":"2.0","id":1,"method":"list"}]`, wantCode: InvalidRequest},
		{name: "wrong version", input: `{"jsonrpc":"1.0","id":1,"method":"list"}`, wantCode: InvalidRequest},
		{name: "no method", input: `{"jsonrpc":"2.0","id":1}`, wantCode: InvalidRequest},
		{name: "empty", input: `  `, wantCode: InvalidRequest},
		{name: "bad id", input: `{"jsonrpc":"2.0","id":true,"method":"list"}`, wantCode: InvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rpcErr := ParseRequest([]byte(tt.input))
			if tt.wantCode != 0 {
				require.NotNil(t, rpcErr)
				assert.Equal(t, tt.wantCode, rpcErr.Code)
				return
			}
			require.Nil(t, rpcErr)
			assert.Equal(t, tt.notify, req.IsNotification())
		})
	}
}

func TestResponses(t *testing.T) {
	resp, err := NewResult(NewNumericRequestID(7), OKResult{OK: true})
	require.NoError(t, err)
	require.NoError(t, ValidateResponse(resp))
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`, string(data))

	errResp := NewErrorResponse(NewStringRequestID("a"), NewError(MethodNotFound, "method not found", nil))
	require.NoError(t, ValidateResponse(errResp))
	data, err = json.Marshal(errResp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"a","error":{"code":-32601,"message":"method not found"}}`, string(data))

	assert.Error(t, ValidateResponse(&Response{JSONRPC: JSONRPCVersion, ID: NewNumericRequestID(1)}))
}

func TestEncodeNotification(t *testing.T) {
	data, err := EncodeNotification(MethodPing, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"ping"}`, string(data))
}
