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

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/promptd/pkg/mcp/protocol"
	"github.com/teradata-labs/promptd/pkg/mcp/session"
	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/registry"
	"github.com/teradata-labs/promptd/pkg/search"
	"github.com/teradata-labs/promptd/pkg/storage/memory"
)

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int                `json:"code"`
		Message string             `json:"message"`
		Data    protocol.ErrorData `json:"data"`
	} `json:"error"`
}

type harness struct {
	t      *testing.T
	srv    *Server
	reg    *registry.Registry
	nextID int
}

func newHarness(t *testing.T, wrap func(prompts.Service) prompts.Service) *harness {
	t.Helper()
	idx, err := search.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	logger := zaptest.NewLogger(t)
	reg := registry.New(memory.New(), registry.Policy{RetainHistory: true},
		registry.WithSearchIndex(idx), registry.WithLogger(logger))

	var svc prompts.Service = reg
	if wrap != nil {
		svc = wrap(reg)
	}
	srv, err := New(Config{
		Service:  svc,
		Sessions: session.NewManager(session.ManagerConfig{QueueSize: 8, Logger: logger}),
		Logger:   logger,
	})
	require.NoError(t, err)
	t.Cleanup(srv.Listen(reg.Bus()))
	return &harness{t: t, srv: srv, reg: reg}
}

// raw sends a frame and decodes the response.
func (h *harness) raw(sessionID, frame string) *rpcResponse {
	h.t.Helper()
	out, err := h.srv.HandleRequest(context.Background(), sessionID, []byte(frame))
	require.NoError(h.t, err)
	if out == nil {
		return nil
	}
	var resp rpcResponse
	require.NoError(h.t, json.Unmarshal(out, &resp), string(out))
	return &resp
}

// call sends a request with params and returns the response.
func (h *harness) call(sessionID, method string, params interface{}) *rpcResponse {
	h.t.Helper()
	h.nextID++
	frame := map[string]interface{}{"jsonrpc": "2.0", "id": h.nextID, "method": method}
	if params != nil {
		frame["params"] = params
	}
	data, err := json.Marshal(frame)
	require.NoError(h.t, err)
	return h.raw(sessionID, string(data))
}

// ok calls method and decodes a successful result into out.
func (h *harness) ok(sessionID, method string, params, out interface{}) {
	h.t.Helper()
	resp := h.call(sessionID, method, params)
	require.NotNil(h.t, resp)
	require.Nil(h.t, resp.Error, "%s failed: %+v", method, resp.Error)
	if out != nil {
		require.NoError(h.t, json.Unmarshal(resp.Result, out))
	}
}

// fails calls method and returns the error code and kind.
func (h *harness) fails(sessionID, method string, params interface{}) (int, string) {
	h.t.Helper()
	resp := h.call(sessionID, method, params)
	require.NotNil(h.t, resp)
	require.NotNil(h.t, resp.Error, "%s succeeded: %s", method, resp.Result)
	return resp.Error.Code, resp.Error.Data.Kind
}

// session opens and initializes a session.
func (h *harness) session() *session.Session {
	h.t.Helper()
	sess := h.srv.Connect(session.KindHTTP)
	h.ok(sess.ID(), "initialize", map[string]interface{}{
		"protocolVersion": protocol.ProtocolVersion,
		"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
	}, nil)
	return sess
}

var greet = map[string]interface{}{
	"id":            "greet",
	"name":          "Greeting",
	"template_body": "Hello, {{name}}!",
	"arguments":     []map[string]interface{}{{"name": "name", "required": true}},
	"tags":          []string{"demo"},
}

func TestServer_Handshake(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.srv.Connect(session.KindHTTP)

	code, _ := h.fails(sess.ID(), "list", nil)
	assert.Equal(t, protocol.SessionNotInitialized, code)

	h.ok(sess.ID(), "ping", nil, nil)
	assert.Nil(t, h.raw(sess.ID(), `{"jsonrpc":"2.0","method":"notifications/initialized"}`))

	var init protocol.InitializeResult
	h.ok(sess.ID(), "initialize", map[string]interface{}{"protocolVersion": "2024-11-05"}, &init)
	assert.Equal(t, "2024-11-05", init.ProtocolVersion)
	assert.Equal(t, ServerName, init.ServerInfo.Name)
	require.NotNil(t, init.Capabilities.Prompts)
	assert.False(t, init.Capabilities.Prompts.ListChanged, "list_changed is never sent")
	assert.True(t, sess.Active())

	code, _ = h.fails(sess.ID(), "initialize", map[string]interface{}{})
	assert.Equal(t, protocol.InvalidRequest, code)

	var list protocol.ListResult
	h.ok(sess.ID(), "list", nil, &list)
	assert.Empty(t, list.Prompts)
	assert.Nil(t, list.NextCursor)
}

func TestServer_UnsupportedVersionFallsBack(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.srv.Connect(session.KindHTTP)
	var init protocol.InitializeResult
	h.ok(sess.ID(), "initialize", map[string]interface{}{"protocolVersion": "1999-01-01"}, &init)
	assert.Equal(t, protocol.ProtocolVersion, init.ProtocolVersion)
}

func TestServer_UnknownSession(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.srv.HandleRequest(context.Background(), "nope", []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	assert.ErrorIs(t, err, session.ErrUnknown)
}

func TestServer_ProtocolErrors(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.session().ID()

	tests := []struct {
		name  string
		frame string
		code  int
	}{
		{"malformed json", `{"jsonrpc":"2.0","id":1,`, protocol.ParseError},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, protocol.InvalidRequest},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, protocol.InvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"explode"}`, protocol.MethodNotFound},
		{"missing id param", `{"jsonrpc":"2.0","id":1,"method":"get","params":{}}`, protocol.InvalidParams},
		{"wrong param type", `{"jsonrpc":"2.0","id":1,"method":"update","params":{"id":"a","version":"x","patch":{}}}`, protocol.InvalidParams},
		{"unknown patch field", `{"jsonrpc":"2.0","id":1,"method":"update","params":{"id":"a","version":0,"patch":{"colour":"red"}}}`, protocol.InvalidParams},
		{"bad selector", `{"jsonrpc":"2.0","id":1,"method":"subscribe","params":{"ids":"greet"}}`, protocol.InvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.raw(sid, tt.frame)
			require.NotNil(t, resp)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	// Unknown notifications are ignored.
	assert.Nil(t, h.raw(sid, `{"jsonrpc":"2.0","method":"notifications/whatever"}`))
}

func TestServer_GreetScenario(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.session().ID()

	var created protocol.PromptResult
	h.ok(sid, "create", greet, &created)
	assert.Equal(t, "greet", created.Prompt.ID)
	assert.Equal(t, 0, created.Prompt.Version)

	code, kind := h.fails(sid, "create", greet)
	assert.Equal(t, protocol.CodeDuplicateID, code)
	assert.Equal(t, "DuplicateId", kind)

	var rendered protocol.RenderResult
	h.ok(sid, "render", map[string]interface{}{"id": "greet", "arguments": map[string]string{"name": "Ada"}}, &rendered)
	assert.Equal(t, "Hello, Ada!", rendered.Text)
	assert.Equal(t, 0, rendered.Version)

	resp := h.call(sid, "render", map[string]interface{}{"id": "greet"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeMissingArgument, resp.Error.Code)
	assert.Equal(t, "MissingRequiredArgument", resp.Error.Data.Kind)
	assert.Contains(t, resp.Error.Message, "name")

	var updated protocol.PromptResult
	h.ok(sid, "update", map[string]interface{}{
		"id": "greet", "version": 0, "patch": map[string]string{"template_body": "Hi, {{name}}."},
	}, &updated)
	assert.Equal(t, 1, updated.Prompt.Version)

	code, kind = h.fails(sid, "update", map[string]interface{}{
		"id": "greet", "version": 0, "patch": map[string]string{"template_body": "Yo"},
	})
	assert.Equal(t, protocol.CodeVersionConflict, code)
	assert.Equal(t, "VersionConflict", kind)

	var old protocol.RenderResult
	h.ok(sid, "render", map[string]interface{}{"id": "greet", "version": 0, "arguments": map[string]string{"name": "Ada"}}, &old)
	assert.Equal(t, "Hello, Ada!", old.Text)

	var got protocol.PromptResult
	h.ok(sid, "get", map[string]interface{}{"id": "greet"}, &got)
	assert.Equal(t, "Hi, {{name}}.", got.Prompt.TemplateBody)

	var history protocol.HistoryResult
	h.ok(sid, "history", map[string]interface{}{"id": "greet"}, &history)
	assert.Equal(t, []int{0, 1}, history.Versions)

	var diff protocol.DiffResult
	h.ok(sid, "diff", map[string]interface{}{"id": "greet", "from": 0, "to": 1}, &diff)
	assert.NotEmpty(t, diff.Diff.Patch)

	var hits protocol.SearchResult
	h.ok(sid, "search", map[string]interface{}{"query": "greeting"}, &hits)
	require.NotEmpty(t, hits.Hits)
	assert.Equal(t, "greet", hits.Hits[0].ID)

	var ok protocol.OKResult
	h.ok(sid, "delete", map[string]interface{}{"id": "greet"}, &ok)
	assert.True(t, ok.OK)

	code, kind = h.fails(sid, "get", map[string]interface{}{"id": "greet"})
	assert.Equal(t, protocol.CodeNotFound, code)
	assert.Equal(t, "NotFound", kind)

	// History is retained.
	h.ok(sid, "get", map[string]interface{}{"id": "greet", "version": 1}, &got)
	assert.Equal(t, 1, got.Prompt.Version)
}

func TestServer_SubscriptionScenario(t *testing.T) {
	h := newHarness(t, nil)
	watcher := h.session()
	writer := h.session().ID()

	h.ok(writer, "create", greet, nil)
	h.ok(watcher.ID(), "subscribe", map[string]interface{}{"ids": []string{"greet"}}, nil)

	h.ok(writer, "update", map[string]interface{}{
		"id": "greet", "version": 0, "patch": map[string]string{"description": "says hello"},
	}, nil)

	// The frame is queued by the time the update has returned.
	require.Len(t, watcher.Queue(), 1)
	assert.JSONEq(t,
		`{"jsonrpc":"2.0","method":"notifications/prompts/changed","params":{"event":"updated","id":"greet","version":1}}`,
		string(<-watcher.Queue()))

	// Other ids are not delivered.
	h.ok(writer, "create", map[string]interface{}{"id": "other", "name": "Other", "template_body": "x"}, nil)
	assert.Len(t, watcher.Queue(), 0)

	h.ok(watcher.ID(), "subscribe", map[string]interface{}{"ids": "*"}, nil)
	h.ok(writer, "delete", map[string]interface{}{"id": "other"}, nil)
	require.Len(t, watcher.Queue(), 1)
	assert.JSONEq(t,
		`{"jsonrpc":"2.0","method":"notifications/prompts/changed","params":{"event":"deleted","id":"other","version":1}}`,
		string(<-watcher.Queue()))

	h.ok(watcher.ID(), "unsubscribe", map[string]interface{}{"ids": "*"}, nil)
	h.ok(writer, "update", map[string]interface{}{
		"id": "greet", "version": 1, "patch": map[string]string{"description": "still says hello"},
	}, nil)
	assert.Len(t, watcher.Queue(), 0)
	assert.True(t, watcher.Active())

	// The writer itself never subscribed.
	w, ok := h.srv.Session(writer)
	require.True(t, ok)
	assert.Len(t, w.Queue(), 0)
}

func TestServer_ListPagination(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.session().ID()
	for i := 0; i < 7; i++ {
		h.ok(sid, "create", map[string]interface{}{
			"id": fmt.Sprintf("p%02d", i), "name": fmt.Sprintf("P%d", i), "template_body": "x",
			"tags": []string{"even", "odd"}[i%2 : i%2+1],
		}, nil)
	}

	var seen []string
	var cursor string
	for {
		params := map[string]interface{}{"limit": 3}
		if cursor != "" {
			params["cursor"] = cursor
		}
		var page protocol.ListResult
		h.ok(sid, "list", params, &page)
		for _, p := range page.Prompts {
			seen = append(seen, p.ID)
		}
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}
	assert.Equal(t, []string{"p00", "p01", "p02", "p03", "p04", "p05", "p06"}, seen)

	var even protocol.ListResult
	h.ok(sid, "list", map[string]interface{}{"tags": []string{"even"}}, &even)
	assert.Len(t, even.Prompts, 4)

	code, _ := h.fails(sid, "list", map[string]interface{}{"cursor": "garbage"})
	assert.Equal(t, protocol.CodeValidationFailed, code)
}

func TestServer_MCPPrompts(t *testing.T) {
	h := newHarness(t, nil)
	sid := h.session().ID()
	h.ok(sid, "create", greet, nil)

	var list protocol.PromptListResult
	h.ok(sid, "prompts/list", nil, &list)
	require.Len(t, list.Prompts, 1)
	assert.Equal(t, "greet", list.Prompts[0].Name)
	assert.Equal(t, "Greeting", list.Prompts[0].Description)
	require.Len(t, list.Prompts[0].Arguments, 1)
	assert.True(t, list.Prompts[0].Arguments[0].Required)

	var got protocol.GetPromptResult
	h.ok(sid, "prompts/get", map[string]interface{}{"name": "greet", "arguments": map[string]string{"name": "Ada"}}, &got)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "text", got.Messages[0].Content.Type)
	assert.Equal(t, "Hello, Ada!", got.Messages[0].Content.Text)

	code, _ := h.fails(sid, "prompts/get", map[string]interface{}{"name": "missing"})
	assert.Equal(t, protocol.CodeNotFound, code)
}

// flakyService fails reads with IOFailure a fixed number of times.
type flakyService struct {
	prompts.Service
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyService) fail() error {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return prompts.IOFailure("greet", fmt.Errorf("disk hiccup"), "read")
	}
	return nil
}

func (f *flakyService) Render(ctx context.Context, req prompts.RenderRequest) (*prompts.Rendered, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Service.Render(ctx, req)
}

func (f *flakyService) Get(ctx context.Context, id string, version int) (*prompts.Prompt, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Service.Get(ctx, id, version)
}

func TestServer_IdempotentReadsRetry(t *testing.T) {
	flaky := &flakyService{}
	h := newHarness(t, func(s prompts.Service) prompts.Service {
		flaky.Service = s
		return flaky
	})
	sid := h.session().ID()
	h.ok(sid, "create", greet, nil)
	args := map[string]string{"name": "Ada"}

	flaky.failures.Store(2)
	var out protocol.RenderResult
	h.ok(sid, "render", map[string]interface{}{"id": "greet", "arguments": args, "idempotent": true}, &out)
	assert.Equal(t, "Hello, Ada!", out.Text)
	assert.EqualValues(t, 3, flaky.calls.Load())

	flaky.calls.Store(0)
	flaky.failures.Store(1)
	code, kind := h.fails(sid, "render", map[string]interface{}{"id": "greet", "arguments": args})
	assert.Equal(t, protocol.CodeIOFailure, code)
	assert.Equal(t, "IOFailure", kind)
	assert.EqualValues(t, 1, flaky.calls.Load())

	// Attempts are bounded.
	flaky.calls.Store(0)
	flaky.failures.Store(10)
	code, _ = h.fails(sid, "get", map[string]interface{}{"id": "greet", "idempotent": true})
	assert.Equal(t, protocol.CodeIOFailure, code)
	assert.EqualValues(t, DefaultRetryAttempts, flaky.calls.Load())

	// Permanent errors are not retried.
	flaky.calls.Store(0)
	flaky.failures.Store(0)
	code, _ = h.fails(sid, "render", map[string]interface{}{"id": "greet", "idempotent": true})
	assert.Equal(t, protocol.CodeMissingArgument, code)
	assert.EqualValues(t, 1, flaky.calls.Load())
}

// blockingService holds Get until released.
type blockingService struct {
	prompts.Service
	entered chan struct{}
	release chan struct{}
}

func (b *blockingService) Get(ctx context.Context, id string, version int) (*prompts.Prompt, error) {
	close(b.entered)
	<-b.release
	return b.Service.Get(ctx, id, version)
}

func TestServer_DiscardsResultForClosedSession(t *testing.T) {
	blocking := &blockingService{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, func(s prompts.Service) prompts.Service {
		blocking.Service = s
		return blocking
	})
	sid := h.session().ID()
	h.ok(sid, "create", greet, nil)

	done := make(chan error, 1)
	go func() {
		_, err := h.srv.HandleRequest(context.Background(), sid,
			[]byte(`{"jsonrpc":"2.0","id":9,"method":"get","params":{"id":"greet"}}`))
		done <- err
	}()

	<-blocking.entered
	require.True(t, h.srv.Disconnect(sid, "client left"))
	close(blocking.release)

	assert.ErrorIs(t, <-done, session.ErrClosed)
	assert.Zero(t, h.srv.Sessions().Count())
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{Sessions: session.NewManager(session.ManagerConfig{})})
	assert.Error(t, err)
	_, err = New(Config{Service: registry.New(memory.New(), registry.Policy{})})
	assert.Error(t, err)
}
