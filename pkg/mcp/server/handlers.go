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
	"slices"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/pkg/mcp/protocol"
	"github.com/teradata-labs/promptd/pkg/mcp/session"
	"github.com/teradata-labs/promptd/pkg/prompts"
)

func (s *Server) registerHandlers() {
	s.handlers = map[string]handlerFunc{
		protocol.MethodInitialize:  s.handleInitialize,
		protocol.MethodInitialized: s.handleInitialized,
		protocol.MethodPing:        s.handlePing,

		protocol.MethodList:        s.handleList,
		protocol.MethodGet:         s.handleGet,
		protocol.MethodCreate:      s.handleCreate,
		protocol.MethodUpdate:      s.handleUpdate,
		protocol.MethodDelete:      s.handleDelete,
		protocol.MethodRender:      s.handleRender,
		protocol.MethodSubscribe:   s.handleSubscribe,
		protocol.MethodUnsubscribe: s.handleUnsubscribe,
		protocol.MethodHistory:     s.handleHistory,
		protocol.MethodDiff:        s.handleDiff,
		protocol.MethodSearch:      s.handleSearch,

		protocol.MethodPromptsList: s.handlePromptsList,
		protocol.MethodPromptsGet:  s.handlePromptsGet,
	}
}

// decodeParams unmarshals params into v. Absent params decode as {}.
func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return protocol.InvalidParamsError("invalid params: " + err.Error())
	}
	return nil
}

func versionOrLatest(v *int) int {
	if v == nil {
		return prompts.LatestVersion
	}
	return *v
}

// handleInitialize activates the session. The client's protocol version
// is echoed when supported; otherwise the server's own is offered.
func (s *Server) handleInitialize(ctx context.Context, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.InitializeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	negotiated := protocol.ProtocolVersion
	if slices.Contains(protocol.SupportedProtocolVersions, p.ProtocolVersion) {
		negotiated = p.ProtocolVersion
	} else if p.ProtocolVersion != "" {
		s.logger.Warn("client protocol version not supported",
			zap.String("client_version", p.ProtocolVersion),
			zap.String("server_version", protocol.ProtocolVersion))
	}

	if err := sess.Activate(ctx, p.ClientInfo.Name); err != nil {
		return nil, protocol.NewError(protocol.InvalidRequest, "session already initialized", nil)
	}
	s.logger.Info("session initialized",
		zap.String("session_id", sess.ID()),
		zap.String("transport", string(sess.Kind())),
		zap.String("client_name", p.ClientInfo.Name),
		zap.String("client_version", p.ClientInfo.Version),
		zap.String("protocol_version", negotiated))

	return protocol.InitializeResult{
		ProtocolVersion: negotiated,
		// Changes reach clients only through subscribe, as
		// notifications/prompts/changed, so listChanged stays off.
		Capabilities: protocol.ServerCapabilities{
			Prompts: &protocol.PromptsCapability{},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

func (s *Server) handleInitialized(context.Context, *session.Session, json.RawMessage) (interface{}, error) {
	return nil, nil
}

func (s *Server) handlePing(context.Context, *session.Session, json.RawMessage) (interface{}, error) {
	return struct{}{}, nil
}

func (s *Server) handleList(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.ListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	page, err := s.service.List(ctx, prompts.ListFilter{
		Tags:       p.Tags,
		NamePrefix: p.NamePrefix,
		Limit:      p.Limit,
		Cursor:     p.Cursor,
	})
	if err != nil {
		return nil, err
	}
	res := protocol.ListResult{Prompts: page.Prompts}
	if page.NextCursor != "" {
		res.NextCursor = &page.NextCursor
	}
	return res, nil
}

func (s *Server) handleGet(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.GetParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	get := func(ctx context.Context) (*prompts.Prompt, error) {
		return s.service.Get(ctx, p.ID, versionOrLatest(p.Version))
	}

	var (
		prompt *prompts.Prompt
		err    error
	)
	if p.Idempotent {
		prompt, err = retryRead(ctx, s.retry, s.logger, get)
	} else {
		prompt, err = get(ctx)
	}
	if err != nil {
		return nil, err
	}
	return protocol.PromptResult{Prompt: prompt}, nil
}

func (s *Server) handleCreate(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.CreateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	prompt, err := s.service.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	return protocol.PromptResult{Prompt: prompt}, nil
}

func (s *Server) handleUpdate(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.UpdateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	prompt, err := s.service.Update(ctx, p.ID, p.Version, p.Patch)
	if err != nil {
		return nil, err
	}
	return protocol.PromptResult{Prompt: prompt}, nil
}

func (s *Server) handleDelete(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.DeleteParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := s.service.Delete(ctx, p.ID); err != nil {
		return nil, err
	}
	return protocol.OKResult{OK: true}, nil
}

func (s *Server) handleRender(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.RenderParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	req := prompts.RenderRequest{ID: p.ID, Version: versionOrLatest(p.Version), Arguments: p.Arguments}
	render := func(ctx context.Context) (*prompts.Rendered, error) {
		return s.service.Render(ctx, req)
	}

	var (
		out *prompts.Rendered
		err error
	)
	if p.Idempotent {
		out, err = retryRead(ctx, s.retry, s.logger, render)
	} else {
		out, err = render(ctx)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Server) handleSubscribe(_ context.Context, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.SubscribeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := sess.Subscribe(p.IDs.All, p.IDs.IDs); err != nil {
		return nil, errors.Wrap(err, "subscribe")
	}
	return protocol.OKResult{OK: true}, nil
}

// handleUnsubscribe removes ids; the wildcard clears the whole set.
func (s *Server) handleUnsubscribe(_ context.Context, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.SubscribeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := sess.Unsubscribe(p.IDs.All, p.IDs.IDs); err != nil {
		return nil, errors.Wrap(err, "unsubscribe")
	}
	return protocol.OKResult{OK: true}, nil
}

func (s *Server) handleHistory(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.HistoryParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	versions, err := s.service.Versions(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return protocol.HistoryResult{ID: p.ID, Versions: versions}, nil
}

func (s *Server) handleDiff(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.DiffParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	d, err := s.service.Diff(ctx, p.ID, p.From, p.To)
	if err != nil {
		return nil, err
	}
	return protocol.DiffResult{Diff: d}, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.SearchParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	hits, err := s.service.Search(ctx, p.Query, p.Limit)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []prompts.SearchHit{}
	}
	return protocol.SearchResult{Hits: hits}, nil
}

// handlePromptsList serves the standard MCP listing. Prompt ids are the
// MCP prompt names.
func (s *Server) handlePromptsList(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.PromptsListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	page, err := s.service.List(ctx, prompts.ListFilter{Cursor: p.Cursor})
	if err != nil {
		return nil, err
	}
	res := protocol.PromptListResult{
		Prompts:    make([]protocol.Prompt, 0, len(page.Prompts)),
		NextCursor: page.NextCursor,
	}
	for _, pr := range page.Prompts {
		res.Prompts = append(res.Prompts, protocol.FromPrompt(pr))
	}
	return res, nil
}

// handlePromptsGet renders a prompt as a single user message.
func (s *Server) handlePromptsGet(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, error) {
	var p protocol.GetPromptParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	current, err := s.service.Get(ctx, p.Name, prompts.LatestVersion)
	if err != nil {
		return nil, err
	}
	out, err := s.service.Render(ctx, prompts.RenderRequest{
		ID:        current.ID,
		Version:   current.Version,
		Arguments: p.Arguments,
	})
	if err != nil {
		return nil, err
	}
	return protocol.GetPromptResult{
		Description: protocol.FromPrompt(current).Description,
		Messages: []protocol.PromptMessage{{
			Role:    "user",
			Content: protocol.TextContent{Type: "text", Text: out.Text},
		}},
	}, nil
}
