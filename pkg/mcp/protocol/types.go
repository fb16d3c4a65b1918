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
	"fmt"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

// ProtocolVersion is the MCP protocol version supported by this implementation
const ProtocolVersion = "2025-03-26"

// SupportedProtocolVersions lists the versions accepted in initialize.
var SupportedProtocolVersions = []string{"2025-03-26", "2024-11-05"}

// Method names.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"

	MethodList        = "list"
	MethodGet         = "get"
	MethodCreate      = "create"
	MethodUpdate      = "update"
	MethodDelete      = "delete"
	MethodRender      = "render"
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"
	MethodHistory     = "history"
	MethodDiff        = "diff"
	MethodSearch      = "search"

	MethodPromptsList = "prompts/list"
	MethodPromptsGet  = "prompts/get"

	// MethodPromptChanged is the push frame sent to subscribers.
	MethodPromptChanged = "notifications/prompts/changed"
)

// InitializeParams contains parameters for the initialize request
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult contains the server's response to initialize
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Implementation describes client or server implementation details
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities declares what the client supports. promptd does not
// act on any of them.
type ClientCapabilities struct {
	Experimental map[string]interface{} `json:"experimental,omitempty"`
}

// ServerCapabilities declares what the server supports
type ServerCapabilities struct {
	Prompts *PromptsCapability `json:"prompts,omitempty"`
}

// PromptsCapability advertises change notifications.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// Prompt represents an MCP prompt definition
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes a prompt parameter
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptsListParams contains parameters for prompts/list
type PromptsListParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// PromptListResult is the response from prompts/list
type PromptListResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// GetPromptParams contains parameters for prompts/get
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// GetPromptResult is the response from prompts/get
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptMessage represents a message in a prompt
type PromptMessage struct {
	Role    string      `json:"role"`
	Content TextContent `json:"content"`
}

// TextContent is the only content type promptd renders.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// FromPrompt converts a stored prompt to its MCP listing form.
func FromPrompt(p *prompts.Prompt) Prompt {
	out := Prompt{Name: p.ID, Description: p.Description}
	if out.Description == "" {
		out.Description = p.Name
	}
	for _, a := range p.Arguments {
		out.Arguments = append(out.Arguments, PromptArgument{
			Name:        a.Name,
			Description: a.Description,
			Required:    a.Required && a.Default == nil,
		})
	}
	return out
}

// ListParams are the params of list.
type ListParams struct {
	Tags       []string `json:"tags,omitempty"`
	NamePrefix string   `json:"name_prefix,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	Cursor     string   `json:"cursor,omitempty"`
}

// ListResult is the result of list. NextCursor is null on the last page.
type ListResult struct {
	Prompts    []*prompts.Prompt `json:"prompts"`
	NextCursor *string           `json:"next_cursor"`
}

// GetParams are the params of get. A nil Version selects the current
// record.
type GetParams struct {
	ID         string `json:"id"`
	Version    *int   `json:"version,omitempty"`
	Idempotent bool   `json:"idempotent,omitempty"`
}

// PromptResult wraps a single prompt.
type PromptResult struct {
	Prompt *prompts.Prompt `json:"prompt"`
}

// CreateParams are the params of create.
type CreateParams = prompts.Spec

// UpdateParams are the params of update.
type UpdateParams struct {
	ID      string        `json:"id"`
	Version int           `json:"version"`
	Patch   prompts.Patch `json:"patch"`
}

// DeleteParams are the params of delete.
type DeleteParams struct {
	ID string `json:"id"`
}

// OKResult acknowledges a request with no other result.
type OKResult struct {
	OK bool `json:"ok"`
}

// RenderParams are the params of render.
type RenderParams struct {
	ID         string            `json:"id"`
	Arguments  map[string]string `json:"arguments,omitempty"`
	Version    *int              `json:"version,omitempty"`
	Idempotent bool              `json:"idempotent,omitempty"`
}

// RenderResult is the result of render.
type RenderResult = prompts.Rendered

// SubscribeParams are the params of subscribe and unsubscribe.
type SubscribeParams struct {
	IDs Selector `json:"ids"`
}

// Selector is either a list of prompt ids or the wildcard "*".
type Selector struct {
	All bool
	IDs []string
}

// Wildcard selects every prompt.
const Wildcard = "*"

// UnmarshalJSON accepts "*" or an array of ids.
func (s *Selector) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if str != Wildcard {
			return fmt.Errorf("ids: expected %q or an array, got %q", Wildcard, str)
		}
		*s = Selector{All: true}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("ids: expected %q or an array of strings", Wildcard)
	}
	*s = Selector{IDs: ids}
	return nil
}

// MarshalJSON writes the wildcard or the id list.
func (s Selector) MarshalJSON() ([]byte, error) {
	if s.All {
		return json.Marshal(Wildcard)
	}
	if s.IDs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.IDs)
}

// HistoryParams are the params of history.
type HistoryParams struct {
	ID string `json:"id"`
}

// HistoryResult lists the retained versions of a prompt.
type HistoryResult struct {
	ID       string `json:"id"`
	Versions []int  `json:"versions"`
}

// DiffParams are the params of diff.
type DiffParams struct {
	ID   string `json:"id"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

// DiffResult wraps a template diff.
type DiffResult struct {
	Diff *prompts.Diff `json:"diff"`
}

// SearchParams are the params of search.
type SearchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResult lists matching prompt ids, best first.
type SearchResult struct {
	Hits []prompts.SearchHit `json:"hits"`
}

// ChangedParams is the payload of a MethodPromptChanged push frame.
type ChangedParams struct {
	Event   prompts.EventKind `json:"event"`
	ID      string            `json:"id"`
	Version int               `json:"version"`
}

// EncodeChange renders the push frame for ev.
func EncodeChange(ev prompts.ChangeEvent) ([]byte, error) {
	return EncodeNotification(MethodPromptChanged, ChangedParams{Event: ev.Kind, ID: ev.ID, Version: ev.Version})
}
