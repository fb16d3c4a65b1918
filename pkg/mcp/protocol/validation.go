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
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// paramSchemas maps a method to its params schema file.
var paramSchemas = map[string]string{
	MethodList:        "list.json",
	MethodGet:         "get.json",
	MethodCreate:      "create.json",
	MethodUpdate:      "update.json",
	MethodDelete:      "delete.json",
	MethodRender:      "render.json",
	MethodSubscribe:   "subscribe.json",
	MethodUnsubscribe: "subscribe.json",
	MethodHistory:     "history.json",
	MethodDiff:        "diff.json",
	MethodSearch:      "search.json",
	MethodPromptsGet:  "prompts_get.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*gojsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*gojsonschema.Schema, error) {
	schemasOnce.Do(func() {
		compiled := make(map[string]*gojsonschema.Schema)
		byFile := make(map[string]*gojsonschema.Schema)
		for method, file := range paramSchemas {
			if s, ok := byFile[file]; ok {
				compiled[method] = s
				continue
			}
			data, err := schemaFS.ReadFile("schemas/" + file)
			if err != nil {
				schemasErr = fmt.Errorf("read schema %s: %w", file, err)
				return
			}
			s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", file, err)
				return
			}
			byFile[file] = s
			compiled[method] = s
		}
		schemas = compiled
	})
	return schemas, schemasErr
}

// ValidateParams checks params against the schema of method. Methods
// without a schema accept anything. Absent params validate as {}.
func ValidateParams(method string, params json.RawMessage) *Error {
	all, err := loadSchemas()
	if err != nil {
		return NewError(InternalError, err.Error(), nil)
	}
	schema, ok := all[method]
	if !ok {
		return nil
	}
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(params))
	if err != nil {
		return InvalidParamsError(fmt.Sprintf("invalid params: %v", err))
	}
	if !result.Valid() {
		problems := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			problems[i] = e.String()
		}
		return InvalidParamsError("invalid params: " + strings.Join(problems, "; "))
	}
	return nil
}

// ValidateRequest validates a JSON-RPC request
func ValidateRequest(req *Request) error {
	if req.JSONRPC != JSONRPCVersion {
		return fmt.Errorf("invalid jsonrpc version: %s (expected %s)", req.JSONRPC, JSONRPCVersion)
	}

	if req.Method == "" {
		return fmt.Errorf("method is required")
	}

	return nil
}

// ValidateResponse validates a JSON-RPC response
func ValidateResponse(resp *Response) error {
	if resp.JSONRPC != JSONRPCVersion {
		return fmt.Errorf("invalid jsonrpc version: %s (expected %s)", resp.JSONRPC, JSONRPCVersion)
	}

	if resp.ID == nil {
		return fmt.Errorf("response ID is required")
	}

	// Exactly one of Result or Error must be present
	hasResult := len(resp.Result) > 0
	hasError := resp.Error != nil

	if hasResult == hasError {
		return fmt.Errorf("response must have exactly one of result or error")
	}

	return nil
}
