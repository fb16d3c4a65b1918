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
	"errors"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

// Registry error codes, in the JSON-RPC server error range.
const (
	CodeNotFound         = -32040
	CodeDuplicateID      = -32041
	CodeValidationFailed = -32042
	CodeMissingArgument  = -32043
	CodeVersionConflict  = -32044
	CodeIOFailure        = -32045
	CodeTemplateError    = -32046
	CodeConflict         = -32047
)

var kindCodes = map[prompts.Kind]int{
	prompts.KindNotFound:         CodeNotFound,
	prompts.KindDuplicateID:      CodeDuplicateID,
	prompts.KindValidationFailed: CodeValidationFailed,
	prompts.KindMissingArgument:  CodeMissingArgument,
	prompts.KindVersionConflict:  CodeVersionConflict,
	prompts.KindIOFailure:        CodeIOFailure,
	prompts.KindTemplateError:    CodeTemplateError,
	prompts.KindConflict:         CodeConflict,
}

// ErrorData is the data member of every error promptd returns.
type ErrorData struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}

// CodeFor returns the JSON-RPC code of a registry error kind.
func CodeFor(kind prompts.Kind) (int, bool) {
	code, ok := kindCodes[kind]
	return code, ok
}

// ErrorFromDomain converts any handler error into a JSON-RPC error.
// Unclassified errors become InternalError without leaking their text.
func ErrorFromDomain(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if e, ok := prompts.AsError(err); ok {
		code, known := kindCodes[e.Kind]
		if !known {
			code = InternalError
		}
		return NewError(code, e.Message(), ErrorData{Kind: string(e.Kind), ID: e.ID})
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(InternalError, "request cancelled", ErrorData{Kind: "Cancelled"})
	}
	return NewError(InternalError, "internal error", ErrorData{Kind: "Internal"})
}

// InvalidParamsError reports params that failed decoding or schema
// validation.
func InvalidParamsError(msg string) *Error {
	return NewError(InvalidParams, msg, ErrorData{Kind: "InvalidParams"})
}
