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

package prompts

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind classifies every error surfaced by the registry and the adapters.
type Kind string

const (
	KindNotFound         Kind = "NotFound"
	KindDuplicateID      Kind = "DuplicateId"
	KindValidationFailed Kind = "ValidationFailed"
	KindMissingArgument  Kind = "MissingRequiredArgument"
	KindVersionConflict  Kind = "VersionConflict"
	KindIOFailure        Kind = "IOFailure"
	KindTemplateError    Kind = "TemplateError"
	KindConflict         Kind = "Conflict"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrDuplicateID      = &Error{Kind: KindDuplicateID}
	ErrValidationFailed = &Error{Kind: KindValidationFailed}
	ErrMissingArgument  = &Error{Kind: KindMissingArgument}
	ErrVersionConflict  = &Error{Kind: KindVersionConflict}
	ErrIOFailure        = &Error{Kind: KindIOFailure}
	ErrTemplateError    = &Error{Kind: KindTemplateError}
	ErrConflict         = &Error{Kind: KindConflict}
)

// Error is a classified prompt error.
type Error struct {
	Kind Kind
	ID   string
	Msg  string
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.ID != "" {
		fmt.Fprintf(&b, " (id %q)", e.ID)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Message is the human-readable part of the error, without the kind.
func (e *Error) Message() string {
	msg := e.Msg
	if msg == "" {
		msg = defaultMessage(e.Kind, e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind. A missing render argument is also
// a validation failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.ID != "" || t.Msg != "" || t.Err != nil {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindValidationFailed && e.Kind == KindMissingArgument
}

func defaultMessage(kind Kind, id string) string {
	switch kind {
	case KindNotFound:
		return fmt.Sprintf("prompt %q not found", id)
	case KindDuplicateID:
		return fmt.Sprintf("prompt %q already exists", id)
	case KindVersionConflict:
		return fmt.Sprintf("prompt %q was modified concurrently", id)
	case KindConflict:
		return fmt.Sprintf("record for %q already exists", id)
	case KindIOFailure:
		return "storage failure"
	}
	return string(kind)
}

// NewError returns a classified error with a stack trace attached.
func NewError(kind Kind, id, msg string) error {
	return errors.WithStackDepth(&Error{Kind: kind, ID: id, Msg: msg}, 1)
}

// Errorf is NewError with a formatted message.
func Errorf(kind Kind, id, format string, args ...interface{}) error {
	return errors.WithStackDepth(&Error{Kind: kind, ID: id, Msg: fmt.Sprintf(format, args...)}, 1)
}

// Wrap classifies cause under kind. A nil cause returns nil.
func Wrap(kind Kind, id string, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return errors.WithStackDepth(&Error{Kind: kind, ID: id, Msg: msg, Err: cause}, 1)
}

// NotFound is shorthand for a KindNotFound error.
func NotFound(id string) error {
	return errors.WithStackDepth(&Error{Kind: KindNotFound, ID: id}, 1)
}

// IOFailure wraps a storage driver error.
func IOFailure(id string, cause error, msg string) error {
	return errors.WithStackDepth(&Error{Kind: KindIOFailure, ID: id, Msg: msg, Err: cause}, 1)
}

// AsError extracts the outermost *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return KindOf(err) == KindIOFailure
}
