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

// Package template renders prompt bodies.
//
// Placeholders use double braces and may carry inner whitespace:
//
//	Hello, {{name}}! Today is {{ day }}.
//
// A backslash before the opening braces (\{{) emits literal braces. All
// other text, including a lone "}}", is copied verbatim.
package template

import (
	"fmt"
	"strings"
)

// SyntaxError reports a malformed template body.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template syntax error at offset %d: %s", e.Offset, e.Msg)
}

// MissingVariableError reports a placeholder with no value at execution.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("no value for placeholder %q", e.Name)
}

// segment is either literal text or a placeholder reference.
type segment struct {
	text        string
	placeholder bool
}

// Template is a parsed template body. It is immutable and safe for
// concurrent use.
type Template struct {
	segments  []segment
	variables []string
	size      int
}

// Parse parses body into a Template.
func Parse(body string) (*Template, error) {
	t := &Template{}
	seen := make(map[string]bool)
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{text: lit.String()})
			t.size += lit.Len()
			lit.Reset()
		}
	}

	i := 0
	for i < len(body) {
		if strings.HasPrefix(body[i:], `\{{`) {
			lit.WriteString("{{")
			i += 3
			continue
		}
		if !strings.HasPrefix(body[i:], "{{") {
			lit.WriteByte(body[i])
			i++
			continue
		}

		end := strings.Index(body[i+2:], "}}")
		if end < 0 {
			return nil, &SyntaxError{Offset: i, Msg: "unterminated placeholder"}
		}
		name := strings.TrimSpace(body[i+2 : i+2+end])
		if name == "" {
			return nil, &SyntaxError{Offset: i, Msg: "empty placeholder"}
		}
		if !validName(name) {
			return nil, &SyntaxError{Offset: i, Msg: fmt.Sprintf("invalid placeholder name %q", name)}
		}

		flush()
		t.segments = append(t.segments, segment{text: name, placeholder: true})
		if !seen[name] {
			seen[name] = true
			t.variables = append(t.variables, name)
		}
		i += 2 + end + 2
	}
	flush()
	return t, nil
}

// Variables returns placeholder names in order of first use.
func (t *Template) Variables() []string {
	out := make([]string, len(t.variables))
	copy(out, t.variables)
	return out
}

// Execute substitutes values into the template. Every placeholder must
// have an entry in values.
func (t *Template) Execute(values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(t.size)
	for _, seg := range t.segments {
		if !seg.placeholder {
			b.WriteString(seg.text)
			continue
		}
		v, ok := values[seg.text]
		if !ok {
			return "", &MissingVariableError{Name: seg.text}
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

// Render parses and executes body in one step.
func Render(body string, values map[string]string) (string, error) {
	t, err := Parse(body)
	if err != nil {
		return "", err
	}
	return t.Execute(values)
}

func validName(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
