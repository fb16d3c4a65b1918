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

package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		values map[string]string
		want   string
	}{
		{
			name:   "simple substitution",
			body:   "Hello, {{name}}!",
			values: map[string]string{"name": "World"},
			want:   "Hello, World!",
		},
		{
			name:   "inner whitespace",
			body:   "{{ greeting }}, {{\tname }}",
			values: map[string]string{"greeting": "Hi", "name": "Ada"},
			want:   "Hi, Ada",
		},
		{
			name:   "repeated placeholder",
			body:   "{{x}}-{{x}}",
			values: map[string]string{"x": "1"},
			want:   "1-1",
		},
		{
			name:   "escaped braces",
			body:   `Use \{{name}} to insert {{name}}`,
			values: map[string]string{"name": "a name"},
			want:   "Use {{name}} to insert a name",
		},
		{
			name: "lone closing braces are literal",
			body: "a }} b",
			want: "a }} b",
		},
		{
			name:   "values are not re-expanded",
			body:   "{{a}}",
			values: map[string]string{"a": "{{b}}"},
			want:   "{{b}}",
		},
		{
			name: "no placeholders",
			body: "plain text",
			want: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.body, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		offset int
	}{
		{name: "unterminated", body: "Hello {{name", offset: 6},
		{name: "empty", body: "x {{ }} y", offset: 2},
		{name: "invalid name", body: "{{first name}}", offset: 0},
		{name: "leading digit", body: "ok {{1abc}}", offset: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.body)
			require.Error(t, err)

			var syntaxErr *SyntaxError
			require.ErrorAs(t, err, &syntaxErr)
			assert.Equal(t, tt.offset, syntaxErr.Offset)
		})
	}
}

func TestTemplate_Variables(t *testing.T) {
	tmpl, err := Parse("{{b}} {{a}} {{b}} {{ c }}")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, tmpl.Variables())
}

func TestTemplate_ExecuteMissingVariable(t *testing.T) {
	tmpl, err := Parse("Hello, {{name}}!")
	require.NoError(t, err)

	_, err = tmpl.Execute(map[string]string{})
	var missing *MissingVariableError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "name", missing.Name)
}

func TestTemplate_Deterministic(t *testing.T) {
	tmpl, err := Parse("{{a}}/{{b}}/{{a}}")
	require.NoError(t, err)

	values := map[string]string{"a": "x", "b": "y"}
	first, err := tmpl.Execute(values)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, err := tmpl.Execute(values)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}
