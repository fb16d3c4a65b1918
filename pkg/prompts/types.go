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

// Package prompts defines the prompt data model shared by the registry,
// the storage adapters and the protocol layer.
//
// A prompt is a named, versioned template:
//
//	p := &prompts.Prompt{
//	    ID:           "greet",
//	    Name:         "Greeting",
//	    TemplateBody: "Hello, {{name}}!",
//	    Arguments:    []prompts.Argument{{Name: "name", Required: true}},
//	}
//
// Every content-changing update produces a new immutable version; the
// highest version of an id is its current record.
package prompts

import (
	"slices"
	"strings"
	"time"
)

// LatestVersion selects the current record of a prompt in Get calls.
const LatestVersion = -1

// Argument describes one named input of a prompt template.
type Argument struct {
	Name        string  `json:"name" yaml:"name" validate:"required,argname"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty" validate:"max=1024"`
	Required    bool    `json:"required" yaml:"required"`
	Default     *string `json:"default,omitempty" yaml:"default,omitempty"`
}

// Prompt is a single stored version of a prompt.
type Prompt struct {
	ID           string     `json:"id"`
	Version      int        `json:"version"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Arguments    []Argument `json:"arguments"`
	TemplateBody string     `json:"template_body"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// DeletedAt is set only on the tombstone version written by a delete.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether p is a tombstone.
func (p *Prompt) Deleted() bool {
	return p != nil && p.DeletedAt != nil
}

// Clone returns a deep copy of p.
func (p *Prompt) Clone() *Prompt {
	if p == nil {
		return nil
	}
	c := *p
	c.Arguments = cloneArguments(p.Arguments)
	c.Tags = slices.Clone(p.Tags)
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// HasTags reports whether p carries every tag in tags.
func (p *Prompt) HasTags(tags []string) bool {
	for _, t := range tags {
		if !slices.Contains(p.Tags, t) {
			return false
		}
	}
	return true
}

// Argument returns the argument spec with the given name.
func (p *Prompt) Argument(name string) (Argument, bool) {
	for _, a := range p.Arguments {
		if a.Name == name {
			return a, true
		}
	}
	return Argument{}, false
}

func cloneArguments(args []Argument) []Argument {
	if args == nil {
		return nil
	}
	out := make([]Argument, len(args))
	for i, a := range args {
		out[i] = a
		if a.Default != nil {
			d := *a.Default
			out[i].Default = &d
		}
	}
	return out
}

// Spec is the input of a create operation. ID is optional; the registry
// assigns one when it is empty.
type Spec struct {
	ID           string     `json:"id,omitempty" yaml:"id" validate:"omitempty,promptid"`
	Name         string     `json:"name" yaml:"name" validate:"required,max=256"`
	Description  string     `json:"description,omitempty" yaml:"description" validate:"max=4096"`
	TemplateBody string     `json:"template_body" yaml:"template_body" validate:"required"`
	Arguments    []Argument `json:"arguments,omitempty" yaml:"arguments" validate:"dive"`
	Tags         []string   `json:"tags,omitempty" yaml:"tags" validate:"dive,max=64"`
}

// Patch holds the fields an update changes. Nil fields are left as is.
type Patch struct {
	Name         *string     `json:"name,omitempty"`
	Description  *string     `json:"description,omitempty"`
	TemplateBody *string     `json:"template_body,omitempty"`
	Arguments    *[]Argument `json:"arguments,omitempty"`
	Tags         *[]string   `json:"tags,omitempty"`
}

// Empty reports whether the patch sets no field.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.TemplateBody == nil &&
		p.Arguments == nil && p.Tags == nil
}

// Apply returns a copy of base with the patch applied.
func (p Patch) Apply(base *Prompt) *Prompt {
	next := base.Clone()
	if p.Name != nil {
		next.Name = *p.Name
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.TemplateBody != nil {
		next.TemplateBody = *p.TemplateBody
	}
	if p.Arguments != nil {
		next.Arguments = cloneArguments(*p.Arguments)
	}
	if p.Tags != nil {
		next.Tags = NormalizeTags(*p.Tags)
	}
	return next
}

// SameContent reports whether a and b carry identical user-visible content.
func SameContent(a, b *Prompt) bool {
	if a.Name != b.Name || a.Description != b.Description || a.TemplateBody != b.TemplateBody {
		return false
	}
	if !slices.Equal(a.Tags, b.Tags) || len(a.Arguments) != len(b.Arguments) {
		return false
	}
	for i := range a.Arguments {
		x, y := a.Arguments[i], b.Arguments[i]
		if x.Name != y.Name || x.Description != y.Description || x.Required != y.Required {
			return false
		}
		if (x.Default == nil) != (y.Default == nil) {
			return false
		}
		if x.Default != nil && *x.Default != *y.Default {
			return false
		}
	}
	return true
}

// NormalizeTags trims, deduplicates and sorts tags. It never returns nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ListFilter selects prompts for a list operation.
type ListFilter struct {
	Tags       []string
	NamePrefix string
	Limit      int
	Cursor     string
}

// Page is one page of a list operation. NextCursor is empty on the last page.
type Page struct {
	Prompts    []*Prompt
	NextCursor string
}

// RenderRequest asks for a prompt to be rendered. Version defaults to the
// current one when set to LatestVersion.
type RenderRequest struct {
	ID        string
	Version   int
	Arguments map[string]string
}

// Rendered is the text produced by a render.
type Rendered struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Text    string `json:"text"`
}

// Diff describes the change of a template body between two versions.
type Diff struct {
	ID         string `json:"id"`
	From       int    `json:"from"`
	To         int    `json:"to"`
	Patch      string `json:"patch"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// SearchHit is one full-text search result.
type SearchHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
