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

package registry

import (
	"context"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

// Diff compares the template bodies of two retained versions of id.
func (r *Registry) Diff(ctx context.Context, id string, from, to int) (d *prompts.Diff, err error) {
	ctx, span := r.span(ctx, "registry.diff", id)
	defer func() { r.endSpan(span, err) }()

	if from < 0 || to < 0 {
		return nil, prompts.NewError(prompts.KindValidationFailed, id, "from and to must be explicit versions")
	}
	a, err := r.get(ctx, id, from)
	if err != nil {
		return nil, err
	}
	b, err := r.get(ctx, id, to)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a.TemplateBody, b.TemplateBody, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	d = &prompts.Diff{ID: id, From: from, To: to}
	for _, df := range diffs {
		switch df.Type {
		case diffmatchpatch.DiffInsert:
			d.Insertions += utf8.RuneCountInString(df.Text)
		case diffmatchpatch.DiffDelete:
			d.Deletions += utf8.RuneCountInString(df.Text)
		}
	}
	d.Patch = dmp.PatchToText(dmp.PatchMake(a.TemplateBody, diffs))
	return d, nil
}
