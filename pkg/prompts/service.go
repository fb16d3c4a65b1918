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

import "context"

// Service is the set of prompt operations exposed to front ends (MCP
// sessions and the REST API). *registry.Registry implements it.
type Service interface {
	Create(ctx context.Context, spec Spec) (*Prompt, error)
	Get(ctx context.Context, id string, version int) (*Prompt, error)
	List(ctx context.Context, filter ListFilter) (*Page, error)
	Update(ctx context.Context, id string, version int, patch Patch) (*Prompt, error)
	Delete(ctx context.Context, id string) error
	Render(ctx context.Context, req RenderRequest) (*Rendered, error)

	Versions(ctx context.Context, id string) ([]int, error)
	Diff(ctx context.Context, id string, from, to int) (*Diff, error)
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}
