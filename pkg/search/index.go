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

// Package search keeps an in-memory full-text index of current prompts.
package search

import (
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/cockroachdb/errors"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

const (
	// DefaultLimit is used when a search passes no limit.
	DefaultLimit = 20
	// MaxLimit caps the hits returned by one search.
	MaxLimit = 200
)

// Index is a bleve index over id, name, description, tags and body.
// It is safe for concurrent use.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
}

type document struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Body        string   `json:"body"`
}

// New creates an empty in-memory index.
func New() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create search index")
	}
	return &Index{index: idx}, nil
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	id := bleve.NewTextFieldMapping()
	id.Analyzer = keyword.Name
	id.Store = true
	doc.AddFieldMappingsAt("id", id)

	tags := bleve.NewTextFieldMapping()
	tags.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("tags", tags)

	for _, field := range []string{"name", "description", "body"} {
		text := bleve.NewTextFieldMapping()
		text.Analyzer = standard.Name
		doc.AddFieldMappingsAt(field, text)
	}

	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}

// Put indexes the current record of a prompt, replacing any earlier one.
// Tombstones are removed instead.
func (x *Index) Put(p *prompts.Prompt) error {
	if p.Deleted() {
		return x.Delete(p.ID)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	err := x.index.Index(p.ID, document{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Tags:        p.Tags,
		Body:        p.TemplateBody,
	})
	return errors.Wrapf(err, "index %s", p.ID)
}

// Delete drops a prompt from the index. Unknown ids are ignored.
func (x *Index) Delete(id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return errors.Wrapf(x.index.Delete(id), "unindex %s", id)
}

// Reset empties the index.
func (x *Index) Reset() error {
	fresh, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return errors.Wrap(err, "failed to create search index")
	}
	x.mu.Lock()
	old := x.index
	x.index = fresh
	x.mu.Unlock()
	return old.Close()
}

// Len returns the number of indexed prompts.
func (x *Index) Len() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.index.DocCount()
}

// Search matches query against the text fields and exact tags or id, best
// score first.
func (x *Index) Search(query string, limit int) ([]prompts.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, prompts.NewError(prompts.KindValidationFailed, "", "query: required")
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	q := bleve.NewDisjunctionQuery()
	for _, field := range []string{"name", "description", "body"} {
		m := bleve.NewMatchQuery(query)
		m.SetField(field)
		q.AddQuery(m)
	}
	for _, field := range []string{"id", "tags"} {
		t := bleve.NewTermQuery(query)
		t.SetField(field)
		q.AddQuery(t)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit

	x.mu.RLock()
	res, err := x.index.Search(req)
	x.mu.RUnlock()
	if err != nil {
		return nil, errors.Wrap(err, "search failed")
	}

	hits := make([]prompts.SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, prompts.SearchHit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Close releases the index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.index.Close()
}
