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

// Package memory is the in-memory storage adapter. It is the reference
// implementation of storage.Adapter.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/storage"
)

// Store keeps every version in process memory.
type Store struct {
	mu      sync.RWMutex
	records map[string][]*prompts.Prompt // ascending by version
}

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string][]*prompts.Prompt)}
}

func byVersion(p *prompts.Prompt, v int) int {
	return cmp.Compare(p.Version, v)
}

// Put stores a copy of p.
func (s *Store) Put(_ context.Context, p *prompts.Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.records[p.ID]
	i, found := slices.BinarySearchFunc(versions, p.Version, byVersion)
	if found {
		return prompts.Errorf(prompts.KindConflict, p.ID, "version %d already exists", p.Version)
	}
	s.records[p.ID] = slices.Insert(versions, i, p.Clone())
	return nil
}

// Get returns a copy of the requested version.
func (s *Store) Get(_ context.Context, id string, version int) (*prompts.Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.records[id]
	if len(versions) == 0 {
		return nil, prompts.NotFound(id)
	}
	if version == prompts.LatestVersion {
		return versions[len(versions)-1].Clone(), nil
	}
	i, found := slices.BinarySearchFunc(versions, version, byVersion)
	if !found {
		return nil, prompts.Errorf(prompts.KindNotFound, id, "version %d not found", version)
	}
	return versions[i].Clone(), nil
}

// Scan walks current records in id order.
func (s *Store) Scan(_ context.Context, filter storage.ScanFilter) (*storage.ScanResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		if id > filter.After {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	limit := filter.PageSize()
	res := &storage.ScanResult{}
	for _, id := range ids {
		versions := s.records[id]
		cur := versions[len(versions)-1]
		if cur.Deleted() || !strings.HasPrefix(cur.Name, filter.NamePrefix) || !cur.HasTags(filter.Tags) {
			continue
		}
		if len(res.Prompts) == limit {
			res.Next = res.Prompts[limit-1].ID
			break
		}
		res.Prompts = append(res.Prompts, cur.Clone())
	}
	return res, nil
}

// Delete removes all versions of id.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return prompts.NotFound(id)
	}
	delete(s.records, id)
	return nil
}

// Versions lists the stored versions of id.
func (s *Store) Versions(_ context.Context, id string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.records[id]
	if len(versions) == 0 {
		return nil, prompts.NotFound(id)
	}
	out := make([]int, len(versions))
	for i, p := range versions {
		out[i] = p.Version
	}
	return out, nil
}

// DeleteVersion removes one version of id.
func (s *Store) DeleteVersion(_ context.Context, id string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.records[id]
	i, found := slices.BinarySearchFunc(versions, version, byVersion)
	if !found {
		return prompts.Errorf(prompts.KindNotFound, id, "version %d not found", version)
	}
	versions = slices.Delete(versions, i, i+1)
	if len(versions) == 0 {
		delete(s.records, id)
		return nil
	}
	s.records[id] = versions
	return nil
}

// Prune drops all but the newest keep versions of id.
func (s *Store) Prune(_ context.Context, id string, keep int) (int, error) {
	if keep <= 0 {
		return 0, prompts.Errorf(prompts.KindValidationFailed, id, "keep must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.records[id]
	if len(versions) <= keep {
		return 0, nil
	}
	removed := len(versions) - keep
	s.records[id] = slices.Clone(versions[removed:])
	return removed, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

var (
	_ storage.Adapter = (*Store)(nil)
	_ storage.Pruner  = (*Store)(nil)
)
