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

// Package file stores prompt versions as JSON documents on disk.
//
// Directory structure:
//
//	<dir>/
//	  greet/
//	    0000000000.json   # version 0
//	    0000000001.json   # version 1
//	  sql.explain/
//	    0000000000.json
//
// Each file holds one immutable version. New versions are written to a
// temporary file and hard-linked into place, so creation is atomic and
// fails if the version already exists.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/storage"
)

const (
	versionExt   = ".json"
	versionWidth = 10
	tempPrefix   = ".tmp-"
)

// Store is a directory-backed adapter.
type Store struct {
	dir    string
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the watcher.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New opens (and creates if needed) a store rooted at dir.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("file store: directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "file store: resolve %s", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, prompts.IOFailure("", err, "create storage directory")
	}
	s := &Store{dir: abs, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

func versionFile(v int) string {
	return fmt.Sprintf("%0*d%s", versionWidth, v, versionExt)
}

// parseVersionFile returns the version encoded in a file name.
func parseVersionFile(name string) (int, bool) {
	if len(name) != versionWidth+len(versionExt) || !strings.HasSuffix(name, versionExt) {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSuffix(name, versionExt))
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func (s *Store) idDir(id string) string { return filepath.Join(s.dir, id) }

// Put writes a new version file.
func (s *Store) Put(_ context.Context, p *prompts.Prompt) error {
	if !prompts.ValidID(p.ID) {
		return prompts.Errorf(prompts.KindValidationFailed, p.ID, "id: invalid for file storage")
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return prompts.IOFailure(p.ID, err, "encode prompt")
	}

	dir := s.idDir(p.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return prompts.IOFailure(p.ID, err, "create prompt directory")
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return prompts.IOFailure(p.ID, err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return prompts.IOFailure(p.ID, err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return prompts.IOFailure(p.ID, err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return prompts.IOFailure(p.ID, err, "close temp file")
	}

	// Link fails if the target exists, which gives create-if-absent.
	if err := os.Link(tmpName, filepath.Join(dir, versionFile(p.Version))); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return prompts.Errorf(prompts.KindConflict, p.ID, "version %d already exists", p.Version)
		}
		return prompts.IOFailure(p.ID, err, "link version file")
	}
	return nil
}

// versions lists stored versions of id in ascending order.
func (s *Store) versions(id string) ([]int, error) {
	entries, err := os.ReadDir(s.idDir(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, prompts.NotFound(id)
		}
		return nil, prompts.IOFailure(id, err, "read prompt directory")
	}
	var out []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if v, ok := parseVersionFile(e.Name()); ok {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, prompts.NotFound(id)
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) read(id string, version int) (*prompts.Prompt, error) {
	data, err := os.ReadFile(filepath.Join(s.idDir(id), versionFile(version)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, prompts.Errorf(prompts.KindNotFound, id, "version %d not found", version)
		}
		return nil, prompts.IOFailure(id, err, "read version file")
	}
	var p prompts.Prompt
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, prompts.IOFailure(id, err, "decode version file")
	}
	if p.ID != id || p.Version != version {
		return nil, prompts.Errorf(prompts.KindIOFailure, id, "version file %d holds %s@%d", version, p.ID, p.Version)
	}
	return &p, nil
}

// Get reads one version, or the highest stored one.
func (s *Store) Get(_ context.Context, id string, version int) (*prompts.Prompt, error) {
	if !prompts.ValidID(id) {
		return nil, prompts.NotFound(id)
	}
	if version == prompts.LatestVersion {
		versions, err := s.versions(id)
		if err != nil {
			return nil, err
		}
		version = versions[len(versions)-1]
	}
	return s.read(id, version)
}

// Scan walks prompt directories in name order. os.ReadDir sorts entries
// by file name, which for valid ids is byte order.
func (s *Store) Scan(ctx context.Context, filter storage.ScanFilter) (*storage.ScanResult, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, prompts.IOFailure("", err, "read storage directory")
	}

	limit := filter.PageSize()
	res := &storage.ScanResult{}
	for _, e := range entries {
		id := e.Name()
		if !e.IsDir() || id <= filter.After || !prompts.ValidID(id) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur, err := s.Get(ctx, id, prompts.LatestVersion)
		if err != nil {
			// A directory emptied by a concurrent delete is not an error.
			if prompts.KindOf(err) == prompts.KindNotFound {
				continue
			}
			return nil, err
		}
		if cur.Deleted() || !strings.HasPrefix(cur.Name, filter.NamePrefix) || !cur.HasTags(filter.Tags) {
			continue
		}
		if len(res.Prompts) == limit {
			res.Next = res.Prompts[limit-1].ID
			break
		}
		res.Prompts = append(res.Prompts, cur)
	}
	return res, nil
}

// Delete removes the prompt directory.
func (s *Store) Delete(_ context.Context, id string) error {
	if !prompts.ValidID(id) {
		return prompts.NotFound(id)
	}
	if _, err := s.versions(id); err != nil {
		return err
	}
	if err := os.RemoveAll(s.idDir(id)); err != nil {
		return prompts.IOFailure(id, err, "remove prompt directory")
	}
	return nil
}

// Versions lists stored versions in ascending order.
func (s *Store) Versions(_ context.Context, id string) ([]int, error) {
	if !prompts.ValidID(id) {
		return nil, prompts.NotFound(id)
	}
	return s.versions(id)
}

// DeleteVersion removes one version file. The directory goes with the
// last version.
func (s *Store) DeleteVersion(_ context.Context, id string, version int) error {
	if !prompts.ValidID(id) {
		return prompts.NotFound(id)
	}
	err := os.Remove(filepath.Join(s.idDir(id), versionFile(version)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return prompts.Errorf(prompts.KindNotFound, id, "version %d not found", version)
		}
		return prompts.IOFailure(id, err, "remove version file")
	}
	if _, err := s.versions(id); prompts.KindOf(err) == prompts.KindNotFound {
		_ = os.RemoveAll(s.idDir(id))
	}
	return nil
}

// Ping checks the root directory is still there.
func (s *Store) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return prompts.IOFailure("", err, "stat storage directory")
	}
	if !info.IsDir() {
		return prompts.Errorf(prompts.KindIOFailure, "", "%s is not a directory", s.dir)
	}
	return nil
}

// Close is a no-op. Watchers stop with their context.
func (s *Store) Close() error { return nil }

var (
	_ storage.Adapter = (*Store)(nil)
	_ storage.Watcher = (*Store)(nil)
)
