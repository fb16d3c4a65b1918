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

package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/storage"
)

// Watch reports version files created or removed under the store
// directory, including writes made by other processes. The channel closes
// when ctx is done.
func (s *Store) Watch(ctx context.Context) (<-chan storage.Change, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", s.dir)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		watcher.Close()
		return nil, prompts.IOFailure("", err, "read storage directory")
	}
	for _, e := range entries {
		if e.IsDir() && prompts.ValidID(e.Name()) {
			if err := watcher.Add(s.idDir(e.Name())); err != nil {
				s.logger.Warn("failed to watch prompt directory", zap.String("id", e.Name()), zap.Error(err))
			}
		}
	}

	ch := make(chan storage.Change, 16)
	go func() {
		defer watcher.Close()
		defer close(ch)

		send := func(c storage.Change) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				change, ok := s.classify(watcher, event)
				if ok && !send(change) {
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("file watcher error", zap.Error(err))
				if !send(storage.Change{Err: err, At: time.Now().UTC()}) {
					return
				}
			}
		}
	}()

	return ch, nil
}

// classify maps a raw fsnotify event to a Change. New prompt directories
// are added to the watch list as they appear.
func (s *Store) classify(w *fsnotify.Watcher, ev fsnotify.Event) (storage.Change, bool) {
	rel, err := filepath.Rel(s.dir, ev.Name)
	if err != nil {
		return storage.Change{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	now := time.Now().UTC()

	switch len(parts) {
	case 1:
		id := parts[0]
		if !prompts.ValidID(id) {
			return storage.Change{}, false
		}
		if ev.Op&fsnotify.Create == fsnotify.Create {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if err := w.Add(ev.Name); err != nil {
					s.logger.Warn("failed to watch prompt directory", zap.String("id", id), zap.Error(err))
				}
				return storage.Change{ID: id, Op: storage.ChangeWrite, At: now}, true
			}
		}
		if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			return storage.Change{ID: id, Op: storage.ChangeRemove, At: now}, true
		}
	case 2:
		id, name := parts[0], parts[1]
		if !prompts.ValidID(id) || strings.HasPrefix(name, tempPrefix) {
			return storage.Change{}, false
		}
		if _, ok := parseVersionFile(name); !ok {
			return storage.Change{}, false
		}
		switch {
		case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
			return storage.Change{ID: id, Op: storage.ChangeWrite, At: now}, true
		case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
			return storage.Change{ID: id, Op: storage.ChangeRemove, At: now}, true
		}
	}
	return storage.Change{}, false
}
