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

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/storage"
)

// Follow consumes storage changes made outside this registry, such as
// files edited by hand, and turns them into cache refreshes and change
// events. It returns when ctx is done or changes closes.
func (r *Registry) Follow(ctx context.Context, changes <-chan storage.Change) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if c.Err != nil {
				continue
			}
			r.refresh(ctx, c.ID)
		}
	}
}

// refresh reloads id from storage. Changes that match the cached version
// were made by this registry and are not announced again.
func (r *Registry) refresh(ctx context.Context, id string) {
	unlock := r.lock(id)
	defer unlock()

	var prev *prompts.Prompt
	if v, ok := r.cache.Get(id); ok {
		prev = v.(*prompts.Prompt)
	}

	cur, err := r.store.Get(ctx, id, prompts.LatestVersion)
	if err != nil {
		if prompts.KindOf(err) != prompts.KindNotFound {
			r.logger.Warn("failed to reload changed prompt", zap.String("id", id), zap.Error(err))
			r.cache.Delete(id)
			return
		}
		r.cache.Delete(id)
		if r.index != nil {
			_ = r.index.Delete(id)
		}
		if prev != nil && !prev.Deleted() {
			r.logger.Info("prompt removed from storage", zap.String("id", id))
			r.publish(ctx, prompts.ChangeEvent{Kind: prompts.EventDeleted, ID: id, Version: prev.Version + 1, At: r.timestamp()})
		}
		return
	}

	if prev != nil && prev.Version == cur.Version {
		return
	}

	kind := prompts.EventUpdated
	switch {
	case cur.Deleted():
		kind = prompts.EventDeleted
	case cur.Version == 0:
		kind = prompts.EventCreated
	}
	r.cache.Set(id, cur, cache.DefaultExpiration)
	if r.index != nil {
		if err := r.index.Put(cur); err != nil {
			r.logger.Warn("failed to update search index", zap.String("id", id), zap.Error(err))
		}
	}
	r.logger.Debug("prompt changed in storage", zap.String("id", id), zap.Int("version", cur.Version))
	r.publish(ctx, prompts.ChangeEvent{Kind: kind, ID: id, Version: cur.Version, At: cur.UpdatedAt})
}

// applyRemote brings the cache and the search index up to a change
// committed by another instance. The bus delivers the event to local
// listeners itself, so nothing is published here.
func (r *Registry) applyRemote(ctx context.Context, ev prompts.ChangeEvent) {
	unlock := r.lock(ev.ID)
	defer unlock()

	if v, ok := r.cache.Get(ev.ID); ok && v.(*prompts.Prompt).Version >= ev.Version {
		return
	}
	cur, err := r.store.Get(ctx, ev.ID, prompts.LatestVersion)
	if err != nil {
		r.cache.Delete(ev.ID)
		if prompts.KindOf(err) != prompts.KindNotFound {
			r.logger.Warn("failed to reload remotely changed prompt", zap.String("id", ev.ID), zap.Error(err))
			return
		}
		if r.index != nil {
			_ = r.index.Delete(ev.ID)
		}
		return
	}
	r.cache.Set(ev.ID, cur, cache.DefaultExpiration)
	if r.index != nil {
		if err := r.index.Put(cur); err != nil {
			r.logger.Warn("failed to update search index", zap.String("id", ev.ID), zap.Error(err))
		}
	}
	r.logger.Debug("applied remote change", zap.String("id", ev.ID), zap.Int("version", cur.Version))
}
