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

// Package registry is the authoritative store of prompts. It versions every
// write, enforces optimistic concurrency, applies the retention policy and
// emits change events after each commit.
package registry

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/teradata-labs/promptd/pkg/config"
	"github.com/teradata-labs/promptd/pkg/events"
	"github.com/teradata-labs/promptd/pkg/observability"
	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/search"
	"github.com/teradata-labs/promptd/pkg/storage"
	"github.com/teradata-labs/promptd/pkg/template"
)

const (
	// DefaultListLimit is the page size when a list passes no limit.
	DefaultListLimit = 50
	// MaxListLimit caps the page size of a list.
	MaxListLimit = 500

	lockShards = 64
)

// Policy is the retention and caching configuration of a Registry.
type Policy struct {
	// RetainHistory keeps earlier versions readable after a delete.
	RetainHistory bool
	// MaxVersions bounds the stored versions per prompt. Zero is unbounded.
	MaxVersions int
	// CacheTTL is how long current records stay cached.
	CacheTTL time.Duration
}

// PolicyFromConfig extracts the registry settings from cfg.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		RetainHistory: cfg.RetainHistory,
		MaxVersions:   cfg.MaxVersionsPerPrompt,
		CacheTTL:      cfg.CacheTTL(),
	}
}

// Registry implements prompts.Service on top of a storage adapter.
type Registry struct {
	store  storage.Adapter
	policy Policy

	bus    events.Bus
	index  *search.Index
	tracer observability.Tracer
	logger *zap.Logger
	now    func() time.Time

	locks [lockShards]sync.Mutex
	cache *cache.Cache
	loads singleflight.Group

	// pending holds ids whose retention prune failed, for Compact to retry.
	pendingMu sync.Mutex
	pending   map[string]struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithBus sets the bus change events are published on.
func WithBus(b events.Bus) Option {
	return func(r *Registry) { r.bus = b }
}

// WithSearchIndex enables Search over idx. The registry keeps it current.
func WithSearchIndex(idx *search.Index) Option {
	return func(r *Registry) { r.index = idx }
}

// WithTracer sets the tracer.
func WithTracer(t observability.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates a registry over store.
func New(store storage.Adapter, policy Policy, opts ...Option) *Registry {
	if policy.CacheTTL <= 0 {
		policy.CacheTTL = 5 * time.Minute
	}
	r := &Registry{
		store:   store,
		policy:  policy,
		bus:     events.NewLocalBus(),
		tracer:  observability.NewNoOpTracer(),
		logger:  zap.NewNop(),
		now:     time.Now,
		cache:   cache.New(policy.CacheTTL, 2*policy.CacheTTL),
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if rs, ok := r.bus.(events.RemoteSource); ok {
		rs.OnRemote(r.applyRemote)
	}
	return r
}

// Bus returns the bus change events are published on.
func (r *Registry) Bus() events.Bus { return r.bus }

// Store returns the underlying adapter.
func (r *Registry) Store() storage.Adapter { return r.store }

// Policy returns the retention policy.
func (r *Registry) Policy() Policy { return r.policy }

// lock serializes mutations of one id. Ids in different shards proceed in
// parallel.
func (r *Registry) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &r.locks[h.Sum32()%lockShards]
	mu.Lock()
	return mu.Unlock
}

func (r *Registry) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func (r *Registry) span(ctx context.Context, name, id string) (context.Context, *observability.Span) {
	ctx, span := r.tracer.StartSpan(ctx, name)
	if id != "" {
		span.SetAttribute(observability.AttrPromptID, id)
	}
	return ctx, span
}

func (r *Registry) endSpan(span *observability.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttribute(observability.AttrErrorKind, string(prompts.KindOf(err)))
	} else {
		span.Status = observability.Status{Code: observability.StatusOK}
	}
	r.tracer.EndSpan(span)
}

// current returns the highest stored version of id, tombstones included,
// through the cache.
func (r *Registry) current(ctx context.Context, id string) (*prompts.Prompt, error) {
	if v, ok := r.cache.Get(id); ok {
		r.tracer.RecordMetric(observability.MetricCache, 1, map[string]string{"result": "hit"})
		return v.(*prompts.Prompt).Clone(), nil
	}
	r.tracer.RecordMetric(observability.MetricCache, 1, map[string]string{"result": "miss"})

	v, err, _ := r.loads.Do(id, func() (interface{}, error) {
		// Coalesced callers share this load, so one of them giving up
		// must not fail the rest.
		p, err := r.store.Get(context.WithoutCancel(ctx), id, prompts.LatestVersion)
		if err != nil {
			return nil, err
		}
		// Add leaves a record stored by a concurrent commit in place.
		_ = r.cache.Add(id, p, cache.DefaultExpiration)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*prompts.Prompt).Clone(), nil
}

// commit records p as the current version after a successful Put. The
// caller holds the id lock.
func (r *Registry) commit(ctx context.Context, p *prompts.Prompt, kind prompts.EventKind) {
	r.cache.Set(p.ID, p.Clone(), cache.DefaultExpiration)
	if r.index != nil {
		if err := r.index.Put(p); err != nil {
			r.logger.Warn("failed to update search index", zap.String("id", p.ID), zap.Error(err))
		}
	}
	r.publish(ctx, prompts.ChangeEvent{Kind: kind, ID: p.ID, Version: p.Version, At: p.UpdatedAt})
}

func (r *Registry) publish(ctx context.Context, ev prompts.ChangeEvent) {
	// The write is committed, so a caller that went away still gets its
	// event delivered.
	if err := r.bus.Publish(context.WithoutCancel(ctx), ev); err != nil {
		r.logger.Warn("failed to publish change event",
			zap.String("id", ev.ID), zap.String("event", string(ev.Kind)), zap.Error(err))
	}
	r.tracer.RecordEvent(ctx, "prompt."+string(ev.Kind), map[string]interface{}{
		observability.AttrPromptID:  ev.ID,
		observability.AttrPromptVer: ev.Version,
	})
}

// Create stores a new prompt at version 0.
func (r *Registry) Create(ctx context.Context, spec prompts.Spec) (p *prompts.Prompt, err error) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	ctx, span := r.span(ctx, "registry.create", spec.ID)
	defer func() { r.endSpan(span, err) }()

	now := r.timestamp()
	p = &prompts.Prompt{
		ID:           spec.ID,
		Version:      0,
		Name:         spec.Name,
		Description:  spec.Description,
		Arguments:    spec.Arguments,
		TemplateBody: spec.TemplateBody,
		Tags:         prompts.NormalizeTags(spec.Tags),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.Arguments == nil {
		p.Arguments = []prompts.Argument{}
	}
	if err := prompts.Validate(p); err != nil {
		return nil, err
	}

	unlock := r.lock(p.ID)
	defer unlock()

	// Tombstones count, so a deleted id is never reused.
	_, err = r.store.Get(ctx, p.ID, prompts.LatestVersion)
	switch {
	case err == nil:
		return nil, prompts.NewError(prompts.KindDuplicateID, p.ID, "")
	case prompts.KindOf(err) != prompts.KindNotFound:
		return nil, err
	}

	if err := r.store.Put(ctx, p); err != nil {
		if prompts.KindOf(err) == prompts.KindConflict {
			return nil, prompts.NewError(prompts.KindDuplicateID, p.ID, "")
		}
		return nil, err
	}
	r.commit(ctx, p, prompts.EventCreated)
	r.logger.Debug("prompt created", zap.String("id", p.ID))
	return p.Clone(), nil
}

// Get returns the current record, or a retained historical version.
func (r *Registry) Get(ctx context.Context, id string, version int) (p *prompts.Prompt, err error) {
	ctx, span := r.span(ctx, "registry.get", id)
	defer func() { r.endSpan(span, err) }()
	return r.get(ctx, id, version)
}

func (r *Registry) get(ctx context.Context, id string, version int) (*prompts.Prompt, error) {
	if !prompts.ValidID(id) {
		return nil, prompts.NotFound(id)
	}
	if version < 0 && version != prompts.LatestVersion {
		return nil, prompts.Errorf(prompts.KindValidationFailed, id, "version: %d is negative", version)
	}

	cur, err := r.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if version == prompts.LatestVersion || version == cur.Version {
		if cur.Deleted() {
			return nil, prompts.NotFound(id)
		}
		return cur, nil
	}
	if version > cur.Version {
		return nil, prompts.Errorf(prompts.KindNotFound, id, "version %d not found", version)
	}
	if cur.Deleted() && !r.policy.RetainHistory {
		return nil, prompts.NotFound(id)
	}
	return r.store.Get(ctx, id, version)
}

// List returns one page of current prompts ordered by id.
func (r *Registry) List(ctx context.Context, filter prompts.ListFilter) (page *prompts.Page, err error) {
	ctx, span := r.span(ctx, "registry.list", "")
	defer func() { r.endSpan(span, err) }()

	after, err := prompts.DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, err
	}
	limit := filter.Limit
	switch {
	case limit < 0:
		return nil, prompts.Errorf(prompts.KindValidationFailed, "", "limit: %d is negative", limit)
	case limit == 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	res, err := r.store.Scan(ctx, storage.ScanFilter{
		Tags:       prompts.NormalizeTags(filter.Tags),
		NamePrefix: filter.NamePrefix,
		After:      after,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	page = &prompts.Page{Prompts: res.Prompts, NextCursor: prompts.EncodeCursor(res.Next)}
	if page.Prompts == nil {
		page.Prompts = []*prompts.Prompt{}
	}
	return page, nil
}

// Update applies patch if version is still current. A patch that changes
// nothing returns the current record without writing.
func (r *Registry) Update(ctx context.Context, id string, version int, patch prompts.Patch) (p *prompts.Prompt, err error) {
	ctx, span := r.span(ctx, "registry.update", id)
	defer func() { r.endSpan(span, err) }()

	if !prompts.ValidID(id) {
		return nil, prompts.NotFound(id)
	}

	unlock := r.lock(id)
	defer unlock()

	cur, err := r.store.Get(ctx, id, prompts.LatestVersion)
	if err != nil {
		return nil, err
	}
	if cur.Deleted() {
		return nil, prompts.NotFound(id)
	}
	if cur.Version != version {
		return nil, prompts.Errorf(prompts.KindVersionConflict, id,
			"expected version %d, current is %d", version, cur.Version)
	}

	next := patch.Apply(cur)
	if prompts.SameContent(cur, next) {
		return cur, nil
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = r.timestamp()
	next.DeletedAt = nil
	if next.Arguments == nil {
		next.Arguments = []prompts.Argument{}
	}
	if err := prompts.Validate(next); err != nil {
		return nil, err
	}

	if err := r.store.Put(ctx, next); err != nil {
		if prompts.KindOf(err) == prompts.KindConflict {
			return nil, prompts.Errorf(prompts.KindVersionConflict, id, "version %d was written concurrently", next.Version)
		}
		return nil, err
	}
	r.commit(ctx, next, prompts.EventUpdated)
	span.SetAttribute(observability.AttrPromptVer, next.Version)

	r.retain(ctx, next)
	return next.Clone(), nil
}

// Delete writes a tombstone version. Without retained history every
// earlier version is pruned.
func (r *Registry) Delete(ctx context.Context, id string) (err error) {
	ctx, span := r.span(ctx, "registry.delete", id)
	defer func() { r.endSpan(span, err) }()

	if !prompts.ValidID(id) {
		return prompts.NotFound(id)
	}

	unlock := r.lock(id)
	defer unlock()

	cur, err := r.store.Get(ctx, id, prompts.LatestVersion)
	if err != nil {
		return err
	}
	if cur.Deleted() {
		return prompts.NotFound(id)
	}

	tomb := cur.Clone()
	tomb.Version = cur.Version + 1
	now := r.timestamp()
	tomb.UpdatedAt = now
	tomb.DeletedAt = &now
	if err := r.store.Put(ctx, tomb); err != nil {
		if prompts.KindOf(err) == prompts.KindConflict {
			return prompts.Errorf(prompts.KindVersionConflict, id, "version %d was written concurrently", tomb.Version)
		}
		return err
	}
	r.commit(ctx, tomb, prompts.EventDeleted)

	r.retain(ctx, tomb)
	return nil
}

// keepCount is how many newest versions the retention policy keeps for a
// record whose current version is cur. Zero means keep everything.
func (r *Registry) keepCount(cur *prompts.Prompt) int {
	switch {
	case cur.Deleted() && !r.policy.RetainHistory:
		return 1
	case cur.Deleted() && r.policy.MaxVersions > 0:
		// The tombstone does not take a slot from the readable history.
		return r.policy.MaxVersions + 1
	}
	return r.policy.MaxVersions
}

// retain prunes after a write. Failures are left for Compact.
func (r *Registry) retain(ctx context.Context, cur *prompts.Prompt) {
	keep := r.keepCount(cur)
	if keep <= 0 {
		return
	}
	if _, err := r.prune(ctx, cur.ID, keep); err != nil {
		r.logger.Warn("failed to prune versions",
			zap.String("id", cur.ID), zap.Int("keep", keep), zap.Error(err))
		r.pendingMu.Lock()
		r.pending[cur.ID] = struct{}{}
		r.pendingMu.Unlock()
	}
}

// prune keeps the newest keep versions of id. The caller holds the id lock.
func (r *Registry) prune(ctx context.Context, id string, keep int) (int, error) {
	if p, ok := r.store.(storage.Pruner); ok {
		return p.Prune(ctx, id, keep)
	}
	versions, err := r.store.Versions(ctx, id)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, v := range versions[:max(len(versions)-keep, 0)] {
		if err := r.store.DeleteVersion(ctx, id, v); err != nil && prompts.KindOf(err) != prompts.KindNotFound {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Render resolves arguments for the requested version and executes its
// template. Supplied values win over defaults; optional arguments without
// either render empty.
func (r *Registry) Render(ctx context.Context, req prompts.RenderRequest) (out *prompts.Rendered, err error) {
	ctx, span := r.span(ctx, "registry.render", req.ID)
	defer func() { r.endSpan(span, err) }()

	p, err := r.get(ctx, req.ID, req.Version)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(p.Arguments))
	var missing []string
	for _, a := range p.Arguments {
		if v, ok := req.Arguments[a.Name]; ok {
			values[a.Name] = v
			continue
		}
		switch {
		case a.Default != nil:
			values[a.Name] = *a.Default
		case a.Required:
			missing = append(missing, a.Name)
		default:
			values[a.Name] = ""
		}
	}
	if len(missing) > 0 {
		return nil, prompts.Errorf(prompts.KindMissingArgument, p.ID,
			"missing required arguments: %s", strings.Join(missing, ", "))
	}

	text, err := template.Render(p.TemplateBody, values)
	if err != nil {
		return nil, prompts.Wrap(prompts.KindTemplateError, p.ID, err, "render failed")
	}
	return &prompts.Rendered{ID: p.ID, Version: p.Version, Text: text}, nil
}

// Versions lists the readable versions of id in ascending order. The
// tombstone of a deleted prompt is not listed.
func (r *Registry) Versions(ctx context.Context, id string) (versions []int, err error) {
	ctx, span := r.span(ctx, "registry.versions", id)
	defer func() { r.endSpan(span, err) }()

	if !prompts.ValidID(id) {
		return nil, prompts.NotFound(id)
	}
	cur, err := r.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Deleted() && !r.policy.RetainHistory {
		return nil, prompts.NotFound(id)
	}
	versions, err = r.store.Versions(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Deleted() && len(versions) > 0 && versions[len(versions)-1] == cur.Version {
		versions = versions[:len(versions)-1]
	}
	if len(versions) == 0 {
		return nil, prompts.NotFound(id)
	}
	return versions, nil
}

// Search runs a full-text query over current prompts.
func (r *Registry) Search(ctx context.Context, query string, limit int) (hits []prompts.SearchHit, err error) {
	_, span := r.span(ctx, "registry.search", "")
	defer func() { r.endSpan(span, err) }()

	if r.index == nil {
		return nil, prompts.NewError(prompts.KindValidationFailed, "", "search is disabled")
	}
	return r.index.Search(query, limit)
}

// Invalidate drops the cached record of id.
func (r *Registry) Invalidate(id string) {
	r.cache.Delete(id)
}

// Warm loads every current prompt into the cache and rebuilds the search
// index. It returns the number of prompts loaded.
func (r *Registry) Warm(ctx context.Context) (int, error) {
	if r.index != nil {
		if err := r.index.Reset(); err != nil {
			return 0, err
		}
	}
	n := 0
	err := r.scanAll(ctx, func(p *prompts.Prompt) error {
		_ = r.cache.Add(p.ID, p, cache.DefaultExpiration)
		if r.index != nil {
			if err := r.index.Put(p); err != nil {
				return err
			}
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	r.logger.Info("registry warmed", zap.Int("prompts", n))
	return n, nil
}

func (r *Registry) scanAll(ctx context.Context, fn func(*prompts.Prompt) error) error {
	after := ""
	for {
		res, err := r.store.Scan(ctx, storage.ScanFilter{After: after, Limit: MaxListLimit})
		if err != nil {
			return err
		}
		for _, p := range res.Prompts {
			if err := fn(p); err != nil {
				return err
			}
		}
		if res.Next == "" {
			return nil
		}
		after = res.Next
	}
}

// Compact applies the retention policy to every stored prompt and retries
// prunes that failed after earlier writes. It returns the number of
// versions removed.
func (r *Registry) Compact(ctx context.Context) (removed int, err error) {
	ctx, span := r.span(ctx, "registry.compact", "")
	defer func() { r.endSpan(span, err) }()

	r.pendingMu.Lock()
	ids := make(map[string]struct{}, len(r.pending))
	for id := range r.pending {
		ids[id] = struct{}{}
	}
	r.pendingMu.Unlock()

	if r.policy.MaxVersions > 0 {
		err = r.scanAll(ctx, func(p *prompts.Prompt) error {
			ids[p.ID] = struct{}{}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	for _, id := range sorted {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		n, err := r.compactOne(ctx, id)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if removed > 0 {
		r.logger.Info("compaction removed versions", zap.Int("removed", removed), zap.Int("prompts", len(sorted)))
	}
	return removed, nil
}

func (r *Registry) compactOne(ctx context.Context, id string) (int, error) {
	unlock := r.lock(id)
	defer unlock()

	cur, err := r.store.Get(ctx, id, prompts.LatestVersion)
	if err != nil {
		if prompts.KindOf(err) == prompts.KindNotFound {
			r.clearPending(id)
			return 0, nil
		}
		return 0, err
	}
	keep := r.keepCount(cur)
	if keep <= 0 {
		r.clearPending(id)
		return 0, nil
	}
	n, err := r.prune(ctx, id, keep)
	if err != nil {
		return n, err
	}
	r.clearPending(id)
	return n, nil
}

func (r *Registry) clearPending(id string) {
	r.pendingMu.Lock()
	delete(r.pending, id)
	r.pendingMu.Unlock()
}

var _ prompts.Service = (*Registry)(nil)
