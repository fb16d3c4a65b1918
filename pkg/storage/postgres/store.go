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

// Package postgres is the PostgreSQL storage adapter. Every prompt version
// is one row of prompt_versions keyed by (id, version); the primary key
// gives atomic create-if-absent.
package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teradata-labs/promptd/internal/pgxdriver"
	"github.com/teradata-labs/promptd/pkg/config"
	"github.com/teradata-labs/promptd/pkg/observability"
	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/storage"
)

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

const selectColumns = `id, version, name, description, arguments, template_body, tags, created_at, updated_at, deleted_at`

// Store implements storage.Adapter on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	tracer observability.Tracer
	owned  bool
}

// New wraps an existing pool. The caller keeps ownership of it.
func New(pool *pgxpool.Pool, tracer observability.Tracer) *Store {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &Store{pool: pool, tracer: tracer}
}

// Open connects using cfg and applies pending migrations when
// cfg.AutoMigrate is set. Close releases the pool.
func Open(ctx context.Context, cfg config.PostgresConfig, tracer observability.Tracer) (*Store, error) {
	pool, err := pgxdriver.NewPool(ctx, cfg, tracer)
	if err != nil {
		return nil, prompts.IOFailure("", err, "connect to postgres")
	}
	if cfg.AutoMigrate {
		m, err := NewMigrator(pool, tracer)
		if err != nil {
			pool.Close()
			return nil, err
		}
		err = m.MigrateUp(ctx)
		_ = m.Close()
		if err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "failed to migrate postgres schema")
		}
	}
	s := New(pool, tracer)
	s.owned = true
	return s, nil
}

// Pool exposes the underlying pool for migrations.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// execInTx runs fn in a transaction, rolling back on error.
func execInTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// Put inserts a new version row.
func (s *Store) Put(ctx context.Context, p *prompts.Prompt) error {
	ctx, span := s.tracer.StartSpan(ctx, "postgres.put",
		observability.WithAttribute(observability.AttrPromptID, p.ID),
		observability.WithAttribute(observability.AttrPromptVer, p.Version))
	defer s.tracer.EndSpan(span)

	args := p.Arguments
	if args == nil {
		args = []prompts.Argument{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return prompts.IOFailure(p.ID, err, "encode arguments")
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO prompt_versions
			(id, version, name, description, arguments, template_body, tags, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Version, p.Name, p.Description, string(argsJSON), p.TemplateBody, tags,
		p.CreatedAt, p.UpdatedAt, p.DeletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return prompts.Errorf(prompts.KindConflict, p.ID, "version %d already exists", p.Version)
		}
		span.RecordError(err)
		return prompts.IOFailure(p.ID, err, "insert prompt version")
	}
	return nil
}

// Get returns one version or the latest.
func (s *Store) Get(ctx context.Context, id string, version int) (*prompts.Prompt, error) {
	ctx, span := s.tracer.StartSpan(ctx, "postgres.get", observability.WithAttribute(observability.AttrPromptID, id))
	defer s.tracer.EndSpan(span)

	var row pgx.Row
	if version == prompts.LatestVersion {
		row = s.pool.QueryRow(ctx,
			`SELECT `+selectColumns+` FROM prompt_versions WHERE id = $1 ORDER BY version DESC LIMIT 1`, id)
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT `+selectColumns+` FROM prompt_versions WHERE id = $1 AND version = $2`, id, version)
	}
	p, err := scanPrompt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if version == prompts.LatestVersion {
				return nil, prompts.NotFound(id)
			}
			return nil, prompts.Errorf(prompts.KindNotFound, id, "version %d not found", version)
		}
		span.RecordError(err)
		return nil, prompts.IOFailure(id, err, "select prompt version")
	}
	return p, nil
}

// Scan pages through current, non-deleted records. It fetches one row
// past the limit to learn whether another page exists.
func (s *Store) Scan(ctx context.Context, filter storage.ScanFilter) (*storage.ScanResult, error) {
	ctx, span := s.tracer.StartSpan(ctx, "postgres.scan")
	defer s.tracer.EndSpan(span)

	tags := filter.Tags
	if tags == nil {
		tags = []string{}
	}
	limit := filter.PageSize()

	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM (
			SELECT DISTINCT ON (id) `+selectColumns+`
			FROM prompt_versions
			WHERE id > $1
			ORDER BY id, version DESC
		) cur
		WHERE deleted_at IS NULL
		  AND name LIKE $2 ESCAPE '\'
		  AND tags @> $3::text[]
		ORDER BY id
		LIMIT $4`,
		filter.After, escapeLike(filter.NamePrefix)+"%", tags, limit+1,
	)
	if err != nil {
		span.RecordError(err)
		return nil, prompts.IOFailure("", err, "scan prompts")
	}
	defer rows.Close()

	res := &storage.ScanResult{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, prompts.IOFailure("", err, "decode prompt row")
		}
		res.Prompts = append(res.Prompts, p)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, prompts.IOFailure("", err, "scan prompts")
	}
	if len(res.Prompts) > limit {
		res.Prompts = res.Prompts[:limit]
		res.Next = res.Prompts[limit-1].ID
	}
	return res, nil
}

// Delete removes every version of id.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM prompt_versions WHERE id = $1`, id)
	if err != nil {
		return prompts.IOFailure(id, err, "delete prompt")
	}
	if tag.RowsAffected() == 0 {
		return prompts.NotFound(id)
	}
	return nil
}

// Versions lists stored versions ascending.
func (s *Store) Versions(ctx context.Context, id string) ([]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT version FROM prompt_versions WHERE id = $1 ORDER BY version`, id)
	if err != nil {
		return nil, prompts.IOFailure(id, err, "list versions")
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, prompts.IOFailure(id, err, "list versions")
	}
	if len(versions) == 0 {
		return nil, prompts.NotFound(id)
	}
	return versions, nil
}

// DeleteVersion removes one row.
func (s *Store) DeleteVersion(ctx context.Context, id string, version int) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM prompt_versions WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return prompts.IOFailure(id, err, "delete version")
	}
	if tag.RowsAffected() == 0 {
		return prompts.Errorf(prompts.KindNotFound, id, "version %d not found", version)
	}
	return nil
}

// Prune deletes all but the newest keep versions of id in one transaction
// and returns how many rows went. keep must be positive.
func (s *Store) Prune(ctx context.Context, id string, keep int) (int, error) {
	if keep <= 0 {
		return 0, prompts.Errorf(prompts.KindValidationFailed, id, "keep must be positive")
	}
	var removed int
	err := execInTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		// Lock the id's rows so a concurrent Put cannot interleave.
		if _, err := tx.Exec(ctx, `SELECT 1 FROM prompt_versions WHERE id = $1 FOR UPDATE`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			DELETE FROM prompt_versions
			WHERE id = $1 AND version < (
				SELECT MIN(version) FROM (
					SELECT version FROM prompt_versions WHERE id = $1 ORDER BY version DESC LIMIT $2
				) newest
			)`, id, keep)
		if err != nil {
			return err
		}
		removed = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, prompts.IOFailure(id, err, "prune versions")
	}
	return removed, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return prompts.IOFailure("", err, "ping postgres")
	}
	return nil
}

// Close releases the pool if Open created it.
func (s *Store) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}

func scanPrompt(row pgx.Row) (*prompts.Prompt, error) {
	var (
		p         prompts.Prompt
		argsJSON  []byte
		deletedAt *time.Time
	)
	if err := row.Scan(&p.ID, &p.Version, &p.Name, &p.Description, &argsJSON, &p.TemplateBody,
		&p.Tags, &p.CreatedAt, &p.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &p.Arguments); err != nil {
			return nil, errors.Wrap(err, "decode arguments")
		}
	}
	if p.Arguments == nil {
		p.Arguments = []prompts.Argument{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if deletedAt != nil {
		t := deletedAt.UTC()
		p.DeletedAt = &t
	}
	return &p, nil
}

// escapeLike escapes LIKE metacharacters so a prefix matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var (
	_ storage.Adapter = (*Store)(nil)
	_ storage.Pruner  = (*Store)(nil)
)
