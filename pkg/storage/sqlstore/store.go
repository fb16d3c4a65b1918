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

// Package sqlstore is the database/sql storage adapter for SQLite and
// MySQL. Each prompt version is a row of prompt_versions; prompt_tags
// indexes tags for the List filter.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/teradata-labs/promptd/internal/sqlitedriver"
	"github.com/teradata-labs/promptd/pkg/observability"
	"github.com/teradata-labs/promptd/pkg/prompts"
	"github.com/teradata-labs/promptd/pkg/storage"
)

const selectColumns = `p.id, p.version, p.name, p.description, p.arguments, p.template_body, p.tags, p.created_at, p.updated_at, p.deleted_at`

// Store implements storage.Adapter on a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	tracer  observability.Tracer
}

// New wraps db. The schema must already be migrated.
func New(db *sql.DB, d Dialect, tracer observability.Tracer) *Store {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &Store{db: db, dialect: d, tracer: tracer}
}

// OpenSQLite opens (creating if needed) the database at path and migrates
// it. key enables SQLCipher encryption on CGO builds.
func OpenSQLite(ctx context.Context, path, key string, tracer observability.Tracer) (*Store, error) {
	db, err := sqlitedriver.Open(path, key)
	if err != nil {
		return nil, prompts.IOFailure("", err, "open sqlite")
	}
	return migrated(ctx, db, SQLite, tracer)
}

// OpenMySQL connects with a go-sql-driver DSN and migrates the schema.
func OpenMySQL(ctx context.Context, dsn string, tracer observability.Tracer) (*Store, error) {
	db, err := sql.Open(MySQL.Driver, dsn)
	if err != nil {
		return nil, prompts.IOFailure("", err, "open mysql")
	}
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, prompts.IOFailure("", err, "ping mysql")
	}
	return migrated(ctx, db, MySQL, tracer)
}

func migrated(ctx context.Context, db *sql.DB, d Dialect, tracer observability.Tracer) (*Store, error) {
	m, err := NewMigrator(db, d, tracer)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := m.MigrateUp(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to migrate %s schema", d.Name)
	}
	return New(db, d, tracer), nil
}

// DB exposes the handle for migrations.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the engine in use.
func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

// Put inserts the version row and its tag rows atomically.
func (s *Store) Put(ctx context.Context, p *prompts.Prompt) error {
	ctx, span := s.tracer.StartSpan(ctx, s.dialect.Name+".put",
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
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return prompts.IOFailure(p.ID, err, "encode tags")
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO prompt_versions
				(id, version, name, description, arguments, template_body, tags, created_at, updated_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Version, p.Name, p.Description, string(argsJSON), p.TemplateBody, string(tagsJSON),
			toNanos(p.CreatedAt), toNanos(p.UpdatedAt), nullNanos(p.DeletedAt),
		); err != nil {
			return err
		}
		for _, tag := range prompts.NormalizeTags(tags) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO prompt_tags (id, version, tag) VALUES (?, ?, ?)`, p.ID, p.Version, tag,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return prompts.Errorf(prompts.KindConflict, p.ID, "version %d already exists", p.Version)
		}
		span.RecordError(err)
		return prompts.IOFailure(p.ID, err, "insert prompt version")
	}
	return nil
}

// Get returns one version or the latest.
func (s *Store) Get(ctx context.Context, id string, version int) (*prompts.Prompt, error) {
	ctx, span := s.tracer.StartSpan(ctx, s.dialect.Name+".get", observability.WithAttribute(observability.AttrPromptID, id))
	defer s.tracer.EndSpan(span)

	var row *sql.Row
	if version == prompts.LatestVersion {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+selectColumns+` FROM prompt_versions p WHERE p.id = ? ORDER BY p.version DESC LIMIT 1`, id)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+selectColumns+` FROM prompt_versions p WHERE p.id = ? AND p.version = ?`, id, version)
	}
	p, err := scanPrompt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

// Scan pages through current, non-deleted records in id order.
func (s *Store) Scan(ctx context.Context, filter storage.ScanFilter) (*storage.ScanResult, error) {
	ctx, span := s.tracer.StartSpan(ctx, s.dialect.Name+".scan")
	defer s.tracer.EndSpan(span)

	limit := filter.PageSize()
	query, args := s.scanQuery(filter, limit+1)
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *Store) scanQuery(filter storage.ScanFilter, limit int) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + selectColumns + ` FROM prompt_versions p
		WHERE p.id > ?
		  AND p.version = (SELECT MAX(v.version) FROM prompt_versions v WHERE v.id = p.id)
		  AND p.deleted_at IS NULL`)
	args := []any{filter.After}

	if filter.NamePrefix != "" {
		b.WriteString("\n\t\t  AND " + s.dialect.namePrefix)
		args = append(args, filter.NamePrefix, filter.NamePrefix)
	}
	if tags := prompts.NormalizeTags(filter.Tags); len(tags) > 0 {
		b.WriteString("\n\t\t  AND (SELECT COUNT(DISTINCT t.tag) FROM prompt_tags t WHERE t.id = p.id AND t.version = p.version AND t.tag IN (")
		for i, tag := range tags {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, tag)
		}
		b.WriteString(")) = ?")
		args = append(args, len(tags))
	}
	b.WriteString("\n\t\tORDER BY p.id\n\t\tLIMIT ?")
	args = append(args, limit)
	return b.String(), args
}

// Delete removes every version and tag row of id.
func (s *Store) Delete(ctx context.Context, id string) error {
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM prompt_tags WHERE id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM prompt_versions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return prompts.IOFailure(id, err, "delete prompt")
	}
	if affected == 0 {
		return prompts.NotFound(id)
	}
	return nil
}

// Versions lists stored versions ascending.
func (s *Store) Versions(ctx context.Context, id string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM prompt_versions WHERE id = ? ORDER BY version`, id)
	if err != nil {
		return nil, prompts.IOFailure(id, err, "list versions")
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, prompts.IOFailure(id, err, "list versions")
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, prompts.IOFailure(id, err, "list versions")
	}
	if len(versions) == 0 {
		return nil, prompts.NotFound(id)
	}
	return versions, nil
}

// DeleteVersion removes one version and its tag rows.
func (s *Store) DeleteVersion(ctx context.Context, id string, version int) error {
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM prompt_tags WHERE id = ? AND version = ?`, id, version); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM prompt_versions WHERE id = ? AND version = ?`, id, version)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return prompts.IOFailure(id, err, "delete version")
	}
	if affected == 0 {
		return prompts.Errorf(prompts.KindNotFound, id, "version %d not found", version)
	}
	return nil
}

// Prune keeps the newest keep versions of id.
func (s *Store) Prune(ctx context.Context, id string, keep int) (int, error) {
	if keep <= 0 {
		return 0, prompts.Errorf(prompts.KindValidationFailed, id, "keep must be positive")
	}
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var cutoff sql.NullInt64
		// The keep-th newest version; everything below it goes.
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM prompt_versions WHERE id = ? ORDER BY version DESC LIMIT 1 OFFSET ?`,
			id, keep-1,
		).Scan(&cutoff)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM prompt_tags WHERE id = ? AND version < ?`, id, cutoff.Int64); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM prompt_versions WHERE id = ? AND version < ?`, id, cutoff.Int64)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, prompts.IOFailure(id, err, "prune versions")
	}
	return int(removed), nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return prompts.IOFailure("", err, "ping "+s.dialect.Name)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrompt(row rowScanner) (*prompts.Prompt, error) {
	var (
		p                    prompts.Prompt
		argsJSON, tagsJSON   []byte
		createdAt, updatedAt int64
		deletedAt            sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Version, &p.Name, &p.Description, &argsJSON, &p.TemplateBody,
		&tagsJSON, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(argsJSON, &p.Arguments); err != nil {
		return nil, errors.Wrap(err, "decode arguments")
	}
	if err := json.Unmarshal(tagsJSON, &p.Tags); err != nil {
		return nil, errors.Wrap(err, "decode tags")
	}
	if p.Arguments == nil {
		p.Arguments = []prompts.Argument{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.CreatedAt = fromNanos(createdAt)
	p.UpdatedAt = fromNanos(updatedAt)
	if deletedAt.Valid {
		t := fromNanos(deletedAt.Int64)
		p.DeletedAt = &t
	}
	return &p, nil
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

var (
	_ storage.Adapter = (*Store)(nil)
	_ storage.Pruner  = (*Store)(nil)
)
