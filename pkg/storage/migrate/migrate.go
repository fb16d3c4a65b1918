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

// Package migrate applies the versioned schema migrations embedded in the
// SQL adapters.
//
// Migrations are files named NNNNNN_description.up.sql with an optional
// NNNNNN_description.down.sql partner. Applied versions are recorded in a
// schema_migrations table. A run holds an engine-wide lock where the
// engine offers one, so several instances starting against one database
// migrate it once.
package migrate

import (
	"context"
	"database/sql"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/teradata-labs/promptd/pkg/observability"
	"github.com/teradata-labs/promptd/pkg/storage"
)

// Migration is one schema step.
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Dialect is what the runner needs to know about an engine.
type Dialect struct {
	Name string
	// Placeholder returns the n-th bind parameter, counting from 1.
	Placeholder func(n int) string
	// Lock takes an engine-wide migration lock on conn and returns its
	// release. Nil means runs are only serialized within the process.
	Lock func(ctx context.Context, conn *sql.Conn) (unlock func(), err error)
}

func question(int) string { return "?" }

// postgresLockID keys the advisory lock shared by promptd instances.
const postgresLockID = 839021573

// mysqlLockName names the GET_LOCK lock; mysqlLockWait is its timeout in
// seconds.
const (
	mysqlLockName = "promptd_migrations"
	mysqlLockWait = 60
)

// Postgres serializes runs with a session-level advisory lock.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Lock: func(ctx context.Context, conn *sql.Conn) (func(), error) {
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", postgresLockID); err != nil {
			return nil, errors.Wrap(err, "failed to acquire migration lock")
		}
		return func() {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", postgresLockID)
		}, nil
	},
}

// MySQL serializes runs with a named GET_LOCK lock.
var MySQL = Dialect{
	Name:        "mysql",
	Placeholder: question,
	Lock: func(ctx context.Context, conn *sql.Conn) (func(), error) {
		var got sql.NullInt64
		if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", mysqlLockName, mysqlLockWait).Scan(&got); err != nil {
			return nil, errors.Wrap(err, "failed to acquire migration lock")
		}
		if !got.Valid || got.Int64 != 1 {
			return nil, errors.Newf("timed out after %ds waiting for migration lock", mysqlLockWait)
		}
		return func() {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT RELEASE_LOCK(?)", mysqlLockName)
		}, nil
	},
}

// SQLite relies on the database file lock; only one writer exists at a
// time anyway.
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: question,
}

// Load reads the migrations in dir of fsys, ordered by version. Files that
// do not follow the naming scheme are ignored.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read migrations directory %s", dir)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			continue
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read migration file %s", name)
		}

		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version}
			byVersion[version] = mig
		}
		if desc, ok := strings.CutSuffix(rest, ".up.sql"); ok {
			mig.Description = desc
			mig.UpSQL = string(content)
		} else if strings.HasSuffix(rest, ".down.sql") {
			mig.DownSQL = string(content)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.UpSQL != "" {
			out = append(out, *mig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Runner applies one dialect's migrations to a database.
type Runner struct {
	db         *sql.DB
	dialect    Dialect
	tracer     observability.Tracer
	migrations []Migration
	mu         sync.Mutex
}

// New creates a runner. It borrows db and never closes it.
func New(db *sql.DB, d Dialect, migrations []Migration, tracer observability.Tracer) *Runner {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &Runner{db: db, dialect: d, tracer: tracer, migrations: migrations}
}

// Migrations returns the known migrations in ascending order.
func (r *Runner) Migrations() []Migration { return r.migrations }

// execer is satisfied by *sql.DB and *sql.Conn.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// locked runs fn on one connection holding the migration lock.
func (r *Runner) locked(ctx context.Context, fn func(conn *sql.Conn) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get connection")
	}
	defer conn.Close()

	if r.dialect.Lock != nil {
		unlock, err := r.dialect.Lock(ctx, conn)
		if err != nil {
			return err
		}
		defer unlock()
	}
	if err := ensureTable(ctx, conn); err != nil {
		return err
	}
	return fn(conn)
}

// MigrateUp applies every pending migration.
func (r *Runner) MigrateUp(ctx context.Context) error {
	ctx, span := r.tracer.StartSpan(ctx, "migrator.migrate_up",
		observability.WithAttribute(observability.AttrBackend, r.dialect.Name))
	defer r.tracer.EndSpan(span)

	err := r.locked(ctx, func(conn *sql.Conn) error {
		current, err := currentVersion(ctx, conn)
		if err != nil {
			return err
		}
		span.SetAttribute("current_version", current)

		applied := 0
		for _, mig := range r.migrations {
			if mig.Version <= current {
				continue
			}
			if err := r.apply(ctx, conn, mig, true); err != nil {
				return errors.Wrapf(err, "migration %d failed", mig.Version)
			}
			applied++
		}
		span.SetAttribute("migrations_applied", applied)
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// MigrateDown rolls back up to steps applied migrations, newest first.
func (r *Runner) MigrateDown(ctx context.Context, steps int) error {
	ctx, span := r.tracer.StartSpan(ctx, "migrator.migrate_down",
		observability.WithAttribute(observability.AttrBackend, r.dialect.Name))
	defer r.tracer.EndSpan(span)
	span.SetAttribute("steps", steps)

	err := r.locked(ctx, func(conn *sql.Conn) error {
		current, err := currentVersion(ctx, conn)
		if err != nil {
			return err
		}
		rolled := 0
		for i := len(r.migrations) - 1; i >= 0 && rolled < steps; i-- {
			mig := r.migrations[i]
			if mig.Version > current {
				continue
			}
			if mig.DownSQL == "" {
				return errors.Newf("no down migration for version %d", mig.Version)
			}
			if err := r.apply(ctx, conn, mig, false); err != nil {
				return errors.Wrapf(err, "rollback of migration %d failed", mig.Version)
			}
			rolled++
		}
		span.SetAttribute("migrations_rolled_back", rolled)
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// CurrentVersion returns the highest applied version, creating the
// bookkeeping table on first use.
func (r *Runner) CurrentVersion(ctx context.Context) (int, error) {
	if err := ensureTable(ctx, r.db); err != nil {
		return 0, err
	}
	return currentVersion(ctx, r.db)
}

// Status lists every migration with its applied state.
func (r *Runner) Status(ctx context.Context) ([]storage.MigrationStatus, error) {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]storage.MigrationStatus, 0, len(r.migrations))
	for _, mig := range r.migrations {
		out = append(out, storage.MigrationStatus{
			Version:     mig.Version,
			Description: mig.Description,
			Applied:     mig.Version <= current,
		})
	}
	return out, nil
}

// Pending returns the migrations not applied yet.
func (r *Runner) Pending(ctx context.Context) ([]Migration, error) {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	var out []Migration
	for _, mig := range r.migrations {
		if mig.Version > current {
			out = append(out, mig)
		}
	}
	return out, nil
}

// applied_at is unix seconds, which every engine stores the same way.
func ensureTable(ctx context.Context, db execer) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at BIGINT NOT NULL,
			description VARCHAR(255)
		)`)
	return errors.Wrap(err, "failed to create schema_migrations")
}

func currentVersion(ctx context.Context, db execer) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations",
	).Scan(&version); err != nil {
		return 0, errors.Wrap(err, "failed to get current migration version")
	}
	return version, nil
}

// apply runs one migration body and records (or forgets) its version in
// one transaction. MySQL commits DDL implicitly, so a MySQL migration that
// fails part-way may need manual cleanup.
func (r *Runner) apply(ctx context.Context, conn *sql.Conn, mig Migration, up bool) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	body := mig.UpSQL
	if !up {
		body = mig.DownSQL
	}
	for _, stmt := range SplitStatements(body) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute %q", firstLine(stmt))
		}
	}

	p := r.dialect.Placeholder
	if up {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES ("+p(1)+", "+p(2)+", "+p(3)+")",
			mig.Version, time.Now().Unix(), mig.Description)
	} else {
		_, err = tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = "+p(1), mig.Version)
	}
	if err != nil {
		return errors.Wrap(err, "failed to record migration version")
	}
	return errors.Wrap(tx.Commit(), "failed to commit migration")
}

// SplitStatements breaks a migration file on semicolons that end a line
// and drops comment lines. Drivers differ on multi-statement Exec, so each
// statement is sent on its own.
func SplitStatements(body string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSuffix(strings.TrimSpace(cur.String()), ";"); stmt != "" {
				out = append(out, stmt)
			}
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
