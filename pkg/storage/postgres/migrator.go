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

package postgres

import (
	"database/sql"
	"embed"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/teradata-labs/promptd/pkg/observability"
	"github.com/teradata-labs/promptd/pkg/storage/migrate"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator runs the prompt_versions migrations over a database/sql view of
// a pgx pool.
type Migrator struct {
	*migrate.Runner
	db *sql.DB
}

// NewMigrator wraps pool for migration. The pool stays owned by the
// caller; Close releases only the wrapper.
func NewMigrator(pool *pgxpool.Pool, tracer observability.Tracer) (*Migrator, error) {
	migrations, err := migrate.Load(migrationFS, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "failed to load migrations")
	}
	db := stdlib.OpenDBFromPool(pool)
	return &Migrator{Runner: migrate.New(db, migrate.Postgres, migrations, tracer), db: db}, nil
}

// Close releases the database/sql wrapper.
func (m *Migrator) Close() error { return m.db.Close() }
