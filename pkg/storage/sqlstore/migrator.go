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

package sqlstore

import (
	"database/sql"
	"embed"

	"github.com/cockroachdb/errors"

	"github.com/teradata-labs/promptd/pkg/observability"
	"github.com/teradata-labs/promptd/pkg/storage/migrate"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrationFS embed.FS

// NewMigrator loads the dialect's embedded migrations into a runner bound
// to db.
func NewMigrator(db *sql.DB, d Dialect, tracer observability.Tracer) (*migrate.Runner, error) {
	migrations, err := migrate.Load(migrationFS, d.migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load migrations")
	}
	return migrate.New(db, d.schema, migrations, tracer), nil
}
