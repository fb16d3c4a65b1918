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

package backend

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/internal/pgxdriver"
	"github.com/teradata-labs/promptd/internal/sqlitedriver"
	"github.com/teradata-labs/promptd/pkg/config"
	"github.com/teradata-labs/promptd/pkg/observability"
	"github.com/teradata-labs/promptd/pkg/storage"
	"github.com/teradata-labs/promptd/pkg/storage/file"
	"github.com/teradata-labs/promptd/pkg/storage/memory"
	"github.com/teradata-labs/promptd/pkg/storage/postgres"
	"github.com/teradata-labs/promptd/pkg/storage/sqlstore"
)

// ErrNoSchema is returned by OpenMigrator for backends without a schema.
var ErrNoSchema = errors.New("storage backend has no schema to migrate")

// New creates the adapter selected by cfg.StorageBackend. The ctx is used
// for connection setup and migrations only.
func New(ctx context.Context, cfg *config.Config, tracer observability.Tracer, logger *zap.Logger) (storage.Adapter, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.StorageBackend {
	case config.BackendMemory, "":
		return memory.New(), nil
	case config.BackendFile:
		return file.New(cfg.Storage.File.Dir, file.WithLogger(logger.Named("file-store")))
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.Storage.Postgres, tracer)
	case config.BackendSQLite:
		return sqlstore.OpenSQLite(ctx, cfg.Storage.SQLite.Path, cfg.Storage.SQLite.EncryptionKey, tracer)
	case config.BackendMySQL:
		return sqlstore.OpenMySQL(ctx, cfg.Storage.MySQL.DSN, tracer)
	default:
		return nil, errors.Newf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// OpenMigrator connects to the configured SQL backend without applying
// migrations, for the migrate command.
func OpenMigrator(ctx context.Context, cfg *config.Config, tracer observability.Tracer) (MigrationHandle, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pool, err := pgxdriver.NewPool(ctx, cfg.Storage.Postgres, tracer)
		if err != nil {
			return nil, err
		}
		m, err := postgres.NewMigrator(pool, tracer)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return migrationHandle{Migrator: m, closer: func() error {
			err := m.Close()
			pool.Close()
			return err
		}}, nil

	case config.BackendSQLite:
		db, err := sqlitedriver.Open(cfg.Storage.SQLite.Path, cfg.Storage.SQLite.EncryptionKey)
		if err != nil {
			return nil, err
		}
		return sqlMigrator(db, sqlstore.SQLite, tracer)

	case config.BackendMySQL:
		db, err := sql.Open(sqlstore.MySQL.Driver, cfg.Storage.MySQL.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "open mysql")
		}
		return sqlMigrator(db, sqlstore.MySQL, tracer)

	default:
		return nil, errors.Wrapf(ErrNoSchema, "%s", cfg.StorageBackend)
	}
}

func sqlMigrator(db *sql.DB, d sqlstore.Dialect, tracer observability.Tracer) (MigrationHandle, error) {
	m, err := sqlstore.NewMigrator(db, d, tracer)
	if err != nil {
		db.Close()
		return nil, err
	}
	return migrationHandle{Migrator: m, closer: db.Close}, nil
}
