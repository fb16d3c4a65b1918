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

// Package backend builds the storage adapter named by storage_backend. It
// sits above the adapter packages so none of them import each other.
package backend

import (
	"context"
	"io"

	"github.com/teradata-labs/promptd/pkg/storage"
)

// Migrator manages the schema of a SQL backend.
type Migrator interface {
	MigrateUp(ctx context.Context) error
	MigrateDown(ctx context.Context, steps int) error
	Status(ctx context.Context) ([]storage.MigrationStatus, error)
}

// MigrationHandle is a Migrator bound to an open connection. Close
// releases the connection.
type MigrationHandle interface {
	Migrator
	io.Closer
}

type migrationHandle struct {
	Migrator
	closer func() error
}

func (h migrationHandle) Close() error { return h.closer() }
