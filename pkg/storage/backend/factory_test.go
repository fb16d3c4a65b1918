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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/promptd/pkg/config"
	"github.com/teradata-labs/promptd/pkg/storage/file"
	"github.com/teradata-labs/promptd/pkg/storage/memory"
	"github.com/teradata-labs/promptd/pkg/storage/sqlstore"
)

func TestNew(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	t.Run("memory", func(t *testing.T) {
		a, err := New(ctx, &config.Config{StorageBackend: config.BackendMemory}, nil, logger)
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, a)
	})

	t.Run("file", func(t *testing.T) {
		cfg := &config.Config{StorageBackend: config.BackendFile}
		cfg.Storage.File.Dir = t.TempDir()
		a, err := New(ctx, cfg, nil, logger)
		require.NoError(t, err)
		assert.IsType(t, &file.Store{}, a)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := &config.Config{StorageBackend: config.BackendSQLite}
		cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "p.db")
		a, err := New(ctx, cfg, nil, logger)
		require.NoError(t, err)
		defer a.Close()
		assert.IsType(t, &sqlstore.Store{}, a)
		require.NoError(t, a.Ping(ctx))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := New(ctx, &config.Config{StorageBackend: "etcd"}, nil, logger)
		require.Error(t, err)
	})
}

func TestOpenMigrator(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{StorageBackend: config.BackendSQLite}
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "m.db")
	h, err := OpenMigrator(ctx, cfg, nil)
	require.NoError(t, err)
	defer h.Close()

	status, err := h.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, status)
	assert.False(t, status[0].Applied)

	require.NoError(t, h.MigrateUp(ctx))
	status, err = h.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status[0].Applied)

	_, err = OpenMigrator(ctx, &config.Config{StorageBackend: config.BackendMemory}, nil)
	assert.ErrorIs(t, err, ErrNoSchema)
}
