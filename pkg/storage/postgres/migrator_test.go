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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/promptd/pkg/storage/migrate"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := migrate.Load(migrationFS, "migrations")
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].Version, migrations[i-1].Version,
			"migrations should be in ascending order")
	}
	for _, m := range migrations {
		assert.NotEmpty(t, m.UpSQL, "migration %d should have up SQL", m.Version)
		assert.NotEmpty(t, m.DownSQL, "migration %d should have down SQL", m.Version)
		assert.NotEmpty(t, m.Description, "migration %d should have a description", m.Version)
	}

	assert.Equal(t, "create_prompt_versions", migrations[0].Description)
	assert.Contains(t, migrations[0].UpSQL, "PRIMARY KEY (id, version)")
	assert.Equal(t, "prompt_versions_indexes", migrations[1].Description)
	assert.Contains(t, migrations[1].UpSQL, "USING GIN (tags)")
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `abc`, escapeLike("abc"))
	assert.Equal(t, `50\%\_off\\`, escapeLike(`50%_off\`))
}
