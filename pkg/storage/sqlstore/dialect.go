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
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"

	"github.com/teradata-labs/promptd/pkg/storage/migrate"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// Dialect captures the SQL differences between supported engines. Both
// use ? placeholders.
type Dialect struct {
	// Name is the storage_backend value.
	Name string
	// Driver is the database/sql driver name.
	Driver string

	migrationsDir string
	schema        migrate.Dialect
	// namePrefix compares p.name with a prefix bound twice.
	namePrefix        string
	isUniqueViolation func(error) bool
}

// SQLite is the embedded engine, registered by internal/sqlitedriver.
var SQLite = Dialect{
	Name:          "sqlite",
	Driver:        "sqlite3",
	migrationsDir: "migrations/sqlite",
	schema:        migrate.SQLite,
	namePrefix:    "substr(p.name, 1, length(?)) = ?",
	isUniqueViolation: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

// MySQL targets MySQL 8 with utf8mb4_bin columns.
var MySQL = Dialect{
	Name:          "mysql",
	Driver:        "mysql",
	migrationsDir: "migrations/mysql",
	schema:        migrate.MySQL,
	namePrefix:    "LEFT(p.name, CHAR_LENGTH(?)) = ?",
	isUniqueViolation: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
	},
}
