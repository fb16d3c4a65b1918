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

package sqlitedriver

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// BusyTimeoutMillis is how long a connection waits on a locked database.
const BusyTimeoutMillis = 5000

// ErrEncryptionUnsupported is returned when a key is given to a build
// without SQLCipher.
var ErrEncryptionUnsupported = errors.New("sqlite encryption requires a CGO build")

// Open opens path with a single connection so per-connection pragmas
// (key, busy_timeout, foreign_keys) hold for every statement. An empty
// key leaves the database unencrypted.
func Open(path, key string) (*sql.DB, error) {
	if key != "" && !EncryptionSupported {
		return nil, ErrEncryptionUnsupported
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite database %s", path)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", BusyTimeoutMillis),
		"PRAGMA foreign_keys = ON",
	}
	if key != "" {
		// The key must be set before any other statement touches the file.
		pragmas = append([]string{fmt.Sprintf("PRAGMA key = '%s'", strings.ReplaceAll(key, "'", "''"))}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "sqlite %s", strings.SplitN(p, " =", 2)[0])
		}
	}
	return db, nil
}
