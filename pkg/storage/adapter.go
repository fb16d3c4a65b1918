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

// Package storage defines the persistence contract for prompt records.
//
// Adapters store immutable prompt versions keyed by (id, version). The
// current record of an id is its highest version. Implementations live in
// the memory, file, postgres and sqlstore subpackages; the memory adapter is
// the reference behavior the others are checked against by storagetest.
package storage

import (
	"context"
	"time"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

// DefaultScanLimit is used when ScanFilter.Limit is not positive.
const DefaultScanLimit = 50

// ScanFilter selects current records in a Scan.
type ScanFilter struct {
	// Tags lists tags a record must all carry.
	Tags []string
	// NamePrefix restricts results to names starting with it.
	NamePrefix string
	// After resumes the scan after this id (exclusive).
	After string
	// Limit caps the page size.
	Limit int
}

// ScanResult is one page of a Scan. Next is the last id of the page when
// more records remain, and empty otherwise.
type ScanResult struct {
	Prompts []*prompts.Prompt
	Next    string
}

// Adapter persists prompt versions. Every method is atomic with respect to
// a single record. Errors are classified with prompts.Kind.
type Adapter interface {
	// Put stores a new version. It fails with KindConflict if (id, version)
	// already exists.
	Put(ctx context.Context, p *prompts.Prompt) error

	// Get returns one version, or the highest one for prompts.LatestVersion.
	// Tombstones are returned as stored.
	Get(ctx context.Context, id string, version int) (*prompts.Prompt, error)

	// Scan returns current records that are not tombstones, ordered by id.
	Scan(ctx context.Context, filter ScanFilter) (*ScanResult, error)

	// Delete removes every version of id.
	Delete(ctx context.Context, id string) error

	// Versions lists stored versions of id in ascending order.
	Versions(ctx context.Context, id string) ([]int, error)

	// DeleteVersion removes a single version of id.
	DeleteVersion(ctx context.Context, id string, version int) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the adapter.
	Close() error
}

// Pruner is implemented by adapters that can drop old versions of an id in
// one atomic step. Prune keeps the newest keep versions and reports how
// many were removed.
type Pruner interface {
	Prune(ctx context.Context, id string, keep int) (int, error)
}

// MigrationStatus reports whether one schema migration is applied. It is
// shared by the SQL adapters.
type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
}

// ChangeOp is the kind of an externally observed change.
type ChangeOp string

const (
	ChangeWrite  ChangeOp = "write"
	ChangeRemove ChangeOp = "remove"
)

// Change reports a modification made outside this process.
type Change struct {
	ID  string
	Op  ChangeOp
	At  time.Time
	Err error
}

// Watcher is implemented by adapters that can observe out-of-band writes
// (for example a prompt file edited by hand).
type Watcher interface {
	Watch(ctx context.Context) (<-chan Change, error)
}

// PageSize returns the effective scan limit.
func (f ScanFilter) PageSize() int {
	if f.Limit <= 0 {
		return DefaultScanLimit
	}
	return f.Limit
}
