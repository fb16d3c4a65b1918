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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHomeDir(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	t.Run("default to ~/.promptd", func(t *testing.T) {
		t.Setenv("PROMPTD_HOME", "")
		assert.Equal(t, filepath.Join(homeDir, ".promptd"), HomeDir())
	})

	t.Run("PROMPTD_HOME wins", func(t *testing.T) {
		t.Setenv("PROMPTD_HOME", "/srv/promptd")
		assert.Equal(t, "/srv/promptd", HomeDir())
		assert.Equal(t, filepath.Join("/srv/promptd", "prompts"), SubDir("prompts"))
	})

	t.Run("tilde expanded", func(t *testing.T) {
		t.Setenv("PROMPTD_HOME", "~/p")
		assert.Equal(t, filepath.Join(homeDir, "p"), HomeDir())
	})

	t.Run("relative made absolute", func(t *testing.T) {
		t.Setenv("PROMPTD_HOME", "relative/path")
		dir := HomeDir()
		assert.True(t, filepath.IsAbs(dir))
		assert.Equal(t, "path", filepath.Base(dir))
	})
}
