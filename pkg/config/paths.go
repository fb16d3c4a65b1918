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
	"strings"
)

// HomeDir returns the promptd home directory, searched for promptd.yaml.
//
// Priority:
// 1. PROMPTD_HOME environment variable (if set and non-empty)
// 2. ~/.promptd (default)
//
// The returned path is always absolute. Tilde (~) in PROMPTD_HOME is expanded
// to the user's home directory.
//
// Note: This reads os.Getenv directly, not viper, because it runs before the
// config file is located.
func HomeDir() string {
	if dir := os.Getenv("PROMPTD_HOME"); dir != "" {
		return expandPath(dir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".promptd"
	}
	return filepath.Join(homeDir, ".promptd")
}

// SubDir returns a subdirectory within the promptd home directory.
// Example: SubDir("prompts") returns ~/.promptd/prompts
func SubDir(subdir string) string {
	return filepath.Join(HomeDir(), subdir)
}

// expandPath expands ~ and resolves to absolute path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path // Return as-is if we can't get home dir
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
