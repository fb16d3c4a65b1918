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

package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/promptd/internal/version"
	"github.com/teradata-labs/promptd/pkg/config"
)

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "promptd",
	Short: "promptd - versioned prompt registry served over MCP",
	Long: heredoc.Doc(`
		promptd stores versioned prompt templates and serves them to MCP
		clients over stdio, streamable HTTP and WebSocket, next to a REST API.

		Connected sessions may subscribe to prompt ids and receive a change
		notification whenever a prompt they follow is created, updated or
		deleted.
	`),
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $PROMPTD_HOME/promptd.yaml)")

	// Storage flags
	flags.String("storage", config.BackendMemory, "storage backend (memory, file, postgres, sqlite, mysql)")
	flags.String("prompt-dir", "./prompts", "directory for the file backend")
	flags.String("db-url", "", "Postgres connection string")
	flags.String("db", "./promptd.db", "SQLite database path")
	flags.Bool("retain-history", false, "keep earlier versions readable after delete")
	flags.Int("max-versions", 0, "versions kept per prompt (0 = unbounded)")

	// Logging flags
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "auto", "log format (json, text, auto)")
	flags.String("log-file", "", "log file (default: stderr)")

	// Bind flags to viper
	_ = viper.BindPFlag("storage_backend", flags.Lookup("storage"))
	_ = viper.BindPFlag("storage.file.dir", flags.Lookup("prompt-dir"))
	_ = viper.BindPFlag("storage.postgres.dsn", flags.Lookup("db-url"))
	_ = viper.BindPFlag("storage.sqlite.path", flags.Lookup("db"))
	_ = viper.BindPFlag("retain_history", flags.Lookup("retain-history"))
	_ = viper.BindPFlag("max_versions_per_prompt", flags.Lookup("max-versions"))

	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("logging.file", flags.Lookup("log-file"))
}

// loadConfig reads the configuration for a command. Flags bound above
// take precedence over environment and file values.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}
