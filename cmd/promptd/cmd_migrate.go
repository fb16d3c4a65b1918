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
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/internal/log"
	"github.com/teradata-labs/promptd/pkg/observability"
	"github.com/teradata-labs/promptd/pkg/storage/backend"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the schema of SQL storage backends",
	Long: `Apply, roll back or inspect schema migrations for the postgres, sqlite
and mysql backends. The memory and file backends have no schema.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd, func(m backend.Migrator) error {
			if err := m.MigrateUp(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back applied migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		if steps < 1 {
			return errors.New("--steps must be at least 1")
		}
		return withMigrator(cmd, func(m backend.Migrator) error {
			if err := m.MigrateDown(cmd.Context(), steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd, func(m backend.Migrator) error {
			status, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tSTATE\tDESCRIPTION")
			for _, s := range status {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, state, s.Description)
			}
			return w.Flush()
		})
	},
}

func init() {
	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

// withMigrator connects without running the automatic migrations that
// opening the adapter would apply.
func withMigrator(cmd *cobra.Command, fn func(backend.Migrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := log.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	m, err := backend.OpenMigrator(cmd.Context(), cfg, observability.NewNoOpTracer())
	if err != nil {
		if errors.Is(err, backend.ErrNoSchema) {
			return fmt.Errorf("storage backend %q has no schema to migrate", cfg.StorageBackend)
		}
		return err
	}
	defer func() { _ = m.Close() }()

	logger.Debug("running migration command", zap.String("command", cmd.Name()), zap.String("storage", cfg.StorageBackend))
	return fn(m)
}
