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
	"sort"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/promptd/pkg/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Load prompt files into the registry",
	Long: `Load prompt files (.yaml, .yml, .md) with YAML frontmatter from a
directory tree. Missing prompts are created. Existing prompts are left
alone unless --update is set, in which case changed files produce a new
version.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().Bool("update", false, "update prompts that already exist")
	importCmd.Flags().Bool("dry-run", false, "parse files without writing")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	update, _ := cmd.Flags().GetBool("update")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	report, err := importer.Dir(ctx, a.registry, args[0], importer.Options{
		Update: update,
		DryRun: dryRun,
		Logger: a.logger.Named("import"),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "created: %d, updated: %d, skipped: %d, failed: %d\n",
		len(report.Created), len(report.Updated), len(report.Skipped), len(report.Failed))
	if report.OK() {
		return nil
	}
	paths := make([]string, 0, len(report.Failed))
	for p := range report.Failed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(out, "  %s: %v\n", p, report.Failed[p])
	}
	return fmt.Errorf("%d file(s) failed to import", len(report.Failed))
}
