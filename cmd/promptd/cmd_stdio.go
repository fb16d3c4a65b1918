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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/pkg/mcp/session"
	"github.com/teradata-labs/promptd/pkg/mcp/transport"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve one MCP session on stdin and stdout",
	Long: `Serve a single MCP session over newline-delimited JSON-RPC on stdin
and stdout. Logs go to stderr or --log-file; stdout carries only protocol
frames. The command exits when stdin is closed.`,
	Args: cobra.NoArgs,
	RunE: runStdio,
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()
	if err := a.warm(ctx); err != nil {
		return err
	}

	srv, err := a.protocolServer()
	if err != nil {
		return err
	}

	t := transport.NewStdioServerTransport(os.Stdin, os.Stdout)
	a.logger.Info("serving MCP over stdio")
	if err := srv.Serve(ctx, t, session.KindStdio); err != nil {
		a.logger.Error("stdio session failed", zap.Error(err))
		return err
	}
	return nil
}
