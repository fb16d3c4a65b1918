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
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/promptd/pkg/api"
	"github.com/teradata-labs/promptd/pkg/config"
	"github.com/teradata-labs/promptd/pkg/mcp/transport"
	"github.com/teradata-labs/promptd/pkg/registry"
	"github.com/teradata-labs/promptd/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start promptd on one HTTP listener.

The server exposes:
- the REST API under /prompts, /search and /health
- the MCP streamable HTTP endpoint at /mcp
- the MCP WebSocket endpoint at /ws
- Prometheus metrics at /metrics

Press Ctrl+C to gracefully shutdown.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP listen port")
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	serveCmd.Flags().StringSlice("allowed-origins", nil, "origins allowed for CORS and WebSocket upgrades")
	serveCmd.Flags().String("compaction-schedule", "", "cron schedule for version retention (empty = disabled)")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.allowed_origins", serveCmd.Flags().Lookup("allowed-origins"))
	_ = viper.BindPFlag("registry.compaction_schedule", serveCmd.Flags().Lookup("compaction-schedule"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
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
	cfg := a.cfg
	logger := a.logger

	mcpHandler, err := transport.NewStreamableHTTPServer(transport.StreamableHTTPServerConfig{
		Dispatcher: srv,
		Logger:     logger.Named("mcp-http"),
	})
	if err != nil {
		return err
	}
	defer mcpHandler.Close()
	wsHandler, err := transport.NewWebSocketHandler(transport.WebSocketHandlerConfig{
		Dispatcher:     srv,
		Logger:         logger.Named("mcp-ws"),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Config{
		Service:   a.registry,
		Storage:   a.store,
		Metrics:   a.metrics.Handler(),
		MCP:       mcpHandler,
		WebSocket: wsHandler,
		CORS:      api.DefaultCORSConfig(cfg.Server.AllowedOrigins),
		Logger:    logger.Named("http"),
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	transport.WarnIfNotLocalhost(logger, addr)
	httpServer := api.NewHTTPServer(addr, router, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", zap.Duration("timeout", cfg.ShutdownTimeout()))
		// Hijacked WebSocket connections are not drained by Shutdown.
		srv.Sessions().CloseAll("server shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		return httpServer.Stop(shutdownCtx)
	})

	g.Go(func() error { return srv.Sessions().Run(gctx) })

	if cfg.Registry.CompactionSchedule != "" {
		compactor, err := registry.NewCompactor(a.registry, cfg.Registry.CompactionSchedule, logger.Named("compactor"))
		if err != nil {
			return err
		}
		g.Go(func() error { return compactor.Run(gctx) })
	}

	if w, ok := a.store.(storage.Watcher); ok && cfg.StorageBackend == config.BackendFile && cfg.Storage.File.Watch {
		changes, err := w.Watch(gctx)
		if err != nil {
			return err
		}
		logger.Info("watching prompt directory", zap.String("dir", cfg.Storage.File.Dir))
		g.Go(func() error { return a.registry.Follow(gctx, changes) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
