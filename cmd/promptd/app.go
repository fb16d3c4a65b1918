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
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/internal/log"
	"github.com/teradata-labs/promptd/internal/version"
	"github.com/teradata-labs/promptd/pkg/config"
	"github.com/teradata-labs/promptd/pkg/events"
	"github.com/teradata-labs/promptd/pkg/mcp/server"
	"github.com/teradata-labs/promptd/pkg/mcp/session"
	"github.com/teradata-labs/promptd/pkg/observability"
	"github.com/teradata-labs/promptd/pkg/registry"
	"github.com/teradata-labs/promptd/pkg/search"
	"github.com/teradata-labs/promptd/pkg/storage"
	"github.com/teradata-labs/promptd/pkg/storage/backend"
)

// app holds the components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	tracer   observability.Tracer
	store    storage.Adapter
	bus      events.Bus
	index    *search.Index
	registry *registry.Registry

	closers []func() error
}

// newApp loads configuration, sets up logging and opens storage.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := log.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return nil, err
	}
	log.SetLogger(logger)

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, closeLog)

	a.metrics = observability.NewMetrics()
	a.tracer = observability.NewPrometheusTracer(a.metrics)

	a.store, err = backend.New(ctx, cfg, a.tracer, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.StorageBackend, err)
	}
	a.closers = append(a.closers, a.store.Close)

	switch cfg.Events.Backend {
	case "redis":
		bus, err := events.NewRedisBus(ctx, events.RedisConfig{
			URL:     cfg.Events.RedisURL,
			Channel: cfg.Events.Channel,
			Logger:  logger.Named("events"),
		})
		if err != nil {
			a.close()
			return nil, err
		}
		a.bus = bus
	default:
		a.bus = events.NewLocalBus()
	}
	a.closers = append(a.closers, a.bus.Close)

	opts := []registry.Option{
		registry.WithBus(a.bus),
		registry.WithTracer(a.tracer),
		registry.WithLogger(logger.Named("registry")),
	}
	if cfg.Registry.SearchEnabled {
		a.index, err = search.New()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
		a.closers = append(a.closers, a.index.Close)
		opts = append(opts, registry.WithSearchIndex(a.index))
	}
	a.registry = registry.New(a.store, registry.PolicyFromConfig(cfg), opts...)

	logger.Info("promptd starting",
		zap.String("version", version.Get()),
		zap.String("storage", cfg.StorageBackend),
		zap.String("events", cfg.Events.Backend),
		zap.Bool("retain_history", cfg.RetainHistory),
		zap.Int("max_versions_per_prompt", cfg.MaxVersionsPerPrompt))
	return a, nil
}

// warm loads current prompts into the cache and the search index.
func (a *app) warm(ctx context.Context) error {
	n, err := a.registry.Warm(ctx)
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}
	a.logger.Info("prompts loaded", zap.Int("count", n))
	return nil
}

// protocolServer builds the session layer and subscribes it to change
// events.
func (a *app) protocolServer() (*server.Server, error) {
	sessions := session.NewManager(session.ManagerConfig{
		IdleTimeout: a.cfg.IdleTimeout(),
		QueueSize:   a.cfg.Session.QueueSize,
		Tracer:      a.tracer,
		Logger:      a.logger.Named("sessions"),
	})
	srv, err := server.New(server.Config{
		Service:       a.registry,
		Sessions:      sessions,
		Tracer:        a.tracer,
		Logger:        a.logger.Named("mcp"),
		RetryAttempts: a.cfg.Session.RenderRetryAttempts,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		sessions.CloseAll("server shutdown")
		return nil
	})
	stop := srv.Listen(a.bus)
	a.closers = append(a.closers, func() error { stop(); return nil })
	return srv, nil
}

// close releases everything in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
