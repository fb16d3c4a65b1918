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

package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Compactor runs Registry.Compact on a cron schedule.
type Compactor struct {
	registry *Registry
	schedule cron.Schedule
	spec     string
	logger   *zap.Logger
	timeout  time.Duration
}

// NewCompactor parses a standard 5-field cron spec.
func NewCompactor(r *Registry, spec string, logger *zap.Logger) (*Compactor, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid compaction schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compactor{
		registry: r,
		schedule: schedule,
		spec:     spec,
		logger:   logger,
		timeout:  10 * time.Minute,
	}, nil
}

// Next returns the first run time after t.
func (c *Compactor) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

// Run blocks until ctx is done. Overlapping runs are skipped.
func (c *Compactor) Run(ctx context.Context) error {
	engine := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	engine.Schedule(c.schedule, cron.FuncJob(func() { c.runOnce(ctx) }))
	engine.Start()
	c.logger.Info("compaction scheduled", zap.String("schedule", c.spec))

	<-ctx.Done()
	<-engine.Stop().Done()
	return nil
}

func (c *Compactor) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	removed, err := c.registry.Compact(ctx)
	if err != nil {
		c.logger.Error("compaction failed", zap.Error(err), zap.Int("removed", removed))
		return
	}
	c.logger.Debug("compaction finished", zap.Int("removed", removed), zap.Duration("took", time.Since(start)))
}
