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

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

// DefaultRedisChannel is the pub/sub channel used when none is configured.
const DefaultRedisChannel = "promptd:changes"

// RedisConfig configures a RedisBus.
type RedisConfig struct {
	URL     string // redis://[:password@]host:port/db
	Channel string
	Logger  *zap.Logger
}

// RedisBus shares change events between server instances backed by the
// same database. Local listeners are served synchronously, exactly like
// LocalBus; events from other instances arrive through a Redis channel.
type RedisBus struct {
	client  *redis.Client
	ps      *redis.PubSub
	channel string
	origin  string
	local   *LocalBus
	logger  *zap.Logger

	done      chan struct{}
	closeOnce sync.Once

	remoteMu sync.RWMutex
	remote   func(context.Context, prompts.ChangeEvent)
}

type wireEvent struct {
	Origin string `json:"origin"`
	prompts.ChangeEvent
}

// NewRedisBus connects to Redis and subscribes to the change channel.
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultRedisChannel
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	ps := client.Subscribe(ctx, cfg.Channel)
	// Wait for the subscription to be confirmed so no event published
	// after construction is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.Channel, err)
	}

	b := &RedisBus{
		client:  client,
		ps:      ps,
		channel: cfg.Channel,
		origin:  uuid.NewString(),
		local:   NewLocalBus(),
		logger:  cfg.Logger,
		done:    make(chan struct{}),
	}
	go b.run()
	return b, nil
}

// Publish delivers ev locally, then shares it with other instances.
func (b *RedisBus) Publish(ctx context.Context, ev prompts.ChangeEvent) error {
	_ = b.local.Publish(ctx, ev)

	payload, err := json.Marshal(wireEvent{Origin: b.origin, ChangeEvent: ev})
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// OnRemote sets fn to run for every event from another instance before
// local listeners see it. The registry uses it to reload the changed
// record, so a notified write is readable here too.
func (b *RedisBus) OnRemote(fn func(context.Context, prompts.ChangeEvent)) {
	b.remoteMu.Lock()
	b.remote = fn
	b.remoteMu.Unlock()
}

// Listen registers fn for local and remote events.
func (b *RedisBus) Listen(fn func(prompts.ChangeEvent)) func() {
	return b.local.Listen(fn)
}

// Close unsubscribes and closes the Redis client.
func (b *RedisBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.ps.Close()
		<-b.done
		if cerr := b.client.Close(); err == nil {
			err = cerr
		}
		_ = b.local.Close()
	})
	return err
}

func (b *RedisBus) run() {
	defer close(b.done)
	for msg := range b.ps.Channel() {
		var ev wireEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.logger.Warn("dropping malformed change event", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		if ev.Origin == b.origin {
			continue
		}
		b.logger.Debug("remote change event",
			zap.String("id", ev.ID),
			zap.String("event", string(ev.Kind)),
			zap.Int("version", ev.Version),
		)
		b.remoteMu.RLock()
		hook := b.remote
		b.remoteMu.RUnlock()
		if hook != nil {
			hook(context.Background(), ev.ChangeEvent)
		}
		_ = b.local.Publish(context.Background(), ev.ChangeEvent)
	}
}
