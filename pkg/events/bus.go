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

// Package events carries registry change events to their consumers.
package events

import (
	"context"

	"github.com/teradata-labs/promptd/internal/pubsub"
	"github.com/teradata-labs/promptd/pkg/prompts"
)

// Bus fans change events out to listeners.
//
// Publish must deliver to in-process listeners before it returns, so that
// a caller holding a per-id lock fixes the delivery order for that id.
type Bus interface {
	Publish(ctx context.Context, ev prompts.ChangeEvent) error
	Listen(fn func(prompts.ChangeEvent)) (cancel func())
	Close() error
}

// RemoteSource is implemented by buses that carry events from other
// instances. The hook runs before local listeners are notified.
type RemoteSource interface {
	OnRemote(fn func(context.Context, prompts.ChangeEvent))
}

// LocalBus is an in-process Bus.
type LocalBus struct {
	broker *pubsub.Broker[prompts.ChangeEvent]
}

// NewLocalBus creates an in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{broker: pubsub.NewBroker[prompts.ChangeEvent]()}
}

// Publish delivers ev to every listener before returning.
func (b *LocalBus) Publish(_ context.Context, ev prompts.ChangeEvent) error {
	b.broker.Publish(toPubsub(ev))
	return nil
}

// Listen registers fn.
func (b *LocalBus) Listen(fn func(prompts.ChangeEvent)) func() {
	return b.broker.Subscribe(func(ev pubsub.Event[prompts.ChangeEvent]) {
		fn(ev.Payload)
	})
}

// Close drops all listeners.
func (b *LocalBus) Close() error {
	b.broker.Close()
	return nil
}

func toPubsub(ev prompts.ChangeEvent) pubsub.Event[prompts.ChangeEvent] {
	switch ev.Kind {
	case prompts.EventCreated:
		return pubsub.NewCreatedEvent(ev)
	case prompts.EventDeleted:
		return pubsub.NewDeletedEvent(ev)
	default:
		return pubsub.NewUpdatedEvent(ev)
	}
}

var (
	_ Bus = (*LocalBus)(nil)
	_ Bus = (*RedisBus)(nil)

	_ RemoteSource = (*RedisBus)(nil)
)
