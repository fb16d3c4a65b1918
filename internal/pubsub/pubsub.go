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

// Package pubsub provides an in-process, ordered event broker.
package pubsub

import (
	"sync"
)

// EventType represents the type of event.
type EventType int

const (
	// CreatedEvent indicates a new item was created.
	CreatedEvent EventType = iota
	// UpdatedEvent indicates an existing item was updated.
	UpdatedEvent
	// DeletedEvent indicates an item was deleted.
	DeletedEvent
)

// Event wraps an event with type information.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// NewCreatedEvent creates a new "created" event.
func NewCreatedEvent[T any](payload T) Event[T] {
	return Event[T]{Type: CreatedEvent, Payload: payload}
}

// NewUpdatedEvent creates a new "updated" event.
func NewUpdatedEvent[T any](payload T) Event[T] {
	return Event[T]{Type: UpdatedEvent, Payload: payload}
}

// NewDeletedEvent creates a new "deleted" event.
func NewDeletedEvent[T any](payload T) Event[T] {
	return Event[T]{Type: DeletedEvent, Payload: payload}
}

// Listener receives published events. It runs on the publisher's
// goroutine and must not block.
type Listener[T any] func(Event[T])

// Broker delivers every published event to all listeners, synchronously
// and in publish order. Publish calls are serialized, so listeners observe
// one global order.
type Broker[T any] struct {
	mu        sync.Mutex // serializes Publish
	lmu       sync.RWMutex
	listeners map[uint64]Listener[T]
	nextID    uint64
	closed    bool
}

// NewBroker creates an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{listeners: make(map[uint64]Listener[T])}
}

// Subscribe registers l and returns a function that removes it.
func (b *Broker[T]) Subscribe(l Listener[T]) (cancel func()) {
	b.lmu.Lock()
	defer b.lmu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	return func() {
		b.lmu.Lock()
		defer b.lmu.Unlock()
		delete(b.listeners, id)
	}
}

// Publish delivers ev to every listener.
func (b *Broker[T]) Publish(ev Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lmu.RLock()
	if b.closed {
		b.lmu.RUnlock()
		return
	}
	ls := make([]Listener[T], 0, len(b.listeners))
	for _, l := range b.listeners {
		ls = append(ls, l)
	}
	b.lmu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}

// Len returns the number of registered listeners.
func (b *Broker[T]) Len() int {
	b.lmu.RLock()
	defer b.lmu.RUnlock()
	return len(b.listeners)
}

// Close drops all listeners. Later publishes are ignored.
func (b *Broker[T]) Close() {
	b.lmu.Lock()
	defer b.lmu.Unlock()
	b.closed = true
	b.listeners = make(map[uint64]Listener[T])
}
