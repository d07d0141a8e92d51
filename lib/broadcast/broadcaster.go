// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// DefaultBacklog is the history size used when Options.Backlog is zero.
const DefaultBacklog = 200

// Options configures a Broadcaster.
type Options struct {
	// Name identifies the broadcaster in log output.
	Name string

	// Backlog is the number of recent events retained for
	// SubscribeWithHistory. Zero selects DefaultBacklog; a negative
	// value disables history.
	Backlog int

	// Logger receives subscriber panic reports. Nil discards them.
	Logger *slog.Logger
}

// Broadcaster fans events of type T out to subscribers. The zero value
// is not usable; construct with New.
type Broadcaster[T any] struct {
	name   string
	logger *slog.Logger

	// deliverMu serializes Publish calls end to end so subscribers see
	// a single order across publishers.
	deliverMu sync.Mutex

	// mu guards subscribers, nextID, and history. Held only for short
	// bookkeeping, never while calling subscribers.
	mu          sync.Mutex
	subscribers []*subscription[T]
	nextID      uint64
	history     *ring[T]
}

type subscription[T any] struct {
	id       uint64
	callback func(T)
	removed  atomic.Bool
}

// New creates a Broadcaster.
func New[T any](options Options) *Broadcaster[T] {
	backlog := options.Backlog
	switch {
	case backlog == 0:
		backlog = DefaultBacklog
	case backlog < 0:
		backlog = 0
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster[T]{
		name:    options.Name,
		logger:  logger,
		history: newRing[T](backlog),
	}
}

// Subscribe registers callback for events published from now on and
// returns a function that removes it. The returned function is
// idempotent and may be called from inside a callback.
func (b *Broadcaster[T]) Subscribe(callback func(T)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLocked(callback)
}

// SubscribeWithHistory is Subscribe plus the retained history at the
// moment of registration, oldest first. Every event is either in the
// returned slice or delivered to callback, never both.
func (b *Broadcaster[T]) SubscribeWithHistory(callback func(T)) (history []T, unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.snapshot(), b.addLocked(callback)
}

func (b *Broadcaster[T]) addLocked(callback func(T)) func() {
	b.nextID++
	entry := &subscription[T]{id: b.nextID, callback: callback}
	b.subscribers = append(b.subscribers, entry)

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.removed.Store(true)
			b.mu.Lock()
			defer b.mu.Unlock()
			b.subscribers = slices.DeleteFunc(b.subscribers, func(candidate *subscription[T]) bool {
				return candidate.id == entry.id
			})
		})
	}
}

// Publish records event in the history and delivers it to every
// subscriber in subscription order before returning. A subscriber
// removed during delivery does not receive the event if it has not
// been reached yet.
func (b *Broadcaster[T]) Publish(event T) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	b.history.push(event)
	targets := slices.Clone(b.subscribers)
	b.mu.Unlock()

	for _, target := range targets {
		if target.removed.Load() {
			continue
		}
		b.deliver(target, event)
	}
}

func (b *Broadcaster[T]) deliver(target *subscription[T], event T) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.logger.Error("subscriber panicked",
				"broadcaster", b.name,
				"subscriber", target.id,
				"panic", recovered,
			)
		}
	}()
	target.callback(event)
}

// History returns the retained events, oldest first.
func (b *Broadcaster[T]) History() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.snapshot()
}

// Len reports how many events the history currently retains.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.count
}

// Clear drops the retained history. Subscribers are unaffected.
func (b *Broadcaster[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.clear()
}

// Subscribers reports the number of registered subscribers.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
