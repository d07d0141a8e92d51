// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/broadcast"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/clock"
)

// DefaultStaleAfter is how old a snapshot may be before it is
// considered stale.
const DefaultStaleAfter = 5 * time.Minute

// ErrSuperseded is returned by RefreshAfterSwitch when a later run,
// invalidation, or cache clear replaced it before it resolved.
var ErrSuperseded = errors.New("usage refresh superseded")

// Config holds the Reconciler's collaborators.
type Config struct {
	Source Source

	// Store persists snapshots. Optional.
	Store Store

	Clock  clock.Clock
	Logger *slog.Logger

	// Changes receives the current snapshot (nil when unknown) after
	// every change. Nil creates a private broadcaster retaining only
	// the latest value.
	Changes *broadcast.Broadcaster[*Snapshot]

	// StaleAfter is the age past which a snapshot is stale: IsStale
	// reports it and LoadForAccount hides it. Zero selects
	// DefaultStaleAfter.
	StaleAfter time.Duration

	// Defaults are used for options a RefreshAfterSwitch call leaves
	// zero.
	Defaults Options
}

// Reconciler owns the per-account snapshot cache and the current
// usage reading.
//
// Subscribers are notified synchronously while the Reconciler holds
// its notification lock; they must not call methods that change state.
type Reconciler struct {
	source     Source
	store      Store
	clock      clock.Clock
	logger     *slog.Logger
	changes    *broadcast.Broadcaster[*Snapshot]
	staleAfter time.Duration
	defaults   Options

	// changeMu orders every mutation together with its notification so
	// observers see changes in the order they were applied.
	changeMu sync.Mutex

	// mu guards the fields below.
	mu         sync.Mutex
	cache      map[string]Snapshot
	current    *Snapshot
	generation uint64
	active     *run
	cancelRun  context.CancelFunc
}

// New returns a Reconciler with an empty cache. Call Restore to load
// persisted snapshots.
func New(config Config) *Reconciler {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Changes == nil {
		config.Changes = broadcast.New[*Snapshot](broadcast.Options{
			Name:    "usage",
			Backlog: 1,
			Logger:  config.Logger,
		})
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultStaleAfter
	}
	return &Reconciler{
		source:     config.Source,
		store:      config.Store,
		clock:      config.Clock,
		logger:     config.Logger,
		changes:    config.Changes,
		staleAfter: config.StaleAfter,
		defaults:   config.Defaults,
		cache:      make(map[string]Snapshot),
	}
}

// Restore loads persisted snapshots into the cache. Entries already in
// memory win.
func (r *Reconciler) Restore() error {
	if r.store == nil {
		return nil
	}
	persisted, err := r.store.All()
	if err != nil {
		return fmt.Errorf("restoring usage snapshots: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, snapshot := range persisted {
		if _, exists := r.cache[key]; !exists {
			r.cache[key] = snapshot
		}
	}
	r.logger.Debug("usage snapshots restored", "count", len(persisted))
	return nil
}

// RefreshAfterSwitch reconciles usage after the active account changed
// from oldKey (empty if unknown) to newKey. It returns the first
// reading the source produces, or nil when the retries run out.
//
// The returned error is ErrSuperseded when another run, invalidation,
// or cache clear replaced this one, and wraps ctx.Err() when the
// caller cancelled. Fetch errors are logged and retried.
func (r *Reconciler) RefreshAfterSwitch(ctx context.Context, oldKey, newKey string, options Options) (*Snapshot, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &run{oldKey: oldKey, newKey: newKey, options: r.withDefaults(options).resolved()}

	r.changeMu.Lock()
	if clearer, ok := r.source.(CacheClearer); ok {
		clearer.ClearCache()
	}
	r.mu.Lock()
	r.supersedeLocked()
	state.generation = r.generation
	r.active = state
	r.cancelRun = cancel
	if oldKey != "" {
		delete(r.cache, oldKey)
	}
	r.current = nil
	r.mu.Unlock()
	if oldKey != "" {
		r.forget(oldKey)
	}
	r.changes.Publish(nil)
	r.changeMu.Unlock()

	defer r.finish(state)

	r.logger.Info("refreshing usage after account switch",
		"old_account", oldKey,
		"account", newKey,
		"max_retries", state.options.MaxRetries,
	)

	for state.attempt = 0; state.attempt <= state.options.MaxRetries; state.attempt++ {
		select {
		case <-r.clock.After(state.delay()):
		case <-runCtx.Done():
			return nil, r.abandoned(ctx)
		}

		snapshot, err := r.source.FetchCurrentUsage(runCtx)
		if err != nil {
			if runCtx.Err() != nil {
				return nil, r.abandoned(ctx)
			}
			r.logger.Warn("usage fetch failed",
				"account", newKey,
				"attempt", state.attempt+1,
				"error", err,
			)
		}
		if snapshot != nil {
			resolved, ok := r.commit(state.generation, newKey, *snapshot)
			if !ok {
				return nil, ErrSuperseded
			}
			r.logger.Info("usage refreshed",
				"account", newKey,
				"attempts", state.attempt+1,
				"current_usage", resolved.CurrentUsage,
			)
			return &resolved, nil
		}

		if state.willRetry() && state.options.OnRetry != nil {
			state.options.OnRetry(state.attempt+1, state.options.MaxRetries)
		}
		r.logger.Debug("usage not available yet",
			"account", newKey,
			"attempt", state.attempt+1,
			"max_retries", state.options.MaxRetries,
		)
	}

	r.logger.Warn("usage still unavailable after retries",
		"account", newKey,
		"attempts", state.options.MaxRetries+1,
	)
	return nil, nil
}

func (r *Reconciler) withDefaults(options Options) Options {
	if options.MaxRetries == 0 {
		options.MaxRetries = r.defaults.MaxRetries
	}
	if options.RetryDelays == nil {
		options.RetryDelays = r.defaults.RetryDelays
	}
	return options
}

// abandoned picks the error for a run whose context ended.
func (r *Reconciler) abandoned(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("usage refresh cancelled: %w", ctx.Err())
	}
	return ErrSuperseded
}

// supersedeLocked cancels the live run, if any, and advances the
// generation so its result is discarded. Caller holds r.mu.
func (r *Reconciler) supersedeLocked() {
	if r.cancelRun != nil {
		r.cancelRun()
		r.cancelRun = nil
	}
	r.active = nil
	r.generation++
}

// finish clears the live-run bookkeeping if state is still the live
// run.
func (r *Reconciler) finish(state *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == state {
		r.active = nil
		r.cancelRun = nil
	}
}

// commit stores snapshot under key and makes it current, unless the
// run identified by generation has been superseded.
func (r *Reconciler) commit(generation uint64, key string, snapshot Snapshot) (Snapshot, bool) {
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = r.clock.Now()
	}

	r.changeMu.Lock()
	defer r.changeMu.Unlock()

	r.mu.Lock()
	if r.generation != generation {
		r.mu.Unlock()
		return Snapshot{}, false
	}
	r.cache[key] = snapshot
	current := snapshot
	r.current = &current
	r.mu.Unlock()

	r.persist(key, snapshot)
	notified := snapshot
	r.changes.Publish(&notified)
	return snapshot, true
}

// Refresh fetches the current usage once without retrying. A reading
// is stored under key (when non-empty) and made current; no reading
// clears the current value.
func (r *Reconciler) Refresh(ctx context.Context, key string) (*Snapshot, error) {
	r.mu.Lock()
	generation := r.generation
	r.mu.Unlock()

	snapshot, err := r.source.FetchCurrentUsage(ctx)
	if err != nil {
		r.logger.Warn("usage fetch failed", "account", key, "error", err)
	}
	if snapshot == nil {
		r.changeMu.Lock()
		r.mu.Lock()
		stale := r.generation != generation
		if !stale {
			r.current = nil
		}
		r.mu.Unlock()
		if !stale {
			r.changes.Publish(nil)
		}
		r.changeMu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("fetching usage: %w", err)
		}
		return nil, nil
	}

	if key == "" {
		return r.setCurrent(generation, *snapshot)
	}
	resolved, ok := r.commit(generation, key, *snapshot)
	if !ok {
		return nil, ErrSuperseded
	}
	return &resolved, nil
}

func (r *Reconciler) setCurrent(generation uint64, snapshot Snapshot) (*Snapshot, error) {
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = r.clock.Now()
	}
	r.changeMu.Lock()
	defer r.changeMu.Unlock()
	r.mu.Lock()
	if r.generation != generation {
		r.mu.Unlock()
		return nil, ErrSuperseded
	}
	current := snapshot
	r.current = &current
	r.mu.Unlock()
	notified := snapshot
	r.changes.Publish(&notified)
	return &snapshot, nil
}

// UpdateForAccount records a reading obtained elsewhere for key and
// makes it current.
func (r *Reconciler) UpdateForAccount(key string, snapshot Snapshot) {
	r.mu.Lock()
	generation := r.generation
	r.mu.Unlock()
	r.commit(generation, key, snapshot)
}

// InvalidateAccount removes the snapshot for key. A run refreshing key
// is superseded so its result cannot resurrect the entry. Idempotent.
func (r *Reconciler) InvalidateAccount(key string) {
	r.changeMu.Lock()
	defer r.changeMu.Unlock()

	r.mu.Lock()
	_, cached := r.cache[key]
	delete(r.cache, key)
	if r.active != nil && r.active.newKey == key {
		r.supersedeLocked()
	}
	r.mu.Unlock()

	r.forget(key)
	if cached {
		r.logger.Debug("usage snapshot invalidated", "account", key)
	}
}

// ClearCache drops every snapshot and the current reading, supersedes
// any live run, and notifies observers with nil.
func (r *Reconciler) ClearCache() {
	r.changeMu.Lock()
	defer r.changeMu.Unlock()

	r.mu.Lock()
	r.supersedeLocked()
	clear(r.cache)
	r.current = nil
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.DeleteAll(); err != nil {
			r.logger.Warn("clearing persisted usage failed", "error", err)
		}
	}
	r.changes.Publish(nil)
}

// LoadForAccount returns the cached snapshot for key, or Placeholder()
// when none is cached or the cached one is stale. It never contacts
// the source.
func (r *Reconciler) LoadForAccount(key string) Snapshot {
	r.mu.Lock()
	snapshot, ok := r.cache[key]
	r.mu.Unlock()
	if !ok || r.clock.Now().Sub(snapshot.CapturedAt) > r.staleAfter {
		return Placeholder()
	}
	return snapshot
}

// UsageFor returns LoadForAccount(key) in display form, marked
// loading while a reconciliation run targets key.
func (r *Reconciler) UsageFor(key string) AccountUsage {
	r.mu.Lock()
	loading := r.active != nil && r.active.newKey == key
	r.mu.Unlock()
	return ApplyTo(r.LoadForAccount(key), loading)
}

// IsStale reports whether key has no snapshot or one older than the
// configured staleness window.
func (r *Reconciler) IsStale(key string) bool {
	r.mu.Lock()
	snapshot, ok := r.cache[key]
	r.mu.Unlock()
	return !ok || r.clock.Now().Sub(snapshot.CapturedAt) > r.staleAfter
}

// Current returns a copy of the current reading, or nil.
func (r *Reconciler) Current() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	current := *r.current
	return &current
}

// Subscribe registers callback for changes to the current reading. The
// pointer passed to callback is nil when usage is unknown and must be
// treated as read-only.
func (r *Reconciler) Subscribe(callback func(*Snapshot)) (unsubscribe func()) {
	return r.changes.Subscribe(callback)
}

// Changes returns the broadcaster carrying current-reading changes.
func (r *Reconciler) Changes() *broadcast.Broadcaster[*Snapshot] {
	return r.changes
}

func (r *Reconciler) persist(key string, snapshot Snapshot) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(key, snapshot); err != nil {
		r.logger.Warn("persisting usage snapshot failed", "account", key, "error", err)
	}
}

func (r *Reconciler) forget(key string) {
	if r.store == nil {
		return
	}
	if err := r.store.Delete(key); err != nil {
		r.logger.Warn("deleting persisted usage snapshot failed", "account", key, "error", err)
	}
}
