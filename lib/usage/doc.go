// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package usage keeps per-account quota snapshots and reconciles them
// after the active account changes.
//
// Kiro updates its usage ledger asynchronously, so right after a switch
// the data source still reports the previous account or nothing at all.
// Reconciler.RefreshAfterSwitch invalidates the old account, clears the
// current reading, and polls the Source on a short backoff schedule
// (500ms, 1s, 2s by default, the last delay repeating) until a reading
// appears or the retries run out. Running out is not an error: the
// account's usage is simply unknown until the next refresh.
//
// Only one reconciliation run is live at a time. Starting another, or
// invalidating the account a run targets, cancels the earlier run and
// guarantees it never writes its result, so the last successful
// refresh always wins.
//
// Readers never receive references into the cache. LoadForAccount
// returns a copy, or Placeholder() when nothing fresh is known.
package usage
