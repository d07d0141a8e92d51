// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker supervises the external account-registration process.
//
// A Supervisor owns at most one worker process at a time and tracks it
// through four states:
//
//	Idle ──Start──▶ Running ◀──Resume/Pause──▶ Paused
//	                   │                          │
//	                   └────────Stop──────────────┴──▶ Stopping ──▶ Idle
//
// A worker that exits on its own goes straight back to Idle. Starting
// while a worker exists stops and reaps the old one first.
//
// Stop asks the whole process tree to terminate (SIGTERM to the process
// group on Unix, taskkill /T /F on Windows), waits up to the grace
// period, and force-kills whatever is left. Stop is idempotent: only
// the first of several concurrent callers does the work and returns
// true.
//
// Pause and Resume are advisory. They flip the state the UI shows but
// the OS process keeps running.
//
// Lifecycle is reported as Events on a broadcast.Broadcaster. Every
// stdout and stderr chunk of a run is published before that run's close
// event, and close is published before stopped.
package worker
