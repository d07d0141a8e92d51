// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the worker
// supervisor's stop grace period and the usage reconciler's retry
// backoff.
//
// Production wiring passes Real(). Tests pass Fake() and drive time
// explicitly: start the goroutine under test, call WaitForTimers to
// block until it has registered its wait, then Advance past the
// deadline.
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go supervisor.Stop(ctx)
//	fake.WaitForTimers(1)
//	fake.Advance(2 * time.Second)
package clock
