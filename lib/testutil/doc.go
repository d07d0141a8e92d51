// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by package tests.
//
// RequireReceive and RequireClosed are the only places tests use the
// wall clock: a bounded select that fails the test instead of hanging
// when an expected event never arrives. Everything else drives time
// through lib/clock.Fake.
//
// SocketDir returns a short directory under /tmp for Unix sockets,
// which are limited to 108-byte paths. WorkerScript writes a small
// shell script that tests run as an external worker.
package testutil
