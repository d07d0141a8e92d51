// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package progress turns the raw output of the registration worker into
// typed events.
//
// The worker writes newline-delimited text. A line holding a single
// JSON object with any of the fields step, totalSteps, stepName, or
// detail (optionally prefixed with "PROGRESS:") is a progress report:
//
//	{"step":3,"totalSteps":8,"stepName":"verify","detail":"waiting for code"}
//	PROGRESS:{"step":4,"totalSteps":8,"stepName":"login"}
//
// Every other non-empty line is a log message whose level comes from
// the markers the worker prints: "✓", "✅", "SUCCESS", or "[OK]" for
// success; "✗", "❌", "ERROR", or "[X]" for errors; "⚠" or "WARN" for
// warnings; anything else is info. A line that looks structured but
// does not decode is kept as a log message.
//
// Parser is fed chunks as they arrive from a pipe and buffers the
// trailing partial line until its newline (or Flush) arrives. Lines
// wraps an io.Reader as a lazy sequence of events.
package progress
