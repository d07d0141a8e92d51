// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the shared CBOR configuration for the daemon's
// socket protocol.
//
// JSON is used where people or other programs read the data: token
// files, Kiro's usage document, CLI --json output. CBOR is used on the
// Unix socket between kiro-switch and kiro-switchd. Every package goes
// through this one encoder configuration so the two sides always agree.
//
// Types that only cross the socket use `cbor` struct tags. Types that
// are also printed as JSON use `json` tags, which fxamacker/cbor reads
// as a fallback. A field never carries both.
package codec
