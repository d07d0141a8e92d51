// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds sensitive values such as the IMAP password and
// age identities in memory that is kept off the Go heap where the
// platform allows it.
//
// On unix, [Buffer] memory comes from an anonymous mmap region that is
// excluded from core dumps and, when RLIMIT_MEMLOCK permits, locked
// against swap. Elsewhere the buffer is an ordinary heap slice that is
// still zeroed on Close. Either way, access after Close panics and
// Close is idempotent.
//
// [ReadFile] loads a secret from a file (or stdin for "-") with the
// surrounding whitespace trimmed.
package secret
