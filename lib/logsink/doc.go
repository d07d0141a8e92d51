// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package logsink persists worker log events to a plain-text file that
// operators can tail: one "[HH:MM:SS] <marker> message" line per event.
// When the file would grow past its size limit, its contents are
// compressed with zstd into "<name>.1.zst" and the file starts over.
package logsink
