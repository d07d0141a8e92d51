// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool wraps zombiezen.com/go/sqlite's connection pool
// with the pragmas the daemon relies on.
//
// Writable pools (the usage store) run in WAL mode with
// synchronous=NORMAL and a 5 second busy timeout. Read-only pools
// (Kiro's own state.vscdb, which the editor has open while we read it)
// skip every pragma that would change the file and only set the busy
// timeout.
//
// Connections are not safe for concurrent use. Take one, use it, Put it
// back, or let With do both:
//
//	err := pool.With(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "SELECT ...", &sqlitex.ExecOptions{...})
//	})
package sqlitepool
