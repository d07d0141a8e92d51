// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package usagestore persists usage snapshots and per-account switch
// statistics in a local SQLite database, so the daemon can show the
// last known usage of every account right after a restart.
package usagestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/sqlitepool"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/usage"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_snapshots (
	account         TEXT PRIMARY KEY,
	current_usage   INTEGER NOT NULL,
	usage_limit     INTEGER NOT NULL,
	percentage_used REAL NOT NULL,
	days_remaining  INTEGER NOT NULL,
	suspended       INTEGER NOT NULL DEFAULT 0,
	captured_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS switch_stats (
	account   TEXT PRIMARY KEY,
	count     INTEGER NOT NULL DEFAULT 0,
	last_used INTEGER NOT NULL
);
`

// SwitchStats counts how often an account was made active.
type SwitchStats struct {
	Count    int       `json:"count"`
	LastUsed time.Time `json:"last_used"`
}

// Store implements usage.Store on SQLite.
type Store struct {
	pool *sqlitepool.Pool
}

var _ usage.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening usage store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) with(fn func(conn *sqlite.Conn) error) error {
	return s.pool.With(context.Background(), fn)
}

// Save replaces the snapshot for key.
func (s *Store) Save(key string, snapshot usage.Snapshot) error {
	return s.with(func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO usage_snapshots
				(account, current_usage, usage_limit, percentage_used, days_remaining, suspended, captured_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(account) DO UPDATE SET
				current_usage = excluded.current_usage,
				usage_limit = excluded.usage_limit,
				percentage_used = excluded.percentage_used,
				days_remaining = excluded.days_remaining,
				suspended = excluded.suspended,
				captured_at = excluded.captured_at`,
			&sqlitex.ExecOptions{Args: []any{
				key,
				snapshot.CurrentUsage,
				snapshot.UsageLimit,
				snapshot.PercentageUsed,
				snapshot.DaysRemaining,
				snapshot.Suspended,
				snapshot.CapturedAt.UnixMilli(),
			}})
		if err != nil {
			return fmt.Errorf("saving usage for %s: %w", key, err)
		}
		return nil
	})
}

// Load returns the snapshot for key.
func (s *Store) Load(key string) (usage.Snapshot, bool, error) {
	var snapshot usage.Snapshot
	found := false
	err := s.with(func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT current_usage, usage_limit, percentage_used, days_remaining, suspended, captured_at
			FROM usage_snapshots WHERE account = ?`,
			&sqlitex.ExecOptions{
				Args: []any{key},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					snapshot = scanSnapshot(stmt, 0)
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return usage.Snapshot{}, false, fmt.Errorf("loading usage for %s: %w", key, err)
	}
	return snapshot, found, nil
}

// All returns every stored snapshot keyed by account.
func (s *Store) All() (map[string]usage.Snapshot, error) {
	snapshots := make(map[string]usage.Snapshot)
	err := s.with(func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT account, current_usage, usage_limit, percentage_used, days_remaining, suspended, captured_at
			FROM usage_snapshots`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					snapshots[stmt.ColumnText(0)] = scanSnapshot(stmt, 1)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("listing usage snapshots: %w", err)
	}
	return snapshots, nil
}

// scanSnapshot reads snapshot columns starting at column first.
func scanSnapshot(stmt *sqlite.Stmt, first int) usage.Snapshot {
	return usage.Snapshot{
		CurrentUsage:   stmt.ColumnInt(first),
		UsageLimit:     stmt.ColumnInt(first + 1),
		PercentageUsed: stmt.ColumnFloat(first + 2),
		DaysRemaining:  stmt.ColumnInt(first + 3),
		Suspended:      stmt.ColumnBool(first + 4),
		CapturedAt:     time.UnixMilli(stmt.ColumnInt64(first + 5)).UTC(),
	}
}

// Delete removes the snapshot for key. Deleting a missing key is not an
// error.
func (s *Store) Delete(key string) error {
	return s.with(func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM usage_snapshots WHERE account = ?`,
			&sqlitex.ExecOptions{Args: []any{key}}); err != nil {
			return fmt.Errorf("deleting usage for %s: %w", key, err)
		}
		return nil
	})
}

// DeleteAll removes every snapshot. Switch statistics are kept.
func (s *Store) DeleteAll() error {
	return s.with(func(conn *sqlite.Conn) error {
		if err := sqlitex.ExecuteTransient(conn, `DELETE FROM usage_snapshots`, nil); err != nil {
			return fmt.Errorf("clearing usage snapshots: %w", err)
		}
		return nil
	})
}

// RecordSwitch increments the switch count for key and stamps it with
// at.
func (s *Store) RecordSwitch(key string, at time.Time) error {
	return s.with(func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO switch_stats (account, count, last_used) VALUES (?, 1, ?)
			ON CONFLICT(account) DO UPDATE SET
				count = count + 1,
				last_used = excluded.last_used`,
			&sqlitex.ExecOptions{Args: []any{key, at.UnixMilli()}})
		if err != nil {
			return fmt.Errorf("recording switch to %s: %w", key, err)
		}
		return nil
	})
}

// Stats returns switch statistics keyed by account.
func (s *Store) Stats() (map[string]SwitchStats, error) {
	stats := make(map[string]SwitchStats)
	err := s.with(func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT account, count, last_used FROM switch_stats`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats[stmt.ColumnText(0)] = SwitchStats{
						Count:    stmt.ColumnInt(1),
						LastUsed: time.UnixMilli(stmt.ColumnInt64(2)).UTC(),
					}
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("reading switch stats: %w", err)
	}
	return stats, nil
}

// DeleteStats forgets the switch statistics for key.
func (s *Store) DeleteStats(key string) error {
	return s.with(func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM switch_stats WHERE account = ?`,
			&sqlitex.ExecOptions{Args: []any{key}}); err != nil {
			return fmt.Errorf("deleting switch stats for %s: %w", key, err)
		}
		return nil
	})
}
