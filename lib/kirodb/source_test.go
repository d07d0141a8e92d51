// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package kirodb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/clock"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/sqlitepool"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/usage"
)

var epoch = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

// stateDB creates a state.vscdb with an empty ItemTable and returns
// its path and a function that upserts a row.
func stateDB(t *testing.T) (string, func(key, value string)) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.vscdb")
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, PoolSize: 1})
	if err != nil {
		t.Fatalf("opening state db: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	exec := func(query string, args ...any) {
		t.Helper()
		err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
			return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
		})
		if err != nil {
			t.Fatalf("%s: %v", query, err)
		}
	}
	exec(`CREATE TABLE ItemTable (key TEXT UNIQUE ON CONFLICT REPLACE, value BLOB)`)
	return path, func(key, value string) {
		exec(`INSERT INTO ItemTable (key, value) VALUES (?, ?)`, key, value)
	}
}

func newTestSource(t *testing.T, path string, fake *clock.FakeClock) *Source {
	t.Helper()
	source := New(Config{Path: path, Clock: fake})
	t.Cleanup(func() { source.Close() })
	return source
}

func TestFetchDecodesUsageDocument(t *testing.T) {
	path, put := stateDB(t)
	put(DefaultKey, `{"currentUsage":125,"usageLimit":500,"daysRemaining":11}`)

	source := newTestSource(t, path, clock.Fake(epoch))
	snapshot, err := source.FetchCurrentUsage(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrentUsage: %v", err)
	}
	want := usage.Snapshot{CurrentUsage: 125, UsageLimit: 500, PercentageUsed: 25, DaysRemaining: 11, CapturedAt: epoch}
	if snapshot == nil || *snapshot != want {
		t.Errorf("snapshot = %+v, want %+v", snapshot, want)
	}
}

func TestFetchReportsNotYetAvailable(t *testing.T) {
	fake := clock.Fake(epoch)

	missing := newTestSource(t, filepath.Join(t.TempDir(), "absent.vscdb"), fake)
	if snapshot, err := missing.FetchCurrentUsage(context.Background()); snapshot != nil || err != nil {
		t.Errorf("missing database: %+v, %v", snapshot, err)
	}

	path, put := stateDB(t)
	source := newTestSource(t, path, fake)
	if snapshot, err := source.FetchCurrentUsage(context.Background()); snapshot != nil || err != nil {
		t.Errorf("missing row: %+v, %v", snapshot, err)
	}

	put(DefaultKey, `{"usageLimit":500}`)
	if snapshot, err := source.FetchCurrentUsage(context.Background()); snapshot != nil || err != nil {
		t.Errorf("row without usage: %+v, %v", snapshot, err)
	}
}

func TestFetchRejectsMalformedDocument(t *testing.T) {
	path, put := stateDB(t)
	put(DefaultKey, `{"currentUsage":`)
	source := newTestSource(t, path, clock.Fake(epoch))
	if _, err := source.FetchCurrentUsage(context.Background()); err == nil {
		t.Error("malformed document decoded without error")
	}
}

func TestReadingIsMemoizedUntilCleared(t *testing.T) {
	path, put := stateDB(t)
	put(DefaultKey, `{"currentUsage":1,"usageLimit":100,"percentageUsed":1,"suspended":false}`)
	fake := clock.Fake(epoch)
	source := newTestSource(t, path, fake)

	first, _ := source.FetchCurrentUsage(context.Background())
	put(DefaultKey, `{"currentUsage":100,"usageLimit":100,"suspended":true}`)

	memoized, _ := source.FetchCurrentUsage(context.Background())
	if memoized.CurrentUsage != first.CurrentUsage {
		t.Errorf("reading changed inside the cache window: %d → %d", first.CurrentUsage, memoized.CurrentUsage)
	}

	source.ClearCache()
	fresh, err := source.FetchCurrentUsage(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrentUsage: %v", err)
	}
	if fresh.CurrentUsage != 100 || !fresh.Exhausted() || fresh.DaysRemaining != usage.Unknown {
		t.Errorf("fresh reading = %+v", fresh)
	}

	put(DefaultKey, `{"currentUsage":3,"usageLimit":100}`)
	fake.Advance(DefaultCacheTTL)
	expired, _ := source.FetchCurrentUsage(context.Background())
	if expired.CurrentUsage != 3 {
		t.Errorf("reading after TTL = %d, want 3", expired.CurrentUsage)
	}
}

func TestCustomKey(t *testing.T) {
	path, put := stateDB(t)
	put("custom.usage", `{"currentUsage":9,"usageLimit":50}`)
	source := New(Config{Path: path, Key: "custom.usage", Clock: clock.Fake(epoch)})
	defer source.Close()

	snapshot, err := source.FetchCurrentUsage(context.Background())
	if err != nil || snapshot == nil || snapshot.CurrentUsage != 9 || snapshot.PercentageUsed != 18 {
		t.Errorf("snapshot = %+v, %v", snapshot, err)
	}
}
