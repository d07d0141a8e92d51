// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package kirodb reads the usage Kiro records in its editor state
// database (state.vscdb, a SQLite file with a single key/value
// ItemTable). The database belongs to Kiro and is opened read-only.
package kirodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/clock"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/sqlitepool"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/usage"
)

// DefaultKey is the ItemTable key holding Kiro's usage document.
const DefaultKey = "kiro.usageState"

// DefaultCacheTTL is how long a reading is reused before the database
// is queried again.
const DefaultCacheTTL = 30 * time.Second

// Config configures a Source.
type Config struct {
	// Path is Kiro's state.vscdb.
	Path string

	// Key selects the ItemTable row. Empty selects DefaultKey.
	Key string

	// CacheTTL bounds reuse of the last reading. Zero selects
	// DefaultCacheTTL.
	CacheTTL time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Source implements usage.Source and usage.CacheClearer.
type Source struct {
	path     string
	key      string
	cacheTTL time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	pool     *sqlitepool.Pool
	cached   *usage.Snapshot
	cachedAt time.Time
}

var (
	_ usage.Source       = (*Source)(nil)
	_ usage.CacheClearer = (*Source)(nil)
)

// New returns a Source. The database is opened on first fetch, so Kiro
// need not have created it yet.
func New(config Config) *Source {
	if config.Key == "" {
		config.Key = DefaultKey
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Source{
		path:     config.Path,
		key:      config.Key,
		cacheTTL: config.CacheTTL,
		clock:    config.Clock,
		logger:   config.Logger,
	}
}

// document is the JSON stored under the usage key.
type document struct {
	CurrentUsage   *int     `json:"currentUsage"`
	UsageLimit     int      `json:"usageLimit"`
	PercentageUsed *float64 `json:"percentageUsed"`
	DaysRemaining  *int     `json:"daysRemaining"`
	Suspended      bool     `json:"suspended"`
}

// FetchCurrentUsage returns the usage of Kiro's active account. It
// returns nil, nil while the database, the row, or the usage figure is
// missing.
func (s *Source) FetchCurrentUsage(ctx context.Context) (*usage.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.cached != nil && now.Sub(s.cachedAt) < s.cacheTTL {
		cached := *s.cached
		return &cached, nil
	}

	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("kiro state database not found", "path", s.path)
		return nil, nil
	}

	raw, found, err := s.readValue(ctx)
	if err != nil || !found {
		return nil, err
	}

	var decoded document
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decoding %s from %s: %w", s.key, s.path, err)
	}
	if decoded.CurrentUsage == nil {
		return nil, nil
	}

	snapshot := usage.Snapshot{
		CurrentUsage:  *decoded.CurrentUsage,
		UsageLimit:    decoded.UsageLimit,
		DaysRemaining: usage.Unknown,
		Suspended:     decoded.Suspended,
		CapturedAt:    now,
	}
	if snapshot.UsageLimit <= 0 {
		snapshot.UsageLimit = usage.DefaultUsageLimit
	}
	if decoded.DaysRemaining != nil {
		snapshot.DaysRemaining = *decoded.DaysRemaining
	}
	if decoded.PercentageUsed != nil {
		snapshot.PercentageUsed = *decoded.PercentageUsed
	} else {
		snapshot.PercentageUsed = float64(snapshot.CurrentUsage) * 100 / float64(snapshot.UsageLimit)
	}

	s.cached = &snapshot
	s.cachedAt = now
	result := snapshot
	return &result, nil
}

func (s *Source) readValue(ctx context.Context) (string, bool, error) {
	if s.pool == nil {
		pool, err := sqlitepool.Open(sqlitepool.Config{
			Path:     s.path,
			PoolSize: 1,
			ReadOnly: true,
			Logger:   s.logger,
		})
		if err != nil {
			return "", false, err
		}
		s.pool = pool
	}

	var value string
	found := false
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT value FROM ItemTable WHERE key = ?`, &sqlitex.ExecOptions{
			Args: []any{s.key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("reading %s from %s: %w", s.key, s.path, err)
	}
	return value, found, nil
}

// ClearCache forgets the memoized reading.
func (s *Source) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

// Close releases the database connection, if one was opened.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return nil
	}
	err := s.pool.Close()
	s.pool = nil
	return err
}
