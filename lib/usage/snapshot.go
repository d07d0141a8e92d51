// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"context"
	"time"
)

// Unknown marks CurrentUsage or DaysRemaining as not known.
const Unknown = -1

// DefaultUsageLimit is the monthly request limit shown for accounts
// whose limit has not been read yet.
const DefaultUsageLimit = 500

// Snapshot is one usage reading for an account.
type Snapshot struct {
	CurrentUsage   int       `json:"current_usage"`
	UsageLimit     int       `json:"usage_limit"`
	PercentageUsed float64   `json:"percentage_used"`
	DaysRemaining  int       `json:"days_remaining"`
	Suspended      bool      `json:"suspended,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Placeholder returns the canonical "unknown" snapshot so presentation
// code always has one shape to render.
func Placeholder() Snapshot {
	return Snapshot{
		CurrentUsage:  Unknown,
		UsageLimit:    DefaultUsageLimit,
		DaysRemaining: Unknown,
	}
}

// Known reports whether the snapshot holds a real reading.
func (s Snapshot) Known() bool {
	return s.CurrentUsage != Unknown
}

// Exhausted reports whether the account can no longer be used: it is
// suspended or has consumed its whole limit.
func (s Snapshot) Exhausted() bool {
	return s.Suspended || (s.Known() && s.PercentageUsed >= 100)
}

// Remaining returns the unused requests, or Unknown.
func (s Snapshot) Remaining() int {
	if !s.Known() {
		return Unknown
	}
	return max(s.UsageLimit-s.CurrentUsage, 0)
}

// AccountUsage is the per-account shape shown to operators.
type AccountUsage struct {
	CurrentUsage   int     `json:"current_usage"`
	UsageLimit     int     `json:"usage_limit"`
	PercentageUsed float64 `json:"percentage_used"`
	DaysRemaining  int     `json:"days_remaining"`
	Suspended      bool    `json:"suspended,omitempty"`
	Loading        bool    `json:"loading"`
}

// ApplyTo converts s into its display shape. loading marks a refresh
// in flight for the account.
func ApplyTo(s Snapshot, loading bool) AccountUsage {
	return AccountUsage{
		CurrentUsage:   s.CurrentUsage,
		UsageLimit:     s.UsageLimit,
		PercentageUsed: s.PercentageUsed,
		DaysRemaining:  s.DaysRemaining,
		Suspended:      s.Suspended,
		Loading:        loading,
	}
}

// Source reads the usage of whichever account Kiro currently has
// active. A nil snapshot with a nil error means the data is not
// available yet.
type Source interface {
	FetchCurrentUsage(ctx context.Context) (*Snapshot, error)
}

// CacheClearer is implemented by sources that memoize readings.
// RefreshAfterSwitch clears the source's cache before polling.
type CacheClearer interface {
	ClearCache()
}

// Store persists snapshots across restarts.
type Store interface {
	Save(key string, snapshot Snapshot) error
	Delete(key string) error
	DeleteAll() error
	All() (map[string]Snapshot, error)
}
