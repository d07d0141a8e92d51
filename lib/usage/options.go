// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"slices"
	"time"
)

// DefaultMaxRetries is the number of retries after the first fetch.
const DefaultMaxRetries = 3

// NoRetries requests a single fetch attempt.
const NoRetries = -1

// DefaultRetryDelays is the wait before each attempt. Attempts beyond
// the schedule reuse its last entry.
var DefaultRetryDelays = []time.Duration{
	500 * time.Millisecond,
	1000 * time.Millisecond,
	2000 * time.Millisecond,
}

// Options tunes one RefreshAfterSwitch call.
type Options struct {
	// MaxRetries is the number of fetches after the first. Zero selects
	// DefaultMaxRetries; NoRetries selects none.
	MaxRetries int

	// RetryDelays is the delay schedule. Nil selects
	// DefaultRetryDelays; an empty non-nil slice means no delay.
	RetryDelays []time.Duration

	// OnRetry, if set, is called after each empty fetch that will be
	// retried, with the one-based attempt number and MaxRetries.
	OnRetry func(attempt, maxRetries int)
}

func (o Options) resolved() Options {
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = DefaultMaxRetries
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.RetryDelays == nil {
		o.RetryDelays = DefaultRetryDelays
	}
	o.RetryDelays = slices.Clone(o.RetryDelays)
	return o
}

// run is the state of one reconciliation: which accounts it moves
// between and where it is in the retry schedule.
type run struct {
	generation uint64
	oldKey     string
	newKey     string
	attempt    int
	options    Options
}

// delay returns the wait before the current attempt.
func (r *run) delay() time.Duration {
	delays := r.options.RetryDelays
	if len(delays) == 0 {
		return 0
	}
	return delays[min(r.attempt, len(delays)-1)]
}

// willRetry reports whether another attempt follows the current one.
func (r *run) willRetry() bool {
	return r.attempt < r.options.MaxRetries
}
