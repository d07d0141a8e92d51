// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import "time"

// State is the supervisor's view of the worker.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateStopping State = "stopping"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventStart    EventType = "start"
	EventStdout   EventType = "stdout"
	EventStderr   EventType = "stderr"
	EventClose    EventType = "close"
	EventError    EventType = "error"
	EventStopping EventType = "stopping"
	EventStopped  EventType = "stopped"
	EventPaused   EventType = "paused"
	EventResumed  EventType = "resumed"
)

// Event is one lifecycle notification.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Run is the generation of the worker run this event belongs to.
	// Zero for spawn failures, which never produce a run.
	Run uint64 `json:"run,omitempty"`

	// PID is set on start.
	PID int `json:"pid,omitempty"`

	// Data is the raw output chunk for stdout and stderr events. Chunks
	// follow pipe reads, not line boundaries.
	Data string `json:"data,omitempty"`

	// ExitCode is set on close. -1 means the process was killed by a
	// signal.
	ExitCode int `json:"exit_code"`

	// Error describes the failure for error events.
	Error string `json:"error,omitempty"`
}

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	State     State     `json:"state"`
	PID       int       `json:"pid,omitempty"`
	Run       uint64    `json:"run,omitempty"`
	StartedAt time.Time `json:"started_at"`
}
