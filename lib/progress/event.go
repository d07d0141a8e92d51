// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import "time"

// Kind discriminates Event.
type Kind string

const (
	KindLog      Kind = "log"
	KindProgress Kind = "progress"
	KindStatus   Kind = "status"
)

// Level is the severity of a log event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// DefaultTotalSteps is assumed when a progress report omits totalSteps.
const DefaultTotalSteps = 8

// Event is one item in the worker's progress stream. Which fields are
// meaningful depends on Kind:
//
//   - KindLog: Level, Message
//   - KindProgress: Step, TotalSteps, StepName, Detail
//   - KindStatus: Running
//
// Events are values; consumers receive copies.
type Event struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	Level   Level  `json:"level,omitempty"`
	Message string `json:"message,omitempty"`

	Step       int    `json:"step,omitempty"`
	TotalSteps int    `json:"totalSteps,omitempty"`
	StepName   string `json:"stepName,omitempty"`
	Detail     string `json:"detail,omitempty"`

	Running bool `json:"running,omitempty"`
}

// Log constructs a log event.
func Log(at time.Time, level Level, message string) Event {
	return Event{Kind: KindLog, Timestamp: at, Level: level, Message: message}
}

// Status constructs a running/stopped status event.
func Status(at time.Time, running bool) Event {
	return Event{Kind: KindStatus, Timestamp: at, Running: running}
}

// Percent returns progress as 0–100, or 0 for non-progress events.
func (e Event) Percent() int {
	if e.Kind != KindProgress || e.TotalSteps <= 0 {
		return 0
	}
	percent := e.Step * 100 / e.TotalSteps
	return min(max(percent, 0), 100)
}
