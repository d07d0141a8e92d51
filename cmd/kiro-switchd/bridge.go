// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/broadcast"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/clock"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/progress"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/worker"
)

// streamKey identifies one output pipe of one worker run. Each pipe
// gets its own parser so partial lines from stdout and stderr never
// merge.
type streamKey struct {
	run    uint64
	stream worker.EventType
}

// bridge turns worker lifecycle events into progress events.
type bridge struct {
	progress *broadcast.Broadcaster[progress.Event]
	clock    clock.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	parsers map[streamKey]*progress.Parser
}

func newBridge(events *broadcast.Broadcaster[progress.Event], clk clock.Clock, logger *slog.Logger) *bridge {
	return &bridge{
		progress: events,
		clock:    clk,
		logger:   logger,
		parsers:  make(map[streamKey]*progress.Parser),
	}
}

// handle is subscribed to the supervisor's event broadcaster. stdout
// and stderr are pumped by separate goroutines, so calls may be
// concurrent.
func (b *bridge) handle(event worker.Event) {
	switch event.Type {
	case worker.EventStart:
		b.publish(progress.Status(b.clock.Now(), true))

	case worker.EventStdout, worker.EventStderr:
		for _, parsed := range b.parser(event.Run, event.Type).Feed(event.Data) {
			b.publish(parsed)
		}

	case worker.EventClose:
		for _, parsed := range b.flush(event.Run) {
			b.publish(parsed)
		}
		if event.ExitCode == 0 {
			b.publishLog(progress.LevelSuccess, "Auto-registration completed")
		} else {
			b.publishLog(progress.LevelError, fmt.Sprintf("Auto-registration exited with code %d", event.ExitCode))
		}
		b.publish(progress.Status(b.clock.Now(), false))

	case worker.EventStopped:
		b.publishLog(progress.LevelWarning, "Auto-registration stopped")

	case worker.EventPaused:
		b.publishLog(progress.LevelInfo, "Auto-registration paused")

	case worker.EventResumed:
		b.publishLog(progress.LevelInfo, "Auto-registration resumed")

	case worker.EventError:
		// Spawn failures (run 0) are reported by the router that
		// issued the start.
		if event.Run != 0 {
			b.publishLog(progress.LevelError, event.Error)
		}
	}
}

func (b *bridge) parser(run uint64, stream worker.EventType) *progress.Parser {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := streamKey{run: run, stream: stream}
	parser, ok := b.parsers[key]
	if !ok {
		parser = progress.NewParser(b.clock)
		b.parsers[key] = parser
	}
	return parser
}

// flush drains and forgets the parsers of run, stdout first.
func (b *bridge) flush(run uint64) []progress.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var events []progress.Event
	for _, stream := range []worker.EventType{worker.EventStdout, worker.EventStderr} {
		key := streamKey{run: run, stream: stream}
		if parser, ok := b.parsers[key]; ok {
			events = append(events, parser.Flush()...)
			delete(b.parsers, key)
		}
	}
	return events
}

func (b *bridge) publishLog(level progress.Level, message string) {
	b.publish(progress.Log(b.clock.Now(), level, message))
}

func (b *bridge) publish(event progress.Event) {
	b.progress.Publish(event)
}
