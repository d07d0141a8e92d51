// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"bufio"
	"io"
	"iter"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/clock"
)

// maxLineLength bounds the buffered partial line. A worker that writes
// more than this without a newline has its output emitted in pieces.
const maxLineLength = 1024 * 1024

// Parser converts chunks of worker output into events. A Parser holds
// the partial line of one output stream; use one per stream per worker
// run. Not safe for concurrent use.
type Parser struct {
	clock   clock.Clock
	partial strings.Builder
}

// NewParser returns a Parser that timestamps events with clk.
func NewParser(clk clock.Clock) *Parser {
	return &Parser{clock: clk}
}

// Feed consumes a chunk and returns the events for every line it
// completes, in order. Text after the last newline is held until the
// next Feed or Flush.
func (p *Parser) Feed(chunk string) []Event {
	var events []Event
	for {
		newline := strings.IndexByte(chunk, '\n')
		if newline < 0 {
			break
		}
		p.partial.WriteString(chunk[:newline])
		chunk = chunk[newline+1:]
		if event, ok := p.ParseLine(p.takePartial()); ok {
			events = append(events, event)
		}
	}
	p.partial.WriteString(chunk)
	if p.partial.Len() >= maxLineLength {
		if event, ok := p.ParseLine(p.takePartial()); ok {
			events = append(events, event)
		}
	}
	return events
}

// Flush emits the buffered partial line, if any. Call it when the
// stream ends.
func (p *Parser) Flush() []Event {
	if p.partial.Len() == 0 {
		return nil
	}
	if event, ok := p.ParseLine(p.takePartial()); ok {
		return []Event{event}
	}
	return nil
}

// Reset discards any buffered partial line so the Parser can serve a
// new session.
func (p *Parser) Reset() {
	p.partial.Reset()
}

func (p *Parser) takePartial() string {
	line := p.partial.String()
	p.partial.Reset()
	return line
}

// ParseLine classifies one complete line. Returns false for lines that
// are empty once ANSI escapes and surrounding whitespace are removed.
func (p *Parser) ParseLine(line string) (Event, bool) {
	line = strings.TrimSpace(ansi.Strip(line))
	if line == "" {
		return Event{}, false
	}
	event := Event{Timestamp: p.clock.Now()}
	if decoded, ok := parseReport(line); ok {
		decoded.apply(&event)
		return event, true
	}
	event.Kind = KindLog
	event.Level = ClassifyLevel(line)
	event.Message = line
	return event, true
}

// Status returns a status event stamped with the Parser's clock.
func (p *Parser) Status(running bool) Event {
	return Status(p.clock.Now(), running)
}

// Lines returns a lazy sequence of the events in r. The sequence ends
// at EOF or on the first read error; read errors other than EOF are
// reported through the returned error function after iteration.
func Lines(r io.Reader, clk clock.Clock) (iter.Seq[Event], func() error) {
	var scanErr error
	sequence := func(yield func(Event) bool) {
		parser := NewParser(clk)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
		for scanner.Scan() {
			event, ok := parser.ParseLine(scanner.Text())
			if !ok {
				continue
			}
			if !yield(event) {
				return
			}
		}
		scanErr = scanner.Err()
	}
	return sequence, func() error { return scanErr }
}
