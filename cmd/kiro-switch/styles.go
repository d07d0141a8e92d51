// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/progress"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/usage"
)

// maxCellWidth truncates long table cells such as e-mail addresses.
const maxCellWidth = 40

// styles colours output written to a terminal. Every style is a no-op
// when output is redirected.
type styles struct {
	header  lipgloss.Style
	muted   lipgloss.Style
	active  lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

func newStyles(w io.Writer) styles {
	if file, ok := w.(*os.File); !ok || !term.IsTerminal(int(file.Fd())) {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain}
	}
	return styles{
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func (s styles) level(level progress.Level) lipgloss.Style {
	switch level {
	case progress.LevelSuccess:
		return s.success
	case progress.LevelWarning:
		return s.warning
	case progress.LevelError:
		return s.failure
	}
	return lipgloss.NewStyle()
}

// usageStyle colours a reading by how close the account is to its
// limit.
func (s styles) usageStyle(u usage.AccountUsage) lipgloss.Style {
	switch {
	case u.CurrentUsage == usage.Unknown:
		return s.muted
	case u.Suspended || u.PercentageUsed >= 100:
		return s.failure
	case u.PercentageUsed >= 80:
		return s.warning
	}
	return s.success
}

func formatUsage(u usage.AccountUsage) string {
	if u.CurrentUsage == usage.Unknown {
		if u.Loading {
			return "loading"
		}
		return "unknown"
	}
	text := fmt.Sprintf("%d/%d (%.0f%%)", u.CurrentUsage, u.UsageLimit, u.PercentageUsed)
	if u.Suspended {
		text += " suspended"
	}
	if u.Loading {
		text += " *"
	}
	return text
}

func formatSnapshot(snapshot *usage.Snapshot) string {
	if snapshot == nil || !snapshot.Known() {
		return "unknown"
	}
	text := fmt.Sprintf("%d/%d used (%.1f%%), %d remaining",
		snapshot.CurrentUsage, snapshot.UsageLimit, snapshot.PercentageUsed, snapshot.Remaining())
	if snapshot.DaysRemaining != usage.Unknown {
		text += fmt.Sprintf(", resets in %d days", snapshot.DaysRemaining)
	}
	if snapshot.Suspended {
		text += ", suspended"
	}
	return text
}

// formatEvent renders one progress event as a log line.
func (s styles) formatEvent(event progress.Event) string {
	stamp := s.muted.Render(event.Timestamp.Local().Format("15:04:05"))
	switch event.Kind {
	case progress.KindProgress:
		text := fmt.Sprintf("[%d/%d] %s", event.Step, event.TotalSteps, event.StepName)
		if event.Detail != "" {
			text += ": " + event.Detail
		}
		return fmt.Sprintf("%s %s %s", stamp, s.header.Render(text), s.muted.Render(fmt.Sprintf("(%d%%)", event.Percent())))
	case progress.KindStatus:
		if event.Running {
			return stamp + " " + s.success.Render("worker running")
		}
		return stamp + " " + s.muted.Render("worker stopped")
	}
	return stamp + " " + s.level(event.Level).Render(event.Message)
}

// table renders aligned columns. Widths are measured on the plain
// text so colour codes do not skew alignment.
type table struct {
	header []string
	rows   [][]cell
}

type cell struct {
	text  string
	style lipgloss.Style
}

func (t *table) add(cells ...cell) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer, s styles) {
	widths := make([]int, len(t.header))
	for i, title := range t.header {
		widths[i] = lipgloss.Width(title)
	}
	for _, row := range t.rows {
		for i := range row {
			row[i].text = ansi.Truncate(row[i].text, maxCellWidth, "…")
			widths[i] = max(widths[i], lipgloss.Width(row[i].text))
		}
	}

	var line strings.Builder
	for i, title := range t.header {
		writeCell(&line, cell{text: title, style: s.header}, widths[i], i == len(t.header)-1)
	}
	fmt.Fprintln(w, line.String())
	for _, row := range t.rows {
		line.Reset()
		for i, c := range row {
			writeCell(&line, c, widths[i], i == len(row)-1)
		}
		fmt.Fprintln(w, line.String())
	}
}

func writeCell(line *strings.Builder, c cell, width int, last bool) {
	line.WriteString(c.style.Render(c.text))
	if !last {
		line.WriteString(strings.Repeat(" ", width-lipgloss.Width(c.text)+2))
	}
}
