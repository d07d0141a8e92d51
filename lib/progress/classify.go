// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"encoding/json"
	"strings"
)

// progressPrefix marks a progress line in the worker's older output
// format.
const progressPrefix = "PROGRESS:"

var (
	successMarkers = []string{"✓", "SUCCESS", "✅", "[OK]"}
	errorMarkers   = []string{"✗", "ERROR", "❌", "[X]"}
	warningMarkers = []string{"⚠", "WARN"}
)

// ClassifyLevel infers a log level from the markers in line. Success
// markers win over error markers, which win over warnings.
func ClassifyLevel(line string) Level {
	switch {
	case containsAny(line, successMarkers):
		return LevelSuccess
	case containsAny(line, errorMarkers):
		return LevelError
	case containsAny(line, warningMarkers):
		return LevelWarning
	}
	return LevelInfo
}

func containsAny(line string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// report is the wire shape of a progress line. Pointers distinguish an
// absent field from a zero value.
type report struct {
	Step       *int    `json:"step"`
	TotalSteps *int    `json:"totalSteps"`
	StepName   *string `json:"stepName"`
	Detail     *string `json:"detail"`
}

// parseReport decodes a structured progress line. The second result is
// false when line is not a JSON object carrying at least one progress
// field.
func parseReport(line string) (report, bool) {
	candidate := strings.TrimPrefix(line, progressPrefix)
	candidate = strings.TrimSpace(candidate)
	if !strings.HasPrefix(candidate, "{") || !strings.HasSuffix(candidate, "}") {
		return report{}, false
	}
	var decoded report
	if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
		return report{}, false
	}
	if decoded.Step == nil && decoded.TotalSteps == nil && decoded.StepName == nil && decoded.Detail == nil {
		return report{}, false
	}
	return decoded, true
}

func (r report) apply(event *Event) {
	event.Kind = KindProgress
	event.TotalSteps = DefaultTotalSteps
	if r.Step != nil {
		event.Step = *r.Step
	}
	if r.TotalSteps != nil {
		event.TotalSteps = *r.TotalSteps
	}
	if r.StepName != nil {
		event.StepName = *r.StepName
	}
	if r.Detail != nil {
		event.Detail = *r.Detail
	}
}
