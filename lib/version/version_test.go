// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInjectedValues(t *testing.T) {
	saved := [...]string{GitCommit, GitDirty, BuildTime, Version}
	t.Cleanup(func() {
		GitCommit, GitDirty, BuildTime, Version = saved[0], saved[1], saved[2], saved[3]
	})
	GitCommit, GitDirty, BuildTime, Version = "abc1234", "true", "2026-03-10T12:00:00Z", "1.2.0"

	if got, want := Info(), "1.2.0 (abc1234-dirty, 2026-03-10T12:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
	if !strings.HasPrefix(Full(), Info()+"\n  Go: ") {
		t.Errorf("Full() = %q", Full())
	}
	if Commit() != "abc1234" {
		t.Errorf("Commit() = %q", Commit())
	}
}
