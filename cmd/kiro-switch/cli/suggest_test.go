// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "testing"

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"switch", "switch", 0},
		{"swtich", "switch", 2},
		{"stauts", "status", 2},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestClosestRespectsThreshold(t *testing.T) {
	candidates := []string{"list", "logs", "usage"}
	if got := closest("lsit", candidates); got != "list" {
		t.Errorf("closest(lsit) = %q, want list", got)
	}
	if got := closest("completely-different", candidates); got != "" {
		t.Errorf("closest(completely-different) = %q, want none", got)
	}
}
