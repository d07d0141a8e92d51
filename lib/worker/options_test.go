// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"slices"
	"strings"
	"testing"
)

func TestOptionsValidate(t *testing.T) {
	valid := Options{IMAPServer: "imap.example.com", IMAPUser: "u", IMAPPassword: "p"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() on complete options: %v", err)
	}

	err := Options{EmailStrategy: "random"}.Validate()
	if err == nil {
		t.Fatal("Validate() on empty options returned nil")
	}
	for _, fragment := range []string{"imap server", "imap user", "imap password", `"random"`} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("Validate() error %q missing %q", err, fragment)
		}
	}
}

func TestOptionsApplyDoesNotAliasBase(t *testing.T) {
	base := Spec{Command: "python", Args: []string{"-m", "registration"}, Env: []string{"LANG=C"}}
	spec := Options{Headless: true, EmailStrategy: StrategyPool}.Apply(base)

	if len(base.Args) != 2 || len(base.Env) != 1 {
		t.Fatalf("Apply mutated base: %+v", base)
	}
	if want := []string{"-m", "registration", "--headless"}; !slices.Equal(spec.Args, want) {
		t.Errorf("Args = %v, want %v", spec.Args, want)
	}
	for _, entry := range []string{"LANG=C", "EMAIL_STRATEGY=pool", "SPOOFING_ENABLED=0", "PYTHONIOENCODING=utf-8"} {
		if !slices.Contains(spec.Env, entry) {
			t.Errorf("Env missing %q: %v", entry, spec.Env)
		}
	}

	again := Options{Headless: true}.Apply(spec)
	if count := strings.Count(strings.Join(again.Args, " "), "--headless"); count != 1 {
		t.Errorf("--headless appears %d times after reapplying", count)
	}
}
