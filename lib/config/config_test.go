// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/sealed"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kiro-switch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadWithoutFileUsesExpandedDefaults(t *testing.T) {
	t.Setenv("HOME", "/home/operator")
	t.Setenv(EnvVar, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.State != "/home/operator/.kiro-batch-login" {
		t.Errorf("paths.state = %q", cfg.Paths.State)
	}
	if cfg.Paths.Tokens != "/home/operator/.kiro-batch-login/tokens" {
		t.Errorf("paths.tokens = %q", cfg.Paths.Tokens)
	}
	if cfg.Paths.ActiveToken != "/home/operator/.aws/sso/cache/kiro-auth-token.json" {
		t.Errorf("paths.active_token = %q", cfg.Paths.ActiveToken)
	}
	if cfg.Paths.LogFile != "/home/operator/.kiro-batch-login/autoreg.log" {
		t.Errorf("paths.log_file = %q", cfg.Paths.LogFile)
	}
	if cfg.Usage.MaxRetries != 3 || len(cfg.Usage.RetryDelays) != 3 {
		t.Errorf("usage = %+v, want 3 retries over 3 delays", cfg.Usage)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFromEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, "paths:\n  state: /srv/kiro\n")
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.State != "/srv/kiro" {
		t.Errorf("paths.state = %q, want /srv/kiro", cfg.Paths.State)
	}
	if cfg.Paths.UsageDB != "/srv/kiro/usage.db" {
		t.Errorf("paths.usage_db = %q, want it under the state dir", cfg.Paths.UsageDB)
	}
}

func TestExplicitPathWinsOverEnvironment(t *testing.T) {
	t.Setenv(EnvVar, writeConfig(t, "paths:\n  state: /from/env\n"))
	cfg, err := Load(writeConfig(t, "paths:\n  state: /from/flag\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.State != "/from/flag" {
		t.Errorf("paths.state = %q, want /from/flag", cfg.Paths.State)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFile succeeded for a missing file")
	}
}

func TestLoadFileParsesSections(t *testing.T) {
	path := writeConfig(t, `
paths:
  state: /var/lib/kiro
worker:
  command: /opt/autoreg/run.sh
  args: [register, --verbose]
  grace_period: 5s
  headless: true
  spoofing_enabled: false
  imap_server: imap.example.com
  imap_user: inbox@example.com
  email_strategy: plus_alias
refresh:
  command: /opt/autoreg/refresh.sh
  timeout: 30s
usage:
  max_retries: 5
  retry_delays: [250ms, 1s]
  stale_after: 10m
log:
  level: debug
  backlog: 500
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	spec := cfg.WorkerSpec()
	if spec.Command != "/opt/autoreg/run.sh" || !slices.Equal(spec.Args, []string{"register", "--verbose"}) {
		t.Errorf("worker spec = %+v", spec)
	}
	if cfg.Worker.GracePeriod != 5*time.Second {
		t.Errorf("grace_period = %v, want 5s", cfg.Worker.GracePeriod)
	}
	options := cfg.WorkerOptions(nil)
	if !options.Headless || options.SpoofingEnabled || options.EmailStrategy != "plus_alias" {
		t.Errorf("worker options = %+v", options)
	}
	if cfg.Refresh.Timeout != 30*time.Second {
		t.Errorf("refresh.timeout = %v", cfg.Refresh.Timeout)
	}
	if !slices.Equal(cfg.Usage.RetryDelays, []time.Duration{250 * time.Millisecond, time.Second}) {
		t.Errorf("retry_delays = %v", cfg.Usage.RetryDelays)
	}
	if cfg.Usage.StaleAfter != 10*time.Minute || cfg.Usage.MaxRetries != 5 {
		t.Errorf("usage = %+v", cfg.Usage)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Backlog != 500 {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestProductionDefaultsToHeadless(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "environment: production\n"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !cfg.Worker.Headless {
		t.Error("production without an override section is not headless")
	}
}

func TestEnvironmentSectionOverrides(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
environment: development
paths:
  state: /base
log:
  level: info
development:
  paths:
    state: /dev/state
  log:
    level: debug
production:
  paths:
    state: /prod/state
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Paths.State != "/dev/state" {
		t.Errorf("paths.state = %q, want /dev/state", cfg.Paths.State)
	}
	if cfg.Paths.Socket != "/dev/state/kiro-switch.sock" {
		t.Errorf("paths.socket = %q, want it under the overridden state dir", cfg.Paths.Socket)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("KIRO_TEST_SET", "/from/env")
	vars := map[string]string{"KIRO_STATE": "/state"}
	tests := []struct {
		input string
		want  string
	}{
		{"${KIRO_STATE}/tokens", "/state/tokens"},
		{"${KIRO_TEST_SET}/x", "/from/env/x"},
		{"${KIRO_TEST_UNSET:-/fallback}/x", "/fallback/x"},
		{"${KIRO_TEST_UNSET}/x", "/x"},
		{"/plain/path", "/plain/path"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Environment = "staging"
	cfg.Paths.Tokens = ""
	cfg.Log.Level = "verbose"
	cfg.Worker.EmailStrategy = "random"
	cfg.Usage.MaxRetries = -2

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"invalid environment", "paths.tokens", "log.level", "worker.email_strategy", "usage.max_retries"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error missing %q:\n%v", want, err)
		}
	}
}

func TestBackupRecipients(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	cfg := Default()
	if recipients, err := cfg.BackupRecipients(); err != nil || recipients != nil {
		t.Errorf("BackupRecipients without config = %v, %v; want nil, nil", recipients, err)
	}

	cfg.Backup.Recipients = []string{keypair.PublicKey}
	recipients, err := cfg.BackupRecipients()
	if err != nil || len(recipients) != 1 {
		t.Errorf("BackupRecipients = %v, %v; want one recipient", recipients, err)
	}

	cfg.Backup.Recipients = []string{"not-a-key"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "backup.recipients") {
		t.Errorf("Validate with bad recipient = %v", err)
	}
}

func TestIMAPPasswordFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imap-password")
	if err := os.WriteFile(path, []byte("hunter2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	cfg.Worker.IMAPPasswordFile = path

	password, err := cfg.IMAPPassword()
	if err != nil {
		t.Fatalf("IMAPPassword: %v", err)
	}
	defer password.Close()
	if got := cfg.WorkerOptions(password).IMAPPassword; got != "hunter2" {
		t.Errorf("IMAP password = %q, want hunter2", got)
	}

	cfg.Worker.IMAPPasswordFile = ""
	if password, err := cfg.IMAPPassword(); password != nil || err != nil {
		t.Errorf("IMAPPassword without file = %v, %v", password, err)
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Paths.State = filepath.Join(root, "state")
	cfg.Paths.Tokens = filepath.Join(root, "state", "tokens")
	cfg.Paths.Socket = filepath.Join(root, "run", "kiro.sock")
	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, dir := range []string{cfg.Paths.Tokens, filepath.Join(root, "run")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
}
