// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"filippo.io/age"
	"gopkg.in/yaml.v3"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/sealed"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/secret"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/worker"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "KIRO_SWITCH_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is an operator's workstation.
	Development Environment = "development"
	// Production is an unattended machine running the daemon.
	Production Environment = "production"
)

// Config is the complete kiro-switch configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths   PathsConfig   `yaml:"paths"`
	Worker  WorkerConfig  `yaml:"worker"`
	Refresh RefreshConfig `yaml:"refresh"`
	Usage   UsageConfig   `yaml:"usage"`
	Log     LogConfig     `yaml:"log"`
	Backup  BackupConfig  `yaml:"backup"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields an environment section may replace.
type Overrides struct {
	Paths  *PathsConfig  `yaml:"paths,omitempty"`
	Worker *WorkerConfig `yaml:"worker,omitempty"`
	Log    *LogConfig    `yaml:"log,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// State is the daemon's own directory.
	// Default: ${HOME}/.kiro-batch-login
	State string `yaml:"state"`

	// Tokens holds one token-*.json file per registered account.
	// Default: ${KIRO_STATE}/tokens
	Tokens string `yaml:"tokens"`

	// ActiveToken is the credential file Kiro reads.
	// Default: ${HOME}/.aws/sso/cache/kiro-auth-token.json
	ActiveToken string `yaml:"active_token"`

	// LogFile receives the formatted event log.
	// Default: ${KIRO_STATE}/autoreg.log
	LogFile string `yaml:"log_file"`

	// Socket is the daemon's Unix socket.
	// Default: ${KIRO_STATE}/kiro-switch.sock
	Socket string `yaml:"socket"`

	// KiroState is Kiro's state.vscdb, the usage source.
	// Default: ${HOME}/.config/Kiro/User/globalStorage/state.vscdb
	KiroState string `yaml:"kiro_state"`

	// UsageDB persists usage snapshots and switch statistics.
	// Default: ${KIRO_STATE}/usage.db
	UsageDB string `yaml:"usage_db"`
}

// WorkerConfig describes the registration worker and its defaults.
type WorkerConfig struct {
	Command          string   `yaml:"command"`
	Args             []string `yaml:"args"`
	WorkingDirectory string   `yaml:"working_directory"`

	// GracePeriod is how long stop waits before killing the worker.
	// Default: 2s
	GracePeriod time.Duration `yaml:"grace_period"`

	Headless        bool   `yaml:"headless"`
	SpoofingEnabled bool   `yaml:"spoofing_enabled"`
	IMAPServer      string `yaml:"imap_server"`
	IMAPUser        string `yaml:"imap_user"`

	// IMAPPasswordFile holds the IMAP password on its first line. "-"
	// reads it from stdin.
	IMAPPasswordFile string `yaml:"imap_password_file"`

	EmailDomain   string `yaml:"email_domain"`
	EmailStrategy string `yaml:"email_strategy"`
}

// RefreshConfig configures the external token refresher. An empty
// Command disables refreshing.
type RefreshConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

// UsageConfig tunes usage reconciliation.
type UsageConfig struct {
	// MaxRetries is the number of fetches after the first.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// RetryDelays is the delay before each fetch; the last entry
	// repeats. Default: [500ms, 1s, 2s]
	RetryDelays []time.Duration `yaml:"retry_delays"`

	// StaleAfter is the age past which a cached snapshot is hidden.
	// Default: 5m
	StaleAfter time.Duration `yaml:"stale_after"`

	// StateKey is the ItemTable row holding Kiro's usage document.
	// Default: kiro.usageState
	StateKey string `yaml:"state_key"`
}

// LogConfig configures logging and the event log.
type LogConfig struct {
	// Level is the slog level: debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Backlog is the number of events kept in memory for late
	// subscribers. Default: 200
	Backlog int `yaml:"backlog"`

	// MaxFileBytes rotates the log file past this size; negative
	// disables rotation. Default: 4 MiB
	MaxFileBytes int64 `yaml:"max_file_bytes"`
}

// BackupConfig configures backups of the active credential.
type BackupConfig struct {
	// Recipients are age public keys. When set, backups are encrypted
	// to them; otherwise backups are plain copies.
	Recipients []string `yaml:"recipients"`
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			State:       "${HOME}/.kiro-batch-login",
			Tokens:      "${KIRO_STATE}/tokens",
			ActiveToken: "${HOME}/.aws/sso/cache/kiro-auth-token.json",
			LogFile:     "${KIRO_STATE}/autoreg.log",
			Socket:      "${KIRO_STATE}/kiro-switch.sock",
			KiroState:   "${HOME}/.config/Kiro/User/globalStorage/state.vscdb",
			UsageDB:     "${KIRO_STATE}/usage.db",
		},
		Worker: WorkerConfig{
			GracePeriod:     worker.DefaultGracePeriod,
			SpoofingEnabled: true,
			EmailStrategy:   worker.DefaultStrategy,
		},
		Refresh: RefreshConfig{
			Timeout: time.Minute,
		},
		Usage: UsageConfig{
			MaxRetries:  3,
			RetryDelays: []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second},
			StaleAfter:  5 * time.Minute,
			StateKey:    "kiro.usageState",
		},
		Log: LogConfig{
			Level:        "info",
			Backlog:      200,
			MaxFileBytes: 4 << 20,
		},
	}
}

// Load loads the file named by path, else by KIRO_SWITCH_CONFIG, else
// returns the expanded defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		cfg := Default()
		cfg.applyEnvironmentOverrides()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Unattended machines never show a browser.
		if overrides == nil {
			overrides = &Overrides{Worker: &WorkerConfig{Headless: true}}
		}
	}
	if overrides == nil {
		return
	}

	if paths := overrides.Paths; paths != nil {
		override(&c.Paths.State, paths.State)
		override(&c.Paths.Tokens, paths.Tokens)
		override(&c.Paths.ActiveToken, paths.ActiveToken)
		override(&c.Paths.LogFile, paths.LogFile)
		override(&c.Paths.Socket, paths.Socket)
		override(&c.Paths.KiroState, paths.KiroState)
		override(&c.Paths.UsageDB, paths.UsageDB)
	}

	if w := overrides.Worker; w != nil {
		override(&c.Worker.Command, w.Command)
		if len(w.Args) > 0 {
			c.Worker.Args = w.Args
		}
		override(&c.Worker.WorkingDirectory, w.WorkingDirectory)
		if w.GracePeriod > 0 {
			c.Worker.GracePeriod = w.GracePeriod
		}
		// Booleans always apply from an override section.
		c.Worker.Headless = w.Headless
		override(&c.Worker.IMAPServer, w.IMAPServer)
		override(&c.Worker.IMAPUser, w.IMAPUser)
		override(&c.Worker.IMAPPasswordFile, w.IMAPPasswordFile)
		override(&c.Worker.EmailDomain, w.EmailDomain)
		override(&c.Worker.EmailStrategy, w.EmailStrategy)
	}

	if l := overrides.Log; l != nil {
		override(&c.Log.Level, l.Level)
		if l.Backlog > 0 {
			c.Log.Backlog = l.Backlog
		}
		if l.MaxFileBytes != 0 {
			c.Log.MaxFileBytes = l.MaxFileBytes
		}
	}
}

func override(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["KIRO_STATE"] = c.Paths.State

	for _, path := range []*string{
		&c.Paths.Tokens,
		&c.Paths.ActiveToken,
		&c.Paths.LogFile,
		&c.Paths.Socket,
		&c.Paths.KiroState,
		&c.Paths.UsageDB,
		&c.Worker.Command,
		&c.Worker.WorkingDirectory,
		&c.Worker.IMAPPasswordFile,
		&c.Refresh.Command,
	} {
		*path = expandVars(*path, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. vars is consulted
// before the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Worker IMAP settings
// are not required here: start commands may supply them.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	for _, required := range []struct{ name, value string }{
		{"paths.state", c.Paths.State},
		{"paths.tokens", c.Paths.Tokens},
		{"paths.active_token", c.Paths.ActiveToken},
		{"paths.socket", c.Paths.Socket},
	} {
		if required.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", required.name))
		}
	}
	if c.Worker.GracePeriod < 0 {
		errs = append(errs, errors.New("worker.grace_period must not be negative"))
	}
	if c.Usage.MaxRetries < 0 {
		errs = append(errs, errors.New("usage.max_retries must not be negative"))
	}
	for _, delay := range c.Usage.RetryDelays {
		if delay < 0 {
			errs = append(errs, errors.New("usage.retry_delays must not be negative"))
			break
		}
	}
	if c.Usage.StaleAfter < 0 {
		errs = append(errs, errors.New("usage.stale_after must not be negative"))
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if c.Log.Backlog <= 0 {
		errs = append(errs, errors.New("log.backlog must be positive"))
	}
	if len(c.Backup.Recipients) > 0 {
		if _, err := c.BackupRecipients(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Worker.EmailStrategy != "" && !slices.Contains(worker.Strategies, c.Worker.EmailStrategy) {
		errs = append(errs, fmt.Errorf("worker.email_strategy must be one of: %v", worker.Strategies))
	}
	return errors.Join(errs...)
}

// EnsurePaths creates the state directory and the tokens directory.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.State, c.Paths.Tokens, filepath.Dir(c.Paths.Socket)} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

// BackupRecipients parses backup.recipients. It returns nil when
// backups are not encrypted.
func (c *Config) BackupRecipients() ([]age.Recipient, error) {
	if len(c.Backup.Recipients) == 0 {
		return nil, nil
	}
	recipients, err := sealed.ParseRecipients(c.Backup.Recipients)
	if err != nil {
		return nil, fmt.Errorf("backup.recipients: %w", err)
	}
	return recipients, nil
}

// IMAPPassword reads worker.imap_password_file. It returns nil when no
// file is configured. The caller must Close the buffer.
func (c *Config) IMAPPassword() (*secret.Buffer, error) {
	if c.Worker.IMAPPasswordFile == "" {
		return nil, nil
	}
	password, err := secret.ReadFile(c.Worker.IMAPPasswordFile)
	if err != nil {
		return nil, fmt.Errorf("worker.imap_password_file: %w", err)
	}
	return password, nil
}

// WorkerSpec returns the process description for the worker.
func (c *Config) WorkerSpec() worker.Spec {
	return worker.Spec{
		Command:          c.Worker.Command,
		Args:             slices.Clone(c.Worker.Args),
		WorkingDirectory: c.Worker.WorkingDirectory,
	}
}

// WorkerOptions returns the configured worker defaults. password may
// be nil.
func (c *Config) WorkerOptions(password *secret.Buffer) worker.Options {
	options := worker.Options{
		Headless:        c.Worker.Headless,
		SpoofingEnabled: c.Worker.SpoofingEnabled,
		IMAPServer:      c.Worker.IMAPServer,
		IMAPUser:        c.Worker.IMAPUser,
		EmailDomain:     c.Worker.EmailDomain,
		EmailStrategy:   c.Worker.EmailStrategy,
	}
	if password != nil {
		options.IMAPPassword = password.String()
	}
	return options
}
