// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package accounts

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/tidwall/jsonc"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/atomicfile"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/clock"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/sealed"
)

// ErrNotFound is returned when no saved account matches a key.
var ErrNotFound = errors.New("account not found")

// ErrExists is returned by Import when a token file for the name is
// already saved.
var ErrExists = errors.New("account already exists")

// tokenPattern matches saved token files inside the tokens directory.
const tokenPattern = "token-*.json"

// backupTimeLayout is an ISO-8601 UTC timestamp with the separators
// that are awkward in file names replaced by '-'.
const backupTimeLayout = "2006-01-02T15-04-05"

// Account is a saved token together with what List derived from it.
type Account struct {
	// Key is the account name, or the file name when the token has
	// none.
	Key      string `json:"key"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Email    string `json:"email,omitempty"`
	Provider string `json:"provider,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
	ExpiresIn string    `json:"expires_in"`
	Active    bool      `json:"active"`

	Token TokenData `json:"-"`
}

// Config locates the credential files.
type Config struct {
	// TokensDir holds the saved token-*.json files.
	TokensDir string

	// ActivePath is the token file Kiro reads.
	ActivePath string

	// BackupRecipients seals backups of the active file with age.
	// Empty writes plain JSON copies.
	BackupRecipients []age.Recipient

	Clock  clock.Clock
	Logger *slog.Logger
}

// Store reads and writes credential files. It keeps no state of its
// own between calls; the filesystem is the source of truth.
type Store struct {
	tokensDir  string
	activePath string
	recipients []age.Recipient
	clock      clock.Clock
	logger     *slog.Logger
}

// New returns a Store for config.
func New(config Config) *Store {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		tokensDir:  config.TokensDir,
		activePath: config.ActivePath,
		recipients: config.BackupRecipients,
		clock:      config.Clock,
		logger:     config.Logger,
	}
}

// List returns every saved account, the active one first and the rest
// by key. A missing tokens directory yields an empty list.
func (s *Store) List() ([]Account, error) {
	paths, err := filepath.Glob(filepath.Join(s.tokensDir, tokenPattern))
	if err != nil {
		return nil, fmt.Errorf("listing token files in %s: %w", s.tokensDir, err)
	}

	activeFingerprint := ""
	if active, err := s.ReadActive(); err != nil {
		s.logger.Warn("reading active token failed", "path", s.activePath, "error", err)
	} else if active != nil {
		activeFingerprint = active.Fingerprint()
	}

	now := s.clock.Now()
	accounts := make([]Account, 0, len(paths))
	for _, path := range paths {
		token, err := readToken(path)
		if err != nil {
			s.logger.Warn("skipping unreadable token file", "path", path, "error", err)
			continue
		}
		accounts = append(accounts, s.describe(path, token, now, activeFingerprint))
	}

	slices.SortStableFunc(accounts, func(a, b Account) int {
		if a.Active != b.Active {
			if a.Active {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return accounts, nil
}

func (s *Store) describe(path string, token TokenData, now time.Time, activeFingerprint string) Account {
	filename := filepath.Base(path)
	expiresAt, _ := token.Expiry()
	fingerprint := token.Fingerprint()
	return Account{
		Key:       cmp.Or(token.AccountName, filename),
		Filename:  filename,
		Path:      path,
		Email:     token.Email,
		Provider:  token.Provider,
		ExpiresAt: expiresAt,
		Expired:   token.Expired(now),
		ExpiresIn: token.ExpiresInText(now),
		Active:    fingerprint != "" && fingerprint == activeFingerprint,
		Token:     token,
	}
}

// Find returns the account whose name equals key, or failing that the
// first whose file name contains key.
func (s *Store) Find(key string) (Account, error) {
	if key == "" {
		return Account{}, fmt.Errorf("empty account key: %w", ErrNotFound)
	}
	accounts, err := s.List()
	if err != nil {
		return Account{}, err
	}
	for _, account := range accounts {
		if account.Token.AccountName == key {
			return account, nil
		}
	}
	for _, account := range accounts {
		if strings.Contains(account.Filename, key) {
			return account, nil
		}
	}
	return Account{}, fmt.Errorf("%q: %w", key, ErrNotFound)
}

// Active returns the saved account matching the active token, or nil.
func (s *Store) Active() (*Account, error) {
	accounts, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(accounts) > 0 && accounts[0].Active {
		return &accounts[0], nil
	}
	return nil, nil
}

// ReadActive parses the active token file. Returns nil, nil when Kiro
// has no active token.
func (s *Store) ReadActive() (*TokenData, error) {
	token, err := readToken(s.activePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// WriteActive makes token the active credential, backing up the
// previous one first.
func (s *Store) WriteActive(token TokenData) error {
	directory := filepath.Dir(s.activePath)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", directory, err)
	}

	backup, err := s.backupActive()
	if err != nil {
		return err
	}
	if backup != "" {
		s.logger.Debug("active token backed up", "backup", backup)
	}

	if err := atomicfile.WriteJSON(s.activePath, token.active(), 0o600); err != nil {
		return fmt.Errorf("writing active token: %w", err)
	}
	s.logger.Info("active token written",
		"account", cmp.Or(token.AccountName, token.Email),
		"fingerprint", token.Fingerprint(),
	)
	return nil
}

// backupActive copies the current active file next to it and returns
// the backup path, or "" when there was nothing to back up.
func (s *Store) backupActive() (string, error) {
	current, err := os.ReadFile(s.activePath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading active token for backup: %w", err)
	}

	stamp := s.clock.Now().UTC().Format(backupTimeLayout)
	name := strings.TrimSuffix(filepath.Base(s.activePath), ".json") + ".backup." + stamp + ".json"
	path := filepath.Join(filepath.Dir(s.activePath), name)

	if len(s.recipients) > 0 {
		ciphertext, err := sealed.Seal(current, s.recipients)
		if err != nil {
			return "", fmt.Errorf("sealing active token backup: %w", err)
		}
		current = ciphertext
		path += ".age"
	}
	if err := atomicfile.Write(path, current, 0o600); err != nil {
		return "", fmt.Errorf("writing active token backup: %w", err)
	}
	return path, nil
}

// Delete removes the saved token file for key.
func (s *Store) Delete(key string) error {
	account, err := s.Find(key)
	if err != nil {
		return err
	}
	if err := atomicfile.Remove(account.Path); err != nil {
		return err
	}
	s.logger.Info("account deleted", "account", account.Key, "path", account.Path)
	return nil
}

// Import saves data as the token file for name. data must parse as a
// token carrying an access token. An empty name falls back to the
// token's accountName. The file is written as given, so fields the
// Store does not model survive.
func (s *Store) Import(name string, data []byte) (Account, error) {
	token, err := ParseToken(data)
	if err != nil {
		return Account{}, err
	}
	if token.AccessToken == "" {
		return Account{}, errors.New("token has no accessToken")
	}
	name = cmp.Or(name, token.AccountName)
	if name == "" {
		return Account{}, errors.New("account name required: the token has no accountName")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return Account{}, fmt.Errorf("invalid account name %q", name)
	}

	if err := os.MkdirAll(s.tokensDir, 0o700); err != nil {
		return Account{}, fmt.Errorf("creating %s: %w", s.tokensDir, err)
	}
	path := filepath.Join(s.tokensDir, "token-"+name+".json")
	if _, err := os.Stat(path); err == nil {
		return Account{}, fmt.Errorf("%q: %w", name, ErrExists)
	}
	if err := atomicfile.Write(path, data, 0o600); err != nil {
		return Account{}, fmt.Errorf("writing imported token: %w", err)
	}
	s.logger.Info("account imported", "account", name, "path", path)

	activeFingerprint := ""
	if active, err := s.ReadActive(); err == nil && active != nil {
		activeFingerprint = active.Fingerprint()
	}
	return s.describe(path, token, s.clock.Now(), activeFingerprint), nil
}

// Export returns every saved token as one JSON array, in List order.
// Comments in the source files are stripped.
func (s *Store) Export() ([]byte, error) {
	accounts, err := s.List()
	if err != nil {
		return nil, err
	}
	entries := make([]json.RawMessage, 0, len(accounts))
	for _, account := range accounts {
		data, err := os.ReadFile(account.Path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", account.Path, err)
		}
		entries = append(entries, json.RawMessage(jsonc.ToJSON(data)))
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	return data, nil
}

func readToken(path string) (TokenData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TokenData{}, err
	}
	token, err := ParseToken(data)
	if err != nil {
		return TokenData{}, fmt.Errorf("%s: %w", path, err)
	}
	return token, nil
}
