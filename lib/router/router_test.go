// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/accounts"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/broadcast"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/progress"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/usage"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/usagestore"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/worker"
)

// fakeWorker records what the router asks of the supervisor.
type fakeWorker struct {
	mu       sync.Mutex
	state    worker.State
	started  []worker.Spec
	written  []string
	startErr error
}

func (w *fakeWorker) Start(_ context.Context, spec worker.Spec) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.startErr != nil {
		return 0, w.startErr
	}
	w.started = append(w.started, spec)
	w.state = worker.StateRunning
	return 4242, nil
}

func (w *fakeWorker) Stop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == worker.StateIdle || w.state == "" {
		return false
	}
	w.state = worker.StateIdle
	return true
}

func (w *fakeWorker) move(from, to worker.State) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != from {
		return false
	}
	w.state = to
	return true
}

func (w *fakeWorker) Pause() bool  { return w.move(worker.StateRunning, worker.StatePaused) }
func (w *fakeWorker) Resume() bool { return w.move(worker.StatePaused, worker.StateRunning) }

func (w *fakeWorker) TogglePause() (worker.State, bool) {
	if w.Pause() {
		return worker.StatePaused, true
	}
	if w.Resume() {
		return worker.StateRunning, true
	}
	return w.Status().State, false
}

func (w *fakeWorker) Write(data []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != worker.StateRunning && w.state != worker.StatePaused {
		return false
	}
	w.written = append(w.written, string(data))
	return true
}

func (w *fakeWorker) Status() worker.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return worker.Status{State: orIdle(w.state)}
}

func orIdle(state worker.State) worker.State {
	if state == "" {
		return worker.StateIdle
	}
	return state
}

// staticSource always reports the same reading.
type staticSource struct {
	reading usage.Snapshot
}

func (s staticSource) FetchCurrentUsage(context.Context) (*usage.Snapshot, error) {
	reading := s.reading
	return &reading, nil
}

// memoryStats implements SwitchStats in memory.
type memoryStats struct {
	mu    sync.Mutex
	stats map[string]usagestore.SwitchStats
}

func (m *memoryStats) RecordSwitch(key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.stats[key]
	entry.Count++
	entry.LastUsed = at
	m.stats[key] = entry
	return nil
}

func (m *memoryStats) Stats() (map[string]usagestore.SwitchStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]usagestore.SwitchStats, len(m.stats))
	for key, value := range m.stats {
		copied[key] = value
	}
	return copied, nil
}

func (m *memoryStats) DeleteStats(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stats, key)
	return nil
}

// memoryLog implements LogFile in memory.
type memoryLog struct {
	lines   []string
	cleared bool
}

func (m *memoryLog) Clear() error {
	m.lines = nil
	m.cleared = true
	return nil
}

func (m *memoryLog) Tail(n int) ([]string, error) {
	if n <= 0 || n >= len(m.lines) {
		return slices.Clone(m.lines), nil
	}
	return slices.Clone(m.lines[len(m.lines)-n:]), nil
}

// stubRefresher returns a fixed token for every account, or the error
// registered for the account.
type stubRefresher struct {
	token    accounts.TokenData
	err      error
	failures map[string]error
	calls    []string
}

func (s *stubRefresher) Refresh(_ context.Context, account accounts.Account) (accounts.TokenData, error) {
	s.calls = append(s.calls, account.Key)
	if err, ok := s.failures[account.Key]; ok {
		return accounts.TokenData{}, err
	}
	return s.token, s.err
}

type fixture struct {
	router     *Router
	worker     *fakeWorker
	store      *accounts.Store
	reconciler *usage.Reconciler
	progress   *broadcast.Broadcaster[progress.Event]
	stats      *memoryStats
	log        *memoryLog
	tokensDir  string
}

type fixtureOption func(*Config)

func newFixture(t *testing.T, options ...fixtureOption) fixture {
	t.Helper()
	root := t.TempDir()
	tokensDir := filepath.Join(root, "tokens")
	if err := os.MkdirAll(tokensDir, 0o700); err != nil {
		t.Fatal(err)
	}
	store := accounts.New(accounts.Config{
		TokensDir:  tokensDir,
		ActivePath: filepath.Join(root, "sso", "kiro-auth-token.json"),
	})
	reconciler := usage.New(usage.Config{
		Source: staticSource{reading: usage.Snapshot{CurrentUsage: 42, UsageLimit: 500, PercentageUsed: 8.4, DaysRemaining: 12}},
		Defaults: usage.Options{
			MaxRetries:  usage.NoRetries,
			RetryDelays: []time.Duration{},
		},
	})
	f := fixture{
		worker:     &fakeWorker{},
		store:      store,
		reconciler: reconciler,
		progress:   broadcast.New[progress.Event](broadcast.Options{Name: "progress"}),
		stats:      &memoryStats{stats: make(map[string]usagestore.SwitchStats)},
		log:        &memoryLog{},
		tokensDir:  tokensDir,
	}
	config := Config{
		Credentials: store,
		Worker:      f.worker,
		Usage:       reconciler,
		Progress:    f.progress,
		WorkerSpec:  worker.Spec{Command: "autoreg", Args: []string{"run"}},
		WorkerOptions: worker.Options{
			IMAPServer:   "imap.example.com",
			IMAPUser:     "inbox@example.com",
			IMAPPassword: "hunter2",
		},
		Stats: f.stats,
		Log:   f.log,
	}
	for _, option := range options {
		option(&config)
	}
	f.router = New(config)
	return f
}

func (f fixture) saveToken(t *testing.T, filename string, token accounts.TokenData) {
	t.Helper()
	data, err := json.Marshal(token)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.tokensDir, filename), data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func fresh(name, refreshToken string) accounts.TokenData {
	return accounts.TokenData{
		AccessToken:  "access-" + name,
		RefreshToken: refreshToken,
		AccountName:  name,
		ExpiresAt:    time.Now().Add(time.Hour).Format(time.RFC3339),
	}
}

func TestUnknownKindIgnored(t *testing.T) {
	f := newFixture(t)
	result, err := f.router.Dispatch(context.Background(), Command{Kind: "teleport"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !result.Ignored {
		t.Error("unknown kind not marked ignored")
	}
}

func TestStartWorkerAppliesOverrides(t *testing.T) {
	f := newFixture(t)
	headless := true
	result, err := f.router.Dispatch(context.Background(), Command{
		Kind:   KindStartWorker,
		Worker: &WorkerOverrides{Headless: &headless, EmailDomain: "mail.example.org"},
	})
	if err != nil {
		t.Fatalf("start-worker: %v", err)
	}
	if result.Worker == nil || result.Worker.State != worker.StateRunning {
		t.Errorf("worker status = %+v, want running", result.Worker)
	}
	if len(f.worker.started) != 1 {
		t.Fatalf("worker started %d times, want 1", len(f.worker.started))
	}
	spec := f.worker.started[0]
	if spec.Command != "autoreg" || !slices.Contains(spec.Args, "--headless") {
		t.Errorf("spec = %+v, want autoreg with --headless", spec)
	}
	for _, want := range []string{"IMAP_SERVER=imap.example.com", "EMAIL_DOMAIN=mail.example.org"} {
		if !slices.Contains(spec.Env, want) {
			t.Errorf("spec env missing %q: %v", want, spec.Env)
		}
	}
}

func TestStartWorkerRejectsInvalidOptions(t *testing.T) {
	f := newFixture(t, func(config *Config) { config.WorkerOptions = worker.Options{} })
	_, err := f.router.Dispatch(context.Background(), Command{Kind: KindStartWorker})
	if !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("start-worker error = %v, want ErrInvalidCommand", err)
	}
	if len(f.worker.started) != 0 {
		t.Error("worker started despite invalid options")
	}
}

func TestStartWorkerFailurePublishesStopped(t *testing.T) {
	f := newFixture(t)
	f.worker.startErr = errors.New("exec: not found")
	if _, err := f.router.Dispatch(context.Background(), Command{Kind: KindStartWorker}); err == nil {
		t.Fatal("start-worker succeeded with failing spawn")
	}
	history := f.progress.History()
	if len(history) < 2 {
		t.Fatalf("history = %+v, want an error log and a status event", history)
	}
	last := history[len(history)-1]
	if last.Kind != progress.KindStatus || last.Running {
		t.Errorf("last event = %+v, want status running=false", last)
	}
	failure := history[len(history)-2]
	if failure.Kind != progress.KindLog || failure.Level != progress.LevelError {
		t.Errorf("event before status = %+v, want error log", failure)
	}
}

func TestWorkerTransitionsWhenIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.router.Dispatch(ctx, Command{Kind: KindStopWorker})
	if err != nil {
		t.Errorf("stop-worker when idle: %v", err)
	}
	if result.Message != "worker not running" {
		t.Errorf("stop-worker message = %q", result.Message)
	}
	if _, err := f.router.Dispatch(ctx, Command{Kind: KindPauseWorker}); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("pause-worker when idle error = %v, want ErrInvalidCommand", err)
	}
	if _, err := f.router.Dispatch(ctx, Command{Kind: KindWriteWorker, Data: "y\n"}); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("write-worker when idle error = %v, want ErrInvalidCommand", err)
	}
}

func TestWorkerTransitionsWhenRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.router.Dispatch(ctx, Command{Kind: KindStartWorker}); err != nil {
		t.Fatalf("start-worker: %v", err)
	}

	result, err := f.router.Dispatch(ctx, Command{Kind: KindTogglePause})
	if err != nil || result.Worker.State != worker.StatePaused {
		t.Errorf("toggle-pause = %+v, %v; want paused", result.Worker, err)
	}
	result, err = f.router.Dispatch(ctx, Command{Kind: KindResumeWorker})
	if err != nil || result.Worker.State != worker.StateRunning {
		t.Errorf("resume-worker = %+v, %v; want running", result.Worker, err)
	}
	if _, err := f.router.Dispatch(ctx, Command{Kind: KindWriteWorker, Data: "y\n"}); err != nil {
		t.Errorf("write-worker: %v", err)
	}
	if !slices.Equal(f.worker.written, []string{"y\n"}) {
		t.Errorf("written = %q", f.worker.written)
	}
	result, err = f.router.Dispatch(ctx, Command{Kind: KindStopWorker})
	if err != nil || result.Worker.State != worker.StateIdle {
		t.Errorf("stop-worker = %+v, %v; want idle", result.Worker, err)
	}
}

func TestSwitchAccountWritesActiveAndReconciles(t *testing.T) {
	f := newFixture(t)
	f.saveToken(t, "token-alpha.json", fresh("alpha", "refresh-alpha"))
	f.saveToken(t, "token-bravo.json", fresh("bravo", "refresh-bravo"))

	result, err := f.router.Dispatch(context.Background(), Command{Kind: KindSwitchAccount, Account: "bravo", Wait: true})
	if err != nil {
		t.Fatalf("switch-account: %v", err)
	}
	if result.Account != "bravo" {
		t.Errorf("account = %q, want bravo", result.Account)
	}
	if result.Usage == nil || result.Usage.CurrentUsage != 42 {
		t.Errorf("usage = %+v, want current 42", result.Usage)
	}

	active, err := f.store.ReadActive()
	if err != nil || active == nil {
		t.Fatalf("ReadActive = %v, %v", active, err)
	}
	if active.RefreshToken != "refresh-bravo" {
		t.Errorf("active refresh token = %q, want refresh-bravo", active.RefreshToken)
	}
	if got := f.reconciler.LoadForAccount("bravo"); got.CurrentUsage != 42 {
		t.Errorf("cached usage for bravo = %+v", got)
	}
	stats, _ := f.stats.Stats()
	if stats["bravo"].Count != 1 {
		t.Errorf("switch count for bravo = %d, want 1", stats["bravo"].Count)
	}
}

func TestSwitchAccountUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.router.Dispatch(context.Background(), Command{Kind: KindSwitchAccount, Account: "nobody"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("switch-account error = %v, want ErrNotFound", err)
	}
}

func TestSwitchExpiredAccount(t *testing.T) {
	expired := fresh("stale", "refresh-stale")
	expired.ExpiresAt = time.Now().Add(-time.Hour).Format(time.RFC3339)

	t.Run("without refresher", func(t *testing.T) {
		f := newFixture(t)
		f.saveToken(t, "token-stale.json", expired)
		_, err := f.router.Dispatch(context.Background(), Command{Kind: KindSwitchAccount, Account: "stale"})
		if !errors.Is(err, ErrCredentialExpired) {
			t.Errorf("switch-account error = %v, want ErrCredentialExpired", err)
		}
		if active, _ := f.store.ReadActive(); active != nil {
			t.Errorf("active token written for expired account: %+v", active)
		}
	})

	t.Run("with refresher", func(t *testing.T) {
		refreshed := fresh("stale", "refresh-renewed")
		refresher := &stubRefresher{token: refreshed}
		f := newFixture(t, func(config *Config) { config.Refresher = refresher })
		f.saveToken(t, "token-stale.json", expired)
		if _, err := f.router.Dispatch(context.Background(), Command{Kind: KindSwitchAccount, Account: "stale", Wait: true}); err != nil {
			t.Fatalf("switch-account: %v", err)
		}
		if !slices.Equal(refresher.calls, []string{"stale"}) {
			t.Errorf("refresher calls = %v", refresher.calls)
		}
		active, _ := f.store.ReadActive()
		if active == nil || active.RefreshToken != "refresh-renewed" {
			t.Errorf("active = %+v, want refreshed token", active)
		}
	})

	t.Run("refresher fails", func(t *testing.T) {
		refresher := &stubRefresher{err: errors.New("invalid_grant")}
		f := newFixture(t, func(config *Config) { config.Refresher = refresher })
		f.saveToken(t, "token-stale.json", expired)
		_, err := f.router.Dispatch(context.Background(), Command{Kind: KindSwitchAccount, Account: "stale"})
		if !errors.Is(err, ErrCredentialExpired) {
			t.Errorf("switch-account error = %v, want ErrCredentialExpired", err)
		}
	})
}

func TestRefreshTokenNeedsRefresher(t *testing.T) {
	f := newFixture(t)
	f.saveToken(t, "token-alpha.json", fresh("alpha", "refresh-alpha"))
	_, err := f.router.Dispatch(context.Background(), Command{Kind: KindRefreshToken, Account: "alpha"})
	if !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("refresh-token error = %v, want ErrInvalidCommand", err)
	}
}

func TestRefreshTokenWithActivate(t *testing.T) {
	refresher := &stubRefresher{token: fresh("alpha", "refresh-new")}
	f := newFixture(t, func(config *Config) { config.Refresher = refresher })
	f.saveToken(t, "token-alpha.json", fresh("alpha", "refresh-alpha"))

	result, err := f.router.Dispatch(context.Background(), Command{Kind: KindRefreshToken, Account: "alpha"})
	if err != nil {
		t.Fatalf("refresh-token: %v", err)
	}
	if active, _ := f.store.ReadActive(); active != nil {
		t.Errorf("refresh-token without activate wrote the active token")
	}
	if result.Account != "alpha" {
		t.Errorf("account = %q", result.Account)
	}

	if _, err := f.router.Dispatch(context.Background(), Command{Kind: KindRefreshToken, Account: "alpha", Activate: true, Wait: true}); err != nil {
		t.Fatalf("refresh-token activate: %v", err)
	}
	active, _ := f.store.ReadActive()
	if active == nil || active.RefreshToken != "refresh-new" {
		t.Errorf("active = %+v, want refreshed token", active)
	}
}

func TestRefreshAllRenewsEligibleAccounts(t *testing.T) {
	refresher := &stubRefresher{
		token:    fresh("any", "refresh-new"),
		failures: map[string]error{"charlie": errors.New("invalid_grant")},
	}
	f := newFixture(t, func(config *Config) { config.Refresher = refresher })
	withClient := func(token accounts.TokenData) accounts.TokenData {
		token.ClientID = "client-" + token.AccountName
		token.ClientSecret = "secret-" + token.AccountName
		return token
	}
	f.saveToken(t, "token-alpha.json", withClient(fresh("alpha", "refresh-alpha")))
	f.saveToken(t, "token-bravo.json", fresh("bravo", "refresh-bravo"))
	f.saveToken(t, "token-charlie.json", withClient(fresh("charlie", "refresh-charlie")))
	f.saveToken(t, "token-delta.json", withClient(fresh("delta", "")))
	f.saveToken(t, "token-echo.json", withClient(fresh("echo", "refresh-echo")))

	result, err := f.router.Dispatch(context.Background(), Command{Kind: KindRefreshAll})
	if err == nil || !strings.Contains(err.Error(), "charlie") || !strings.Contains(err.Error(), "invalid_grant") {
		t.Errorf("refresh-all error = %v, want the charlie failure", err)
	}
	if !slices.Equal(refresher.calls, []string{"alpha", "charlie", "echo"}) {
		t.Errorf("refresher calls = %v, want only accounts with client credentials and a refresh token", refresher.calls)
	}
	if !slices.Equal(result.Refreshed, []string{"alpha", "echo"}) {
		t.Errorf("refreshed = %v, want [alpha echo]", result.Refreshed)
	}
	if result.Message != "refreshed 2 of 3 accounts" {
		t.Errorf("message = %q", result.Message)
	}
}

func TestRefreshAllWithoutRefresher(t *testing.T) {
	f := newFixture(t)
	_, err := f.router.Dispatch(context.Background(), Command{Kind: KindRefreshAll})
	if !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("refresh-all error = %v, want ErrInvalidCommand", err)
	}
}

func TestImportThenExportTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data, err := json.Marshal(fresh("imported", "refresh-imported"))
	if err != nil {
		t.Fatal(err)
	}

	result, err := f.router.Dispatch(ctx, Command{Kind: KindImportToken, Data: string(data)})
	if err != nil {
		t.Fatalf("import-token: %v", err)
	}
	if result.Account != "imported" {
		t.Errorf("imported account = %q", result.Account)
	}
	if _, err := os.Stat(filepath.Join(f.tokensDir, "token-imported.json")); err != nil {
		t.Errorf("token file not written: %v", err)
	}
	if _, err := f.router.Dispatch(ctx, Command{Kind: KindImportToken, Data: string(data)}); !errors.Is(err, accounts.ErrExists) {
		t.Errorf("duplicate import error = %v, want ErrExists", err)
	}
	if _, err := f.router.Dispatch(ctx, Command{Kind: KindImportToken}); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("empty import error = %v, want ErrInvalidCommand", err)
	}

	result, err = f.router.Dispatch(ctx, Command{Kind: KindExportAccounts})
	if err != nil {
		t.Fatalf("export-accounts: %v", err)
	}
	var exported []accounts.TokenData
	if err := json.Unmarshal(result.Export, &exported); err != nil {
		t.Fatalf("export is not a JSON array: %v", err)
	}
	if len(exported) != 1 || exported[0].AccountName != "imported" || exported[0].RefreshToken != "refresh-imported" {
		t.Errorf("exported = %+v", exported)
	}
}

func TestDeleteAccountForgetsEverything(t *testing.T) {
	f := newFixture(t)
	f.saveToken(t, "token-alpha.json", fresh("alpha", "refresh-alpha"))
	f.reconciler.UpdateForAccount("alpha", usage.Snapshot{CurrentUsage: 10, UsageLimit: 500})
	f.stats.RecordSwitch("alpha", time.Now())

	result, err := f.router.Dispatch(context.Background(), Command{Kind: KindDeleteAccount, Account: "alpha"})
	if err != nil {
		t.Fatalf("delete-account: %v", err)
	}
	if !slices.Equal(result.Deleted, []string{"alpha"}) {
		t.Errorf("deleted = %v", result.Deleted)
	}
	if _, err := f.store.Find("alpha"); !errors.Is(err, accounts.ErrNotFound) {
		t.Errorf("Find after delete = %v, want not found", err)
	}
	if f.reconciler.LoadForAccount("alpha").Known() {
		t.Error("usage for deleted account still cached")
	}
	if stats, _ := f.stats.Stats(); len(stats) != 0 {
		t.Errorf("stats after delete = %v", stats)
	}
	if _, err := f.router.Dispatch(context.Background(), Command{Kind: KindDeleteAccount, Account: "alpha"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestDeleteExhausted(t *testing.T) {
	f := newFixture(t)
	f.saveToken(t, "token-alpha.json", fresh("alpha", "refresh-alpha"))
	f.saveToken(t, "token-bravo.json", fresh("bravo", "refresh-bravo"))
	f.saveToken(t, "token-charlie.json", fresh("charlie", "refresh-charlie"))
	f.reconciler.UpdateForAccount("alpha", usage.Snapshot{CurrentUsage: 500, UsageLimit: 500, PercentageUsed: 100})
	f.reconciler.UpdateForAccount("bravo", usage.Snapshot{CurrentUsage: 20, UsageLimit: 500, PercentageUsed: 4})
	f.reconciler.UpdateForAccount("charlie", usage.Snapshot{UsageLimit: 500, Suspended: true})

	result, err := f.router.Dispatch(context.Background(), Command{Kind: KindDeleteExhausted})
	if err != nil {
		t.Fatalf("delete-exhausted: %v", err)
	}
	if !slices.Equal(result.Deleted, []string{"alpha", "charlie"}) {
		t.Errorf("deleted = %v, want [alpha charlie]", result.Deleted)
	}
	remaining, _ := f.store.List()
	if len(remaining) != 1 || remaining[0].Key != "bravo" {
		t.Errorf("remaining = %+v, want only bravo", remaining)
	}
}

func TestListAccountsIncludesUsageAndStats(t *testing.T) {
	f := newFixture(t)
	f.saveToken(t, "token-alpha.json", fresh("alpha", "refresh-alpha"))
	f.saveToken(t, "token-bravo.json", fresh("bravo", "refresh-bravo"))
	f.reconciler.UpdateForAccount("bravo", usage.Snapshot{CurrentUsage: 75, UsageLimit: 500, PercentageUsed: 15})
	f.stats.RecordSwitch("bravo", time.Now())
	f.stats.RecordSwitch("bravo", time.Now())

	result, err := f.router.Dispatch(context.Background(), Command{Kind: KindListAccounts})
	if err != nil {
		t.Fatalf("list-accounts: %v", err)
	}
	if len(result.Accounts) != 2 {
		t.Fatalf("accounts = %+v, want 2", result.Accounts)
	}
	byKey := map[string]AccountView{}
	for _, view := range result.Accounts {
		byKey[view.Key] = view
	}
	alpha := byKey["alpha"]
	if alpha.Usage.CurrentUsage != usage.Unknown || !alpha.Stale {
		t.Errorf("alpha = usage %d stale %v, want unknown and stale", alpha.Usage.CurrentUsage, alpha.Stale)
	}
	bravo := byKey["bravo"]
	if bravo.Usage.CurrentUsage != 75 || bravo.SwitchCount != 2 {
		t.Errorf("bravo = usage %d switches %d, want 75 and 2", bravo.Usage.CurrentUsage, bravo.SwitchCount)
	}
	if bravo.Stale {
		t.Error("bravo has a fresh reading but is marked stale")
	}
}

func TestUsageCommands(t *testing.T) {
	f := newFixture(t)
	f.saveToken(t, "token-alpha.json", fresh("alpha", "refresh-alpha"))
	ctx := context.Background()
	if _, err := f.router.Dispatch(ctx, Command{Kind: KindSwitchAccount, Account: "alpha", Wait: true}); err != nil {
		t.Fatalf("switch-account: %v", err)
	}

	result, err := f.router.Dispatch(ctx, Command{Kind: KindRefreshUsage})
	if err != nil {
		t.Fatalf("refresh-usage: %v", err)
	}
	if result.Account != "alpha" || result.Usage == nil || result.Usage.CurrentUsage != 42 {
		t.Errorf("refresh-usage = %+v", result)
	}

	result, _ = f.router.Dispatch(ctx, Command{Kind: KindLoadUsage, Account: "alpha"})
	if result.Usage == nil || result.Usage.CurrentUsage != 42 {
		t.Errorf("load-usage alpha = %+v", result.Usage)
	}

	if _, err := f.router.Dispatch(ctx, Command{Kind: KindClearUsageCache}); err != nil {
		t.Fatalf("clear-usage-cache: %v", err)
	}
	result, _ = f.router.Dispatch(ctx, Command{Kind: KindLoadUsage})
	if result.Usage != nil {
		t.Errorf("current usage after clear = %+v, want nil", result.Usage)
	}
	result, _ = f.router.Dispatch(ctx, Command{Kind: KindLoadUsage, Account: "alpha"})
	if result.Usage.Known() {
		t.Errorf("alpha usage after clear = %+v, want placeholder", result.Usage)
	}
}

func TestLogCommands(t *testing.T) {
	f := newFixture(t)
	f.log.lines = []string{"[10:00:00] ℹ one", "[10:00:01] ✓ two", "[10:00:02] ✗ three"}
	f.progress.Publish(progress.Log(time.Now(), progress.LevelInfo, "hello"))
	ctx := context.Background()

	result, err := f.router.Dispatch(ctx, Command{Kind: KindGetLog, Lines: 2})
	if err != nil {
		t.Fatalf("get-log: %v", err)
	}
	if len(result.Events) != 1 || result.Events[0].Message != "hello" {
		t.Errorf("events = %+v", result.Events)
	}
	if !slices.Equal(result.Lines, []string{"[10:00:01] ✓ two", "[10:00:02] ✗ three"}) {
		t.Errorf("lines = %q", result.Lines)
	}

	if _, err := f.router.Dispatch(ctx, Command{Kind: KindClearLog}); err != nil {
		t.Fatalf("clear-log: %v", err)
	}
	if f.progress.Len() != 0 || !f.log.cleared {
		t.Errorf("clear-log left history=%d cleared=%v", f.progress.Len(), f.log.cleared)
	}
}
