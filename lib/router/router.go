// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/accounts"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/broadcast"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/clock"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/progress"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/usage"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/usagestore"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/worker"
)

var (
	// ErrNotFound is returned when a command names an unknown account.
	ErrNotFound = errors.New("account not found")

	// ErrCredentialExpired is returned when switching to an expired
	// account that cannot be refreshed.
	ErrCredentialExpired = errors.New("token expired")

	// ErrInvalidCommand is returned for commands that are malformed or
	// not applicable in the current state.
	ErrInvalidCommand = errors.New("invalid command")
)

// CredentialStore is the subset of accounts.Store the router uses.
type CredentialStore interface {
	List() ([]accounts.Account, error)
	Find(key string) (accounts.Account, error)
	Active() (*accounts.Account, error)
	WriteActive(token accounts.TokenData) error
	Delete(key string) error
	Import(name string, data []byte) (accounts.Account, error)
	Export() ([]byte, error)
}

// Worker is the subset of worker.Supervisor the router uses.
type Worker interface {
	Start(ctx context.Context, spec worker.Spec) (int, error)
	Stop() bool
	Pause() bool
	Resume() bool
	TogglePause() (worker.State, bool)
	Write(data []byte) bool
	Status() worker.Status
}

// SwitchStats records how often accounts are activated. Implemented
// by usagestore.Store.
type SwitchStats interface {
	RecordSwitch(key string, at time.Time) error
	Stats() (map[string]usagestore.SwitchStats, error)
	DeleteStats(key string) error
}

// LogFile is the persisted event log. Implemented by logsink.Sink.
type LogFile interface {
	Clear() error
	Tail(n int) ([]string, error)
}

// Config wires the router to its components. Credentials, Worker,
// Usage, and Progress are required.
type Config struct {
	Credentials CredentialStore
	Worker      Worker
	Usage       *usage.Reconciler
	Progress    *broadcast.Broadcaster[progress.Event]

	// WorkerSpec is the base process description for start-worker.
	WorkerSpec worker.Spec

	// WorkerOptions are the configured defaults that commands may
	// override.
	WorkerOptions worker.Options

	// Refresher renews expired tokens. Optional.
	Refresher accounts.Refresher

	// Stats records switches. Optional.
	Stats SwitchStats

	// Log is the persisted event log. Optional.
	Log LogFile

	// Context bounds background usage reconciliation started by
	// switch-account. Defaults to context.Background().
	Context context.Context

	Clock  clock.Clock
	Logger *slog.Logger
}

// Router dispatches commands.
type Router struct {
	credentials   CredentialStore
	worker        Worker
	usage         *usage.Reconciler
	progress      *broadcast.Broadcaster[progress.Event]
	workerSpec    worker.Spec
	workerOptions worker.Options
	refresher     accounts.Refresher
	stats         SwitchStats
	log           LogFile
	context       context.Context
	clock         clock.Clock
	logger        *slog.Logger
}

// New returns a Router for config.
func New(config Config) *Router {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Context == nil {
		config.Context = context.Background()
	}
	return &Router{
		credentials:   config.Credentials,
		worker:        config.Worker,
		usage:         config.Usage,
		progress:      config.Progress,
		workerSpec:    config.WorkerSpec,
		workerOptions: config.WorkerOptions,
		refresher:     config.Refresher,
		stats:         config.Stats,
		log:           config.Log,
		context:       config.Context,
		clock:         config.Clock,
		logger:        config.Logger,
	}
}

// Dispatch executes command. Errors are meant for the operator: they
// wrap ErrNotFound, ErrCredentialExpired, or ErrInvalidCommand where
// one applies.
func (r *Router) Dispatch(ctx context.Context, command Command) (Result, error) {
	switch command.Kind {
	case KindStartWorker:
		return r.startWorker(ctx, command)
	case KindStopWorker:
		return r.stopWorker()
	case KindTogglePause:
		state, ok := r.worker.TogglePause()
		return r.workerTransition(ok, fmt.Sprintf("worker %s", state))
	case KindPauseWorker:
		return r.workerTransition(r.worker.Pause(), "worker paused")
	case KindResumeWorker:
		return r.workerTransition(r.worker.Resume(), "worker resumed")
	case KindWriteWorker:
		return r.writeWorker(command)
	case KindWorkerStatus:
		return r.workerResult(""), nil
	case KindSwitchAccount:
		return r.switchAccount(ctx, command)
	case KindDeleteAccount:
		return r.deleteAccount(command)
	case KindDeleteExhausted:
		return r.deleteExhausted()
	case KindListAccounts:
		return r.listAccounts()
	case KindRefreshToken:
		return r.refreshToken(ctx, command)
	case KindRefreshAll:
		return r.refreshAll(ctx)
	case KindImportToken:
		return r.importToken(command)
	case KindExportAccounts:
		data, err := r.credentials.Export()
		if err != nil {
			return Result{}, fmt.Errorf("exporting accounts: %w", err)
		}
		return Result{Export: data}, nil
	case KindRefreshUsage:
		return r.refreshUsage(ctx)
	case KindLoadUsage:
		return r.loadUsage(command)
	case KindClearUsageCache:
		r.usage.ClearCache()
		return Result{Message: "usage cache cleared"}, nil
	case KindClearLog:
		return r.clearLog()
	case KindGetLog:
		return r.getLog(command)
	default:
		r.logger.Debug("ignoring unknown command", "kind", command.Kind)
		return Result{Ignored: true}, nil
	}
}

func (r *Router) workerResult(message string) Result {
	status := r.worker.Status()
	return Result{Message: message, Worker: &status}
}

func (r *Router) workerTransition(ok bool, message string) (Result, error) {
	if !ok {
		return r.workerResult(""), fmt.Errorf("worker is not running: %w", ErrInvalidCommand)
	}
	return r.workerResult(message), nil
}

func (r *Router) startWorker(ctx context.Context, command Command) (Result, error) {
	options := command.Worker.applyTo(r.workerOptions)
	if err := options.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	spec := options.Apply(r.workerSpec)
	if spec.Command == "" {
		return Result{}, fmt.Errorf("no worker command configured: %w", ErrInvalidCommand)
	}

	r.publishLog(progress.LevelInfo, "Starting auto-registration")
	pid, err := r.worker.Start(ctx, spec)
	if err != nil {
		r.publishLog(progress.LevelError, fmt.Sprintf("Failed to start auto-registration: %v", err))
		r.progress.Publish(progress.Status(r.clock.Now(), false))
		return Result{}, err
	}
	return r.workerResult(fmt.Sprintf("worker started (pid %d)", pid)), nil
}

func (r *Router) stopWorker() (Result, error) {
	if !r.worker.Stop() {
		return r.workerResult("worker not running"), nil
	}
	return r.workerResult("worker stopped"), nil
}

func (r *Router) writeWorker(command Command) (Result, error) {
	if command.Data == "" {
		return Result{}, fmt.Errorf("write-worker needs data: %w", ErrInvalidCommand)
	}
	if !r.worker.Write([]byte(command.Data)) {
		return Result{}, fmt.Errorf("worker is not accepting input: %w", ErrInvalidCommand)
	}
	return r.workerResult(""), nil
}

// find resolves an account key, translating the store's sentinel.
func (r *Router) find(key string) (accounts.Account, error) {
	account, err := r.credentials.Find(key)
	if errors.Is(err, accounts.ErrNotFound) {
		return accounts.Account{}, fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	return account, err
}

func (r *Router) switchAccount(ctx context.Context, command Command) (Result, error) {
	account, err := r.find(command.Account)
	if err != nil {
		return Result{}, err
	}

	previous := ""
	if active, err := r.credentials.Active(); err != nil {
		r.logger.Warn("resolving active account failed", "error", err)
	} else if active != nil {
		previous = active.Key
	}

	token := account.Token
	if account.Expired {
		if r.refresher == nil {
			return Result{}, fmt.Errorf("%s: %w", account.Key, ErrCredentialExpired)
		}
		token, err = r.refresher.Refresh(ctx, account)
		if err != nil {
			r.logger.Warn("token refresh failed", "account", account.Key, "error", err)
			return Result{}, fmt.Errorf("%s: %w: %w", account.Key, ErrCredentialExpired, err)
		}
	}

	return r.activate(ctx, account.Key, previous, token, command.Wait)
}

// activate writes token as the active credential and reconciles usage.
func (r *Router) activate(ctx context.Context, key, previous string, token accounts.TokenData, wait bool) (Result, error) {
	if err := r.credentials.WriteActive(token); err != nil {
		return Result{}, fmt.Errorf("switching to %s: %w", key, err)
	}
	if r.stats != nil {
		if err := r.stats.RecordSwitch(key, r.clock.Now()); err != nil {
			r.logger.Warn("recording switch failed", "account", key, "error", err)
		}
	}
	r.publishLog(progress.LevelSuccess, fmt.Sprintf("Switched to %s", key))
	r.logger.Info("account switched", "account", key, "previous", previous)

	oldKey := previous
	if oldKey == key {
		oldKey = ""
	}
	result := Result{Account: key, Message: fmt.Sprintf("switched to %s", key)}
	if !wait {
		go r.reconcile(r.context, oldKey, key)
		return result, nil
	}
	snapshot, err := r.usage.RefreshAfterSwitch(ctx, oldKey, key, usage.Options{})
	if err != nil {
		return result, fmt.Errorf("reconciling usage for %s: %w", key, err)
	}
	result.Usage = snapshot
	return result, nil
}

func (r *Router) reconcile(ctx context.Context, oldKey, newKey string) {
	snapshot, err := r.usage.RefreshAfterSwitch(ctx, oldKey, newKey, usage.Options{})
	switch {
	case errors.Is(err, usage.ErrSuperseded):
		r.logger.Debug("usage reconciliation superseded", "account", newKey)
	case err != nil:
		r.logger.Debug("usage reconciliation abandoned", "account", newKey, "error", err)
	case snapshot == nil:
		r.logger.Info("usage not available after switch", "account", newKey)
	}
}

func (r *Router) deleteAccount(command Command) (Result, error) {
	account, err := r.find(command.Account)
	if err != nil {
		return Result{}, err
	}
	if err := r.remove(account.Key); err != nil {
		return Result{}, err
	}
	return Result{Deleted: []string{account.Key}, Message: fmt.Sprintf("deleted %s", account.Key)}, nil
}

// remove deletes an account and everything remembered about it.
func (r *Router) remove(key string) error {
	if err := r.credentials.Delete(key); err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return fmt.Errorf("%q: %w", key, ErrNotFound)
		}
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	r.usage.InvalidateAccount(key)
	if r.stats != nil {
		if err := r.stats.DeleteStats(key); err != nil {
			r.logger.Warn("deleting switch stats failed", "account", key, "error", err)
		}
	}
	return nil
}

func (r *Router) deleteExhausted() (Result, error) {
	all, err := r.credentials.List()
	if err != nil {
		return Result{}, fmt.Errorf("listing accounts: %w", err)
	}
	var deleted []string
	var failures []error
	for _, account := range all {
		if !r.usage.LoadForAccount(account.Key).Exhausted() {
			continue
		}
		if err := r.remove(account.Key); err != nil {
			failures = append(failures, err)
			continue
		}
		deleted = append(deleted, account.Key)
	}
	result := Result{Deleted: deleted, Message: fmt.Sprintf("deleted %d exhausted accounts", len(deleted))}
	if len(deleted) > 0 {
		r.publishLog(progress.LevelInfo, fmt.Sprintf("Deleted %d exhausted accounts", len(deleted)))
	}
	return result, errors.Join(failures...)
}

func (r *Router) listAccounts() (Result, error) {
	all, err := r.credentials.List()
	if err != nil {
		return Result{}, fmt.Errorf("listing accounts: %w", err)
	}
	var stats map[string]usagestore.SwitchStats
	if r.stats != nil {
		if stats, err = r.stats.Stats(); err != nil {
			r.logger.Warn("reading switch stats failed", "error", err)
		}
	}
	views := make([]AccountView, 0, len(all))
	for _, account := range all {
		view := AccountView{
			Account: account,
			Usage:   r.usage.UsageFor(account.Key),
			Stale:   r.usage.IsStale(account.Key),
		}
		if entry, ok := stats[account.Key]; ok {
			view.SwitchCount = entry.Count
			view.LastUsed = entry.LastUsed
		}
		views = append(views, view)
	}
	return Result{Accounts: views}, nil
}

func (r *Router) refreshToken(ctx context.Context, command Command) (Result, error) {
	if r.refresher == nil {
		return Result{}, fmt.Errorf("no token refresher configured: %w", ErrInvalidCommand)
	}
	account, err := r.find(command.Account)
	if err != nil {
		return Result{}, err
	}
	token, err := r.refresher.Refresh(ctx, account)
	if err != nil {
		r.publishLog(progress.LevelError, fmt.Sprintf("Token refresh failed for %s", account.Key))
		return Result{}, fmt.Errorf("refreshing %s: %w", account.Key, err)
	}
	r.publishLog(progress.LevelSuccess, fmt.Sprintf("Token refreshed for %s", account.Key))
	if !command.Activate {
		return Result{Account: account.Key, Message: fmt.Sprintf("refreshed %s", account.Key)}, nil
	}

	previous := ""
	if active, err := r.credentials.Active(); err == nil && active != nil {
		previous = active.Key
	}
	return r.activate(ctx, account.Key, previous, token, command.Wait)
}

// refreshAll renews every saved token that carries the client
// credentials a refresh needs. Failures do not stop the loop.
func (r *Router) refreshAll(ctx context.Context) (Result, error) {
	if r.refresher == nil {
		return Result{}, fmt.Errorf("no token refresher configured: %w", ErrInvalidCommand)
	}
	all, err := r.credentials.List()
	if err != nil {
		return Result{}, fmt.Errorf("listing accounts: %w", err)
	}
	var refreshed []string
	var failures []error
	eligible := 0
	for _, account := range all {
		token := account.Token
		if token.RefreshToken == "" || token.ClientID == "" || token.ClientSecret == "" {
			continue
		}
		eligible++
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		if _, err := r.refresher.Refresh(ctx, account); err != nil {
			r.logger.Warn("token refresh failed", "account", account.Key, "error", err)
			failures = append(failures, fmt.Errorf("refreshing %s: %w", account.Key, err))
			continue
		}
		refreshed = append(refreshed, account.Key)
	}

	level := progress.LevelSuccess
	if len(failures) > 0 {
		level = progress.LevelWarning
	}
	r.publishLog(level, fmt.Sprintf("Refreshed %d of %d accounts", len(refreshed), eligible))
	result := Result{
		Refreshed: refreshed,
		Message:   fmt.Sprintf("refreshed %d of %d accounts", len(refreshed), eligible),
	}
	return result, errors.Join(failures...)
}

func (r *Router) importToken(command Command) (Result, error) {
	if command.Data == "" {
		return Result{}, fmt.Errorf("import-token needs the token content: %w", ErrInvalidCommand)
	}
	account, err := r.credentials.Import(command.Account, []byte(command.Data))
	if err != nil {
		return Result{}, fmt.Errorf("importing token: %w", err)
	}
	r.publishLog(progress.LevelSuccess, fmt.Sprintf("Imported account %s", account.Key))
	return Result{Account: account.Key, Message: fmt.Sprintf("imported %s", account.Key)}, nil
}

func (r *Router) refreshUsage(ctx context.Context) (Result, error) {
	key := ""
	if active, err := r.credentials.Active(); err != nil {
		r.logger.Warn("resolving active account failed", "error", err)
	} else if active != nil {
		key = active.Key
	}
	snapshot, err := r.usage.Refresh(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("refreshing usage: %w", err)
	}
	return Result{Account: key, Usage: snapshot}, nil
}

func (r *Router) loadUsage(command Command) (Result, error) {
	if command.Account == "" {
		return Result{Usage: r.usage.Current()}, nil
	}
	snapshot := r.usage.LoadForAccount(command.Account)
	return Result{Account: command.Account, Usage: &snapshot}, nil
}

func (r *Router) clearLog() (Result, error) {
	r.progress.Clear()
	if r.log != nil {
		if err := r.log.Clear(); err != nil {
			return Result{}, fmt.Errorf("clearing log file: %w", err)
		}
	}
	return Result{Message: "log cleared"}, nil
}

func (r *Router) getLog(command Command) (Result, error) {
	result := Result{Events: r.progress.History()}
	if command.Lines > 0 && r.log != nil {
		lines, err := r.log.Tail(command.Lines)
		if err != nil {
			return result, fmt.Errorf("reading log file: %w", err)
		}
		result.Lines = lines
	}
	return result, nil
}

func (r *Router) publishLog(level progress.Level, message string) {
	r.progress.Publish(progress.Log(r.clock.Now(), level, message))
}
