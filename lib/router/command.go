// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"time"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/accounts"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/progress"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/usage"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/worker"
)

// Kind names a command.
type Kind string

const (
	KindStartWorker     Kind = "start-worker"
	KindStopWorker      Kind = "stop-worker"
	KindTogglePause     Kind = "toggle-pause"
	KindPauseWorker     Kind = "pause-worker"
	KindResumeWorker    Kind = "resume-worker"
	KindWriteWorker     Kind = "write-worker"
	KindWorkerStatus    Kind = "worker-status"
	KindSwitchAccount   Kind = "switch-account"
	KindDeleteAccount   Kind = "delete-account"
	KindDeleteExhausted Kind = "delete-exhausted"
	KindListAccounts    Kind = "list-accounts"
	KindRefreshToken    Kind = "refresh-token"
	KindRefreshAll      Kind = "refresh-all"
	KindImportToken     Kind = "import-token"
	KindExportAccounts  Kind = "export-accounts"
	KindRefreshUsage    Kind = "refresh-usage"
	KindLoadUsage       Kind = "load-usage"
	KindClearUsageCache Kind = "clear-usage-cache"
	KindClearLog        Kind = "clear-log"
	KindGetLog          Kind = "get-log"
)

// Kinds lists the vocabulary in a stable order.
var Kinds = []Kind{
	KindStartWorker, KindStopWorker, KindTogglePause, KindPauseWorker,
	KindResumeWorker, KindWriteWorker, KindWorkerStatus, KindSwitchAccount,
	KindDeleteAccount, KindDeleteExhausted, KindListAccounts, KindRefreshToken,
	KindRefreshAll, KindImportToken, KindExportAccounts, KindRefreshUsage,
	KindLoadUsage, KindClearUsageCache, KindClearLog, KindGetLog,
}

// Command is one operator request. Only the fields its Kind uses are
// read.
type Command struct {
	Kind Kind `json:"kind"`

	// Account is the target of switch-account, delete-account,
	// refresh-token, and load-usage, and the name import-token saves
	// under.
	Account string `json:"account,omitempty"`

	// Worker overrides the daemon's worker options for start-worker.
	Worker *WorkerOverrides `json:"worker,omitempty"`

	// Data is written to the worker's stdin by write-worker. For
	// import-token it is the token file content.
	Data string `json:"data,omitempty"`

	// Activate makes refresh-token also switch to the refreshed
	// account.
	Activate bool `json:"activate,omitempty"`

	// Wait makes switch-account return only after usage has been
	// reconciled for the new account.
	Wait bool `json:"wait,omitempty"`

	// Lines asks get-log for that many lines of the persisted log file
	// in addition to the in-memory history.
	Lines int `json:"lines,omitempty"`
}

// WorkerOverrides replaces the configured worker options field by
// field. Nil and empty fields keep the configured value.
type WorkerOverrides struct {
	Headless        *bool  `json:"headless,omitempty"`
	SpoofingEnabled *bool  `json:"spoofing_enabled,omitempty"`
	IMAPServer      string `json:"imap_server,omitempty"`
	IMAPUser        string `json:"imap_user,omitempty"`
	IMAPPassword    string `json:"imap_password,omitempty"`
	EmailDomain     string `json:"email_domain,omitempty"`
	EmailStrategy   string `json:"email_strategy,omitempty"`
}

// applyTo returns base with the overrides applied.
func (o *WorkerOverrides) applyTo(base worker.Options) worker.Options {
	if o == nil {
		return base
	}
	if o.Headless != nil {
		base.Headless = *o.Headless
	}
	if o.SpoofingEnabled != nil {
		base.SpoofingEnabled = *o.SpoofingEnabled
	}
	overrideString(&base.IMAPServer, o.IMAPServer)
	overrideString(&base.IMAPUser, o.IMAPUser)
	overrideString(&base.IMAPPassword, o.IMAPPassword)
	overrideString(&base.EmailDomain, o.EmailDomain)
	overrideString(&base.EmailStrategy, o.EmailStrategy)
	return base
}

func overrideString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// Result is the outcome of a dispatched command.
type Result struct {
	// Ignored is set for command kinds this router does not know.
	Ignored bool `json:"ignored,omitempty"`

	Message string `json:"message,omitempty"`

	Worker   *worker.Status  `json:"worker,omitempty"`
	Account  string          `json:"account,omitempty"`
	Accounts []AccountView   `json:"accounts,omitempty"`
	Usage    *usage.Snapshot `json:"usage,omitempty"`
	Deleted  []string        `json:"deleted,omitempty"`

	// Refreshed lists the accounts refresh-all renewed.
	Refreshed []string `json:"refreshed,omitempty"`

	// Export is the JSON array of saved tokens from export-accounts.
	Export []byte `json:"export,omitempty"`

	// Events is the in-memory progress history, oldest first.
	Events []progress.Event `json:"events,omitempty"`

	// Lines is the tail of the persisted log file.
	Lines []string `json:"lines,omitempty"`
}

// AccountView is one row of list-accounts.
type AccountView struct {
	accounts.Account

	Usage usage.AccountUsage `json:"usage"`

	// Stale is set when no usage reading newer than the reconciler's
	// staleness window exists for the account.
	Stale bool `json:"stale"`

	SwitchCount int       `json:"switch_count"`
	LastUsed    time.Time `json:"last_used"`
}
