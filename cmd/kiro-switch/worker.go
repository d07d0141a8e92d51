// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/hj01857655/Kiro-auto-reg-extension/cmd/kiro-switch/cli"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/router"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/secret"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/worker"
)

// exitWorkerIdle is the status exit code when no worker is running.
const exitWorkerIdle = 3

type startParams struct {
	Connection       connection
	Headless         bool   `flag:"headless" desc:"run the browser without a window"`
	NoSpoofing       bool   `flag:"no-spoofing" desc:"disable browser fingerprint spoofing"`
	IMAPServer       string `flag:"imap-server" desc:"IMAP server for verification mail"`
	IMAPUser         string `flag:"imap-user" desc:"IMAP user"`
	IMAPPasswordFile string `flag:"imap-password-file" desc:"file holding the IMAP password (- for stdin)"`
	EmailDomain      string `flag:"email-domain" desc:"domain for generated addresses"`
	EmailStrategy    string `flag:"email-strategy" desc:"one of single, plus_alias, catch_all, pool"`
}

// overrides converts the flags into the fields the daemon should
// change. Unset flags keep the daemon's configured values.
func (p *startParams) overrides() (*router.WorkerOverrides, error) {
	overrides := &router.WorkerOverrides{
		IMAPServer:    p.IMAPServer,
		IMAPUser:      p.IMAPUser,
		EmailDomain:   p.EmailDomain,
		EmailStrategy: p.EmailStrategy,
	}
	if p.Headless {
		overrides.Headless = &p.Headless
	}
	if p.NoSpoofing {
		spoofing := false
		overrides.SpoofingEnabled = &spoofing
	}
	if p.IMAPPasswordFile != "" {
		password, err := secret.ReadFile(p.IMAPPasswordFile)
		if err != nil {
			return nil, fmt.Errorf("reading IMAP password: %w", err)
		}
		defer password.Close()
		overrides.IMAPPassword = password.String()
	}
	return overrides, nil
}

func (a *app) startCommand() *cli.Command {
	var params startParams
	return &cli.Command{
		Name:    "start",
		Summary: "Start the auto-registration worker",
		Description: `Start the auto-registration worker. Flags override the daemon's
configured worker options for this run only. A running worker is
stopped first.`,
		Examples: []cli.Example{
			{Command: "kiro-switch start --headless --email-strategy plus_alias"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("start", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("start", args); err != nil {
				return err
			}
			if params.EmailStrategy != "" && !slices.Contains(worker.Strategies, params.EmailStrategy) {
				return fmt.Errorf("unknown email strategy %q (want one of %s)",
					params.EmailStrategy, strings.Join(worker.Strategies, ", "))
			}
			overrides, err := params.overrides()
			if err != nil {
				return err
			}
			result, err := params.Connection.call(ctx, router.KindStartWorker, map[string]any{"worker": overrides})
			if err != nil {
				return err
			}
			a.printMessage(result)
			return nil
		},
	}
}

func (a *app) stopCommand() *cli.Command {
	return a.simpleCommand("stop", "Stop the auto-registration worker", router.KindStopWorker)
}

func (a *app) pauseCommand() *cli.Command {
	return a.simpleCommand("pause", "Mark the worker paused", router.KindPauseWorker)
}

func (a *app) resumeCommand() *cli.Command {
	return a.simpleCommand("resume", "Resume a paused worker", router.KindResumeWorker)
}

func (a *app) statusCommand() *cli.Command {
	var params struct {
		Connection connection
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "status",
		Summary: "Show the worker state",
		Description: fmt.Sprintf(`Show the worker state. Exits %d when no worker is running, so
scripts can test it directly.`, exitWorkerIdle),
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("status", args); err != nil {
				return err
			}
			result, err := params.Connection.call(ctx, router.KindWorkerStatus, nil)
			if err != nil {
				return err
			}
			status := worker.Status{State: worker.StateIdle}
			if result.Worker != nil {
				status = *result.Worker
			}
			done, err := params.EmitJSON(a.stdout, status)
			if err != nil {
				return err
			}
			if !done {
				a.renderStatus(status)
			}
			if status.State == worker.StateIdle {
				return &cli.ExitError{Code: exitWorkerIdle}
			}
			return nil
		},
	}
}

func (a *app) renderStatus(status worker.Status) {
	state := string(status.State)
	switch status.State {
	case worker.StateRunning:
		state = a.styles.success.Render(state)
	case worker.StatePaused, worker.StateStopping:
		state = a.styles.warning.Render(state)
	default:
		state = a.styles.muted.Render(state)
	}
	a.printf("worker: %s\n", state)
	if status.PID != 0 {
		uptime := time.Since(status.StartedAt).Truncate(time.Second)
		a.printf("pid:    %d (run %d, up %s)\n", status.PID, status.Run, uptime)
	}
}

func (a *app) sendCommand() *cli.Command {
	var params struct {
		Connection connection
	}
	return &cli.Command{
		Name:    "send",
		Summary: "Write a line to the worker's stdin",
		Usage:   "kiro-switch send <text>... [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("send", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("usage: kiro-switch send <text>...")
			}
			_, err := params.Connection.call(ctx, router.KindWriteWorker, map[string]any{
				"data": strings.Join(args, " ") + "\n",
			})
			return err
		},
	}
}
