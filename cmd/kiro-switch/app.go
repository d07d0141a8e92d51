// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/hj01857655/Kiro-auto-reg-extension/cmd/kiro-switch/cli"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/config"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/router"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/service"
)

// app carries what every subcommand shares.
type app struct {
	stdout io.Writer
	styles styles
}

func newApp(stdout io.Writer) *app {
	return &app{stdout: stdout, styles: newStyles(stdout)}
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name:        "kiro-switch",
		Summary:     "Manage Kiro accounts and the auto-registration worker",
		Description: "kiro-switch talks to kiro-switchd over its local socket.",
		Subcommands: []*cli.Command{
			a.listCommand(),
			a.switchCommand(),
			a.deleteCommand(),
			a.deleteExhaustedCommand(),
			a.refreshCommand(),
			a.refreshAllCommand(),
			a.importCommand(),
			a.exportCommand(),
			a.usageCommand(),
			a.startCommand(),
			a.stopCommand(),
			a.pauseCommand(),
			a.resumeCommand(),
			a.statusCommand(),
			a.sendCommand(),
			a.logsCommand(),
			a.clearLogCommand(),
			a.keygenCommand(),
			a.decryptBackupCommand(),
			a.versionCommand(),
		},
	}
}

// connection selects the daemon socket. An explicit --socket wins;
// otherwise the socket path comes from the same config the daemon
// reads.
type connection struct {
	SocketPath string
	ConfigPath string
}

func (c *connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.SocketPath, "socket", "", "daemon socket (default from config)")
	flagSet.StringVar(&c.ConfigPath, "config", "", "config file (default $"+config.EnvVar+")")
}

func (c *connection) client() (*service.Client, error) {
	if c.SocketPath != "" {
		return service.NewClient(c.SocketPath), nil
	}
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return nil, err
	}
	return service.NewClient(cfg.Paths.Socket), nil
}

// call sends one router command and decodes its Result.
func (c *connection) call(ctx context.Context, kind router.Kind, fields map[string]any) (router.Result, error) {
	client, err := c.client()
	if err != nil {
		return router.Result{}, err
	}
	var result router.Result
	if err := client.Call(ctx, string(kind), fields, &result); err != nil {
		return router.Result{}, err
	}
	return result, nil
}

// simpleCommand builds a command that sends kind with no fields and
// prints the reply message.
func (a *app) simpleCommand(name, summary string, kind router.Kind) *cli.Command {
	var params struct {
		Connection connection
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams(name, &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs(name, args); err != nil {
				return err
			}
			result, err := params.Connection.call(ctx, kind, nil)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result); done {
				return err
			}
			a.printMessage(result)
			return nil
		},
	}
}

func (a *app) printMessage(result router.Result) {
	if result.Ignored {
		a.printf("%s\n", a.styles.warning.Render("daemon ignored the command"))
		return
	}
	if result.Message != "" {
		a.printf("%s\n", result.Message)
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}
