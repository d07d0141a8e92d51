// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/hj01857655/Kiro-auto-reg-extension/cmd/kiro-switch/cli"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/router"
)

func (a *app) usageCommand() *cli.Command {
	var params struct {
		Connection connection
		cli.JSONOutput
		Refresh    bool `flag:"refresh,r" desc:"read usage from Kiro now instead of the last known reading"`
		ClearCache bool `flag:"clear-cache" desc:"drop cached Kiro state before reading"`
	}
	return &cli.Command{
		Name:    "usage",
		Summary: "Show request usage for the active or a named account",
		Usage:   "kiro-switch usage [account] [flags]",
		Description: `Show the last known usage of the active account, or of the named
account. --refresh reads the active account's usage from Kiro's
state database and only applies to the active account.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("usage", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("usage: kiro-switch usage [account]")
			}
			account := ""
			if len(args) == 1 {
				account = args[0]
			}
			if params.Refresh && account != "" {
				return fmt.Errorf("--refresh reads the active account only; switch to %s first", account)
			}

			if params.ClearCache {
				if _, err := params.Connection.call(ctx, router.KindClearUsageCache, nil); err != nil {
					return err
				}
			}

			kind, fields := router.KindLoadUsage, map[string]any{}
			if account != "" {
				fields["account"] = account
			}
			if params.Refresh {
				kind, fields = router.KindRefreshUsage, nil
			}
			result, err := params.Connection.call(ctx, kind, fields)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result.Usage); done {
				return err
			}

			label := result.Account
			if label == "" {
				label = "active account"
			}
			a.printf("%s: %s\n", a.styles.header.Render(label), formatSnapshot(result.Usage))
			return nil
		},
	}
}
