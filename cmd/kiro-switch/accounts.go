// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/hj01857655/Kiro-auto-reg-extension/cmd/kiro-switch/cli"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/atomicfile"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/router"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/sealed"
)

func (a *app) listCommand() *cli.Command {
	var params struct {
		Connection connection
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "list",
		Summary: "List saved accounts with their usage",
		Description: `List every saved account. The active account is marked with "*".
Usage is the last known reading; "*" after it means a refresh is
in flight. Readings older than the daemon's staleness window are
dimmed.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("list", args); err != nil {
				return err
			}
			result, err := params.Connection.call(ctx, router.KindListAccounts, nil)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result.Accounts); done {
				return err
			}
			a.renderAccounts(result.Accounts)
			return nil
		},
	}
}

func (a *app) renderAccounts(views []router.AccountView) {
	if len(views) == 0 {
		a.printf("%s\n", a.styles.muted.Render("no saved accounts"))
		return
	}
	t := &table{header: []string{"", "ACCOUNT", "EMAIL", "USAGE", "DAYS", "EXPIRES", "SWITCHES"}}
	for _, view := range views {
		marker := cell{text: " "}
		name := cell{text: view.Key}
		if view.Active {
			marker = cell{text: "*", style: a.styles.active}
			name.style = a.styles.active
		}
		expires := cell{text: view.ExpiresIn}
		if view.Expired {
			expires = cell{text: "expired", style: a.styles.failure}
		}
		usageCell := cell{text: formatUsage(view.Usage), style: a.styles.usageStyle(view.Usage)}
		if view.Stale && !view.Usage.Loading {
			usageCell.style = a.styles.muted
		}
		days := "-"
		if view.Usage.DaysRemaining >= 0 {
			days = strconv.Itoa(view.Usage.DaysRemaining)
		}
		t.add(
			marker,
			name,
			cell{text: view.Email, style: a.styles.muted},
			usageCell,
			cell{text: days},
			expires,
			cell{text: strconv.Itoa(view.SwitchCount)},
		)
	}
	t.render(a.stdout, a.styles)
}

func (a *app) switchCommand() *cli.Command {
	var params struct {
		Connection connection
		cli.JSONOutput
		Wait bool `flag:"wait,w" desc:"wait until usage for the new account has been read"`
	}
	return &cli.Command{
		Name:    "switch",
		Summary: "Make a saved account the active Kiro account",
		Usage:   "kiro-switch switch <account> [flags]",
		Description: `Copy a saved token into Kiro's token file. An expired token is
refreshed first when the daemon has a refresh command configured.`,
		Examples: []cli.Example{
			{Description: "Switch and show the new account's usage", Command: "kiro-switch switch alice --wait"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("switch", &params) },
		Run: func(ctx context.Context, args []string) error {
			account, err := oneArg("switch", "account", args)
			if err != nil {
				return err
			}
			result, err := params.Connection.call(ctx, router.KindSwitchAccount, map[string]any{
				"account": account,
				"wait":    params.Wait,
			})
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result); done {
				return err
			}
			a.printf("%s\n", a.styles.success.Render(result.Message))
			if result.Usage != nil {
				a.printf("usage: %s\n", formatSnapshot(result.Usage))
			}
			return nil
		},
	}
}

func (a *app) deleteCommand() *cli.Command {
	var params struct {
		Connection connection
	}
	return &cli.Command{
		Name:    "delete",
		Summary: "Delete a saved account",
		Usage:   "kiro-switch delete <account> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("delete", &params) },
		Run: func(ctx context.Context, args []string) error {
			account, err := oneArg("delete", "account", args)
			if err != nil {
				return err
			}
			result, err := params.Connection.call(ctx, router.KindDeleteAccount, map[string]any{"account": account})
			if err != nil {
				return err
			}
			a.printMessage(result)
			return nil
		},
	}
}

func (a *app) deleteExhaustedCommand() *cli.Command {
	var params struct {
		Connection connection
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "delete-exhausted",
		Summary: "Delete every account that is suspended or out of requests",
		Description: `Delete every saved account whose last known usage shows it suspended
or at its limit. Accounts with no known usage are kept.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("delete-exhausted", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("delete-exhausted", args); err != nil {
				return err
			}
			result, err := params.Connection.call(ctx, router.KindDeleteExhausted, nil)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result.Deleted); done {
				return err
			}
			if len(result.Deleted) == 0 {
				a.printf("%s\n", a.styles.muted.Render("no exhausted accounts"))
				return nil
			}
			for _, key := range result.Deleted {
				a.printf("deleted %s\n", key)
			}
			return nil
		},
	}
}

func (a *app) refreshCommand() *cli.Command {
	var params struct {
		Connection connection
		Activate   bool `flag:"activate" desc:"also switch to the account after refreshing"`
	}
	return &cli.Command{
		Name:    "refresh",
		Summary: "Refresh a saved account's token",
		Usage:   "kiro-switch refresh <account> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("refresh", &params) },
		Run: func(ctx context.Context, args []string) error {
			account, err := oneArg("refresh", "account", args)
			if err != nil {
				return err
			}
			result, err := params.Connection.call(ctx, router.KindRefreshToken, map[string]any{
				"account":  account,
				"activate": params.Activate,
			})
			if err != nil {
				return err
			}
			a.printMessage(result)
			return nil
		},
	}
}

func (a *app) refreshAllCommand() *cli.Command {
	var params struct {
		Connection connection
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "refresh-all",
		Summary: "Refresh every saved token that can be refreshed",
		Description: `Refresh every saved account whose token carries a refresh token and
client credentials. Other accounts are skipped. A failure for one
account does not stop the rest; all failures are reported at the end.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("refresh-all", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("refresh-all", args); err != nil {
				return err
			}
			result, err := params.Connection.call(ctx, router.KindRefreshAll, nil)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result.Refreshed); done {
				return err
			}
			for _, key := range result.Refreshed {
				a.printf("refreshed %s\n", key)
			}
			a.printMessage(result)
			return nil
		},
	}
}

func (a *app) importCommand() *cli.Command {
	var params struct {
		Connection connection
		Name       string `flag:"name,n" desc:"save under this name instead of the token's accountName"`
	}
	return &cli.Command{
		Name:    "import",
		Summary: "Save a token file as a new account",
		Usage:   "kiro-switch import <token-file> [flags]",
		Description: `Validate a Kiro token file and save it in the tokens directory as
token-<name>.json. An existing account with the same name is never
overwritten.`,
		Examples: []cli.Example{
			{Description: "Import a token copied from another machine", Command: "kiro-switch import ./kiro-auth-token.json --name laptop"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("import", &params) },
		Run: func(ctx context.Context, args []string) error {
			path, err := oneArg("import", "token-file", args)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading token file: %w", err)
			}
			result, err := params.Connection.call(ctx, router.KindImportToken, map[string]any{
				"account": params.Name,
				"data":    string(data),
			})
			if err != nil {
				return err
			}
			a.printf("%s\n", a.styles.success.Render(result.Message))
			return nil
		},
	}
}

func (a *app) exportCommand() *cli.Command {
	var params struct {
		Connection connection
		Output     string   `flag:"output,o" desc:"write the export here instead of stdout"`
		Recipients []string `flag:"recipient,r" desc:"seal the export to this age public key (repeatable)"`
	}
	return &cli.Command{
		Name:    "export",
		Summary: "Export every saved token as one JSON file",
		Description: `Write every saved token, private client credentials included, as a
JSON array. With --recipient the export is sealed with age and can be
opened with decrypt-backup.`,
		Examples: []cli.Example{
			{Command: "kiro-switch export -o accounts.json.age -r age1..."},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("export", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("export", args); err != nil {
				return err
			}
			var recipients []age.Recipient
			if len(params.Recipients) > 0 {
				parsed, err := sealed.ParseRecipients(params.Recipients)
				if err != nil {
					return err
				}
				recipients = parsed
			}

			result, err := params.Connection.call(ctx, router.KindExportAccounts, nil)
			if err != nil {
				return err
			}
			data := result.Export
			if len(recipients) > 0 {
				if data, err = sealed.Seal(data, recipients); err != nil {
					return fmt.Errorf("sealing export: %w", err)
				}
			}
			if params.Output == "" {
				_, err = a.stdout.Write(data)
				return err
			}
			if err := atomicfile.Write(params.Output, data, 0o600); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			a.printf("exported to %s\n", params.Output)
			return nil
		},
	}
}
