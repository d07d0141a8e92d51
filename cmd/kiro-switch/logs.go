// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/hj01857655/Kiro-auto-reg-extension/cmd/kiro-switch/cli"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/codec"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/router"
)

type logsParams struct {
	Connection connection
	cli.JSONOutput
	Follow    bool `flag:"follow,f" desc:"stream new events until interrupted"`
	NoHistory bool `flag:"no-history" desc:"with --follow, skip the events already recorded"`
	Lines     int  `flag:"lines,n" desc:"also print this many lines of the persisted log file"`
	Raw       bool `flag:"raw" desc:"with --follow, print each frame in CBOR diagnostic notation"`
}

func (a *app) logsCommand() *cli.Command {
	var params logsParams
	return &cli.Command{
		Name:    "logs",
		Summary: "Show auto-registration output",
		Description: `Show the worker's recent log and progress events. With --follow the
command keeps streaming events and usage changes until interrupted.`,
		Examples: []cli.Example{
			{Description: "Recent events plus the last 100 lines of the log file", Command: "kiro-switch logs -n 100"},
			{Description: "Follow live output", Command: "kiro-switch logs -f"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("logs", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("logs", args); err != nil {
				return err
			}
			if params.Follow {
				return a.followLogs(ctx, &params)
			}

			fields := map[string]any{}
			if params.Lines > 0 {
				fields["lines"] = params.Lines
			}
			result, err := params.Connection.call(ctx, router.KindGetLog, fields)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result); done {
				return err
			}
			for _, event := range result.Events {
				a.printf("%s\n", a.styles.formatEvent(event))
			}
			if len(result.Lines) > 0 {
				a.printf("%s\n", a.styles.muted.Render("--- log file ---"))
				for _, line := range result.Lines {
					a.printf("%s\n", line)
				}
			}
			return nil
		},
	}
}

func (a *app) followLogs(ctx context.Context, params *logsParams) error {
	client, err := params.Connection.client()
	if err != nil {
		return err
	}
	err = client.Stream(ctx, "subscribe", map[string]any{"history": !params.NoHistory}, func(raw codec.RawMessage) error {
		if params.Raw {
			diagnostic, err := codec.Diagnose(raw)
			if err != nil {
				return fmt.Errorf("diagnosing frame: %w", err)
			}
			a.printf("%s\n", diagnostic)
			return nil
		}
		var frame router.Frame
		if err := codec.Unmarshal(raw, &frame); err != nil {
			return fmt.Errorf("decoding frame: %w", err)
		}
		if params.OutputJSON {
			return cli.WriteJSON(a.stdout, frame)
		}
		a.renderFrame(frame)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) renderFrame(frame router.Frame) {
	switch frame.Type {
	case router.FrameProgress:
		if frame.Event != nil {
			a.printf("%s\n", a.styles.formatEvent(*frame.Event))
		}
	case router.FrameUsage:
		a.printf("%s\n", a.styles.muted.Render("usage: "+formatSnapshot(frame.Usage)))
	case router.FrameResync:
		a.printf("%s\n", a.styles.warning.Render("output fell behind; replaying history"))
	}
}

func (a *app) clearLogCommand() *cli.Command {
	return a.simpleCommand("clear-log", "Clear the event history and the log file", router.KindClearLog)
}
