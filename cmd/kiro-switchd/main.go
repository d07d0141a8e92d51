// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/config"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/logging"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/process"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("kiro-switchd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default $"+config.EnvVar+", else built-in defaults)")
	flagSet.StringVar(&logLevel, "log-level", "", "override log.level from the config")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("kiro-switchd %s\n", version.Info())
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	logger.Info("kiro-switchd starting",
		"version", version.Info(),
		"socket", cfg.Paths.Socket,
		"tokens", cfg.Paths.Tokens,
	)
	return d.Serve(ctx)
}
