// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/accounts"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/broadcast"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/clock"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/config"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/kirodb"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/logsink"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/progress"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/router"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/service"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/usage"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/usagestore"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/worker"
)

// daemon owns every long-lived component. Components are built once
// in newDaemon and injected; nothing is global.
type daemon struct {
	logger     *slog.Logger
	supervisor *worker.Supervisor
	router     *router.Router
	server     *service.SocketServer

	// closers run in reverse order on Close.
	closers []func() error
	cleanup []func()
}

func newDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *daemon, err error) {
	d := &daemon{logger: logger}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	clk := clock.Real()

	events := broadcast.New[progress.Event](broadcast.Options{
		Name:    "progress",
		Backlog: cfg.Log.Backlog,
		Logger:  logger,
	})

	sink, err := logsink.Open(logsink.Config{
		Path:         cfg.Paths.LogFile,
		MaxFileBytes: cfg.Log.MaxFileBytes,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, sink.Close)
	d.cleanup = append(d.cleanup, events.Subscribe(sink.Handle))

	store, err := usagestore.Open(cfg.Paths.UsageDB, logger)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, store.Close)

	source := kirodb.New(kirodb.Config{
		Path:   cfg.Paths.KiroState,
		Key:    cfg.Usage.StateKey,
		Clock:  clk,
		Logger: logger,
	})
	d.closers = append(d.closers, source.Close)

	maxRetries := cfg.Usage.MaxRetries
	if maxRetries == 0 {
		maxRetries = usage.NoRetries
	}
	reconciler := usage.New(usage.Config{
		Source:     source,
		Store:      store,
		Clock:      clk,
		Logger:     logger,
		StaleAfter: cfg.Usage.StaleAfter,
		Defaults: usage.Options{
			MaxRetries:  maxRetries,
			RetryDelays: cfg.Usage.RetryDelays,
		},
	})
	if err := reconciler.Restore(); err != nil {
		logger.Warn("restoring usage snapshots failed", "error", err)
	}

	recipients, err := cfg.BackupRecipients()
	if err != nil {
		return nil, err
	}
	credentials := accounts.New(accounts.Config{
		TokensDir:        cfg.Paths.Tokens,
		ActivePath:       cfg.Paths.ActiveToken,
		BackupRecipients: recipients,
		Clock:            clk,
		Logger:           logger,
	})

	var refresher accounts.Refresher
	if cfg.Refresh.Command != "" {
		refresher = &accounts.CommandRefresher{
			Command:          cfg.Refresh.Command,
			Args:             cfg.Refresh.Args,
			WorkingDirectory: cfg.Worker.WorkingDirectory,
			Timeout:          cfg.Refresh.Timeout,
			Logger:           logger,
		}
	}

	d.supervisor = worker.NewSupervisor(worker.Config{
		Clock:       clk,
		Logger:      logger,
		GracePeriod: cfg.Worker.GracePeriod,
	})
	bridge := newBridge(events, clk, logger)
	d.cleanup = append(d.cleanup, d.supervisor.Events().Subscribe(bridge.handle))

	password, err := cfg.IMAPPassword()
	if err != nil {
		return nil, err
	}
	options := cfg.WorkerOptions(password)
	if password != nil {
		d.cleanup = append(d.cleanup, func() { password.Close() })
	}

	d.router = router.New(router.Config{
		Credentials:   credentials,
		Worker:        d.supervisor,
		Usage:         reconciler,
		Progress:      events,
		WorkerSpec:    cfg.WorkerSpec(),
		WorkerOptions: options,
		Refresher:     refresher,
		Stats:         store,
		Log:           sink,
		Context:       ctx,
		Clock:         clk,
		Logger:        logger,
	})

	d.server = service.NewSocketServer(cfg.Paths.Socket, logger)
	d.router.Register(d.server)
	return d, nil
}

// Serve runs the socket server until ctx ends, then stops the worker.
func (d *daemon) Serve(ctx context.Context) error {
	err := d.server.Serve(ctx)
	if d.supervisor.Stop() {
		d.logger.Info("worker stopped on shutdown")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serving socket: %w", err)
	}
	return nil
}

// Close releases every component, newest first.
func (d *daemon) Close() {
	for i := len(d.cleanup) - 1; i >= 0; i-- {
		d.cleanup[i]()
	}
	d.cleanup = nil
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.Warn("closing component failed", "error", err)
		}
	}
	d.closers = nil
}
