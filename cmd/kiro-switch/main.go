// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// kiro-switch is the operator CLI for kiro-switchd: it lists and
// switches saved Kiro accounts, drives the auto-registration worker,
// and follows its progress over the daemon's socket.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/process"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newApp(os.Stdout).root()
	if err := root.Execute(ctx, os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}
