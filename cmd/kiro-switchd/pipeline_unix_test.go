// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/broadcast"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/clock"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/logsink"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/progress"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/testutil"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/worker"
)

// TestWorkerOutputReachesLogFile runs a real worker through the
// supervisor, bridge, broadcaster, and log sink.
func TestWorkerOutputReachesLogFile(t *testing.T) {
	script := testutil.WorkerScript(t, `
echo '{"step":1,"totalSteps":4,"stepName":"Browser"}'
echo "✓ Account registered"
echo "captcha ERROR" >&2
exit 0
`)
	events := broadcast.New[progress.Event](broadcast.Options{Name: "progress"})
	sink, err := logsink.Open(logsink.Config{Path: filepath.Join(t.TempDir(), "autoreg.log")})
	if err != nil {
		t.Fatalf("logsink.Open: %v", err)
	}
	defer sink.Close()
	events.Subscribe(sink.Handle)

	stopped := make(chan progress.Event, 1)
	events.Subscribe(func(event progress.Event) {
		if event.Kind == progress.KindStatus && !event.Running {
			stopped <- event
		}
	})

	supervisor := worker.NewSupervisor(worker.Config{})
	supervisor.Events().Subscribe(newBridge(events, clock.Real(), nil).handle)
	if _, err := supervisor.Start(context.Background(), worker.Spec{Command: script}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	testutil.RequireReceive(t, stopped, 10*time.Second, "worker completion")

	data, err := os.ReadFile(sink.Path())
	if err != nil {
		t.Fatal(err)
	}
	log := string(data)
	for _, want := range []string{
		"✓ Account registered",
		"✗ captcha ERROR",
		"✓ Auto-registration completed",
	} {
		if !strings.Contains(log, want) {
			t.Errorf("log file missing %q:\n%s", want, log)
		}
	}

	var sawProgress bool
	for _, event := range events.History() {
		if event.Kind == progress.KindProgress && event.StepName == "Browser" && event.Percent() == 25 {
			sawProgress = true
		}
	}
	if !sawProgress {
		t.Errorf("no progress event for step 1 of 4 in %+v", events.History())
	}
}
