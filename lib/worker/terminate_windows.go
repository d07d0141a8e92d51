// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package worker

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

func configureProcessTree(*exec.Cmd) {}

// terminateProcessTree kills the worker and every descendant with
// taskkill. Console processes ignore the non-forced variant, so this
// already forces.
func terminateProcessTree(process *os.Process) error {
	output, err := exec.Command("taskkill", "/PID", strconv.Itoa(process.Pid), "/T", "/F").CombinedOutput()
	if err != nil {
		return fmt.Errorf("taskkill /T /F %d: %w: %s", process.Pid, err, output)
	}
	return nil
}

// killProcessTree falls back to killing the root process when taskkill
// left it alive.
func killProcessTree(process *os.Process) error {
	if err := process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
