// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package worker

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcessTree puts the worker in its own process group so the
// browser and helper processes it spawns can be signalled together.
func configureProcessTree(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateProcessTree sends SIGTERM to the worker's process group.
func terminateProcessTree(process *os.Process) error {
	return signalGroup(process.Pid, unix.SIGTERM)
}

// killProcessTree sends SIGKILL to the worker's process group.
func killProcessTree(process *os.Process) error {
	return signalGroup(process.Pid, unix.SIGKILL)
}

// signalGroup signals the process group led by pid. A group that has
// already exited is not an error.
func signalGroup(pid int, signal unix.Signal) error {
	err := unix.Kill(-pid, signal)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
