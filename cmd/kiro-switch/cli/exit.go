// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError makes the process exit with Code without printing
// anything more; the command has already written its output. Used
// where a non-zero exit is an answer, such as "status" reporting a
// stopped worker.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns Code. process.Fatal checks for this method.
func (e *ExitError) ExitCode() int {
	return e.Code
}
