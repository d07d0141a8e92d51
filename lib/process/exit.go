// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// exitCoder is implemented by errors that carry their own exit status
// and whose message has already been shown.
type exitCoder interface {
	ExitCode() int
}

// Fatal writes "error: err" to stderr and exits with code 1. An error
// carrying an ExitCode exits with that code silently.
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

// report writes err to w unless it carries an exit code, and returns
// the exit status.
func report(w io.Writer, err error) int {
	var coded exitCoder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
