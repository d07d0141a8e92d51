// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "fmt"

func noArgs(command string, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%s takes no arguments, got %q", command, args)
	}
	return nil
}

func oneArg(command, name string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: kiro-switch %s <%s>", command, name)
	}
	return args[0], nil
}
