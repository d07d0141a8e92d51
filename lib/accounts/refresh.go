// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package accounts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultRefreshTimeout bounds one refresh command.
const DefaultRefreshTimeout = 60 * time.Second

// Refresher renews an expired saved token in place and returns the
// renewed token.
type Refresher interface {
	Refresh(ctx context.Context, account Account) (TokenData, error)
}

// CommandRefresher delegates the renewal to an external command that
// rewrites the account's token file, such as the registration worker's
// "tokens refresh <name>" subcommand. The account key is appended to
// Args.
type CommandRefresher struct {
	Command          string
	Args             []string
	WorkingDirectory string
	Env              []string
	Timeout          time.Duration
	Logger           *slog.Logger
}

// Refresh runs the command and rereads the token file it updated.
func (r *CommandRefresher) Refresh(ctx context.Context, account Account) (TokenData, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Command, append(append([]string(nil), r.Args...), account.Key)...)
	cmd.Dir = r.WorkingDirectory
	cmd.Env = append(os.Environ(), r.Env...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	// Grandchildren holding the output pipe must not stall Run after
	// the command itself is killed.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if r.Logger != nil {
		r.Logger.Debug("token refresh command finished",
			"account", account.Key,
			"command", r.Command,
			"output", strings.TrimSpace(output.String()),
			"error", err,
		)
	}
	if err != nil {
		return TokenData{}, fmt.Errorf("refreshing %s: %w: %s", account.Key, err, lastLine(output.String()))
	}

	token, err := readToken(account.Path)
	if err != nil {
		return TokenData{}, fmt.Errorf("rereading %s after refresh: %w", account.Key, err)
	}
	return token, nil
}

func lastLine(output string) string {
	output = strings.TrimSpace(output)
	if index := strings.LastIndexByte(output, '\n'); index >= 0 {
		return output[index+1:]
	}
	return output
}
