// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by the
// kiro-switch binaries: reporting a fatal error to stderr before or
// after the structured logger exists, and turning a command's exit
// code into the process exit status.
package process
