// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind kiro-switch: a tree
// of [Command] values dispatched by name, pflag flag sets built from
// tagged params structs ([FlagsFromParams]), typo suggestions for
// unknown commands and flags, --json output ([JSONOutput]), and
// [ExitError] for handled non-zero exits.
package cli
