// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the kiro-switch configuration.
//
// Configuration is loaded from a single YAML file specified by:
//   - the --config flag passed to the command, or
//   - the KIRO_SWITCH_CONFIG environment variable
//
// When neither is set the built-in defaults are used unchanged. There
// is no discovery of files in other locations.
//
// The file may contain development and production sections that
// override base values when the environment matches. Path values
// support ${HOME}, ${KIRO_STATE}, and ${VAR:-default} expansion;
// ${KIRO_STATE} resolves to paths.state so the other paths can be
// placed relative to it.
//
// Secrets are never stored in the file itself: the IMAP password is
// read from worker.imap_password_file into a [secret.Buffer] by
// [Config.IMAPPassword].
package config
