// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package accounts is the credential store: a directory of saved
// token files ("token-*.json") and the single active token file Kiro
// reads.
//
// Switching accounts means rewriting the active file with another
// saved token. [Store.WriteActive] backs up whatever was active first
// (age-sealed when backup recipients are configured), then replaces
// the file atomically so Kiro never reads half a token.
//
// Token files are parsed leniently: comments and trailing commas are
// accepted because people hand-edit them. Unparsable files are logged
// and skipped rather than failing the whole listing.
//
// Which saved account is active is decided by comparing blake3
// fingerprints of refresh tokens, so refresh tokens are never logged
// or compared in full outside this package.
package accounts
