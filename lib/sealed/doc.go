// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts token backups with age so a leaked backup
// directory does not leak refresh tokens.
//
// Ciphertext is the binary age format, suitable for writing straight
// to a ".age" file and decrypting with the age CLI. Identities are
// held in [secret.Buffer] values and decrypted plaintext is returned
// in one.
package sealed
