// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile replaces files so readers never observe a partial
// write. Kiro reads its token file whenever it likes, so the active
// token and its backups are always written through [Write]: the data
// goes to a temporary file in the same directory, is fsynced, renamed
// over the target, and the parent directory is fsynced.
package atomicfile
