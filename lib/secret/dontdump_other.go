// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix && !linux

package secret

func excludeFromCoreDumps([]byte) {}
