// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import "golang.org/x/sys/unix"

func excludeFromCoreDumps(data []byte) {
	_ = unix.Madvise(data, unix.MADV_DONTDUMP)
}
