// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package secret

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func allocate(size int) ([]byte, bool, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, false, fmt.Errorf("secret: mmap failed: %w", err)
	}
	// A desktop session commonly runs with a small RLIMIT_MEMLOCK, so
	// an unlocked mapping is accepted.
	locked := unix.Mlock(data) == nil
	excludeFromCoreDumps(data)
	return data, locked, nil
}

func release(data []byte, locked bool) error {
	var firstError error
	if locked {
		if err := unix.Munlock(data); err != nil {
			firstError = fmt.Errorf("secret: munlock failed: %w", err)
		}
	}
	if err := unix.Munmap(data); err != nil && firstError == nil {
		firstError = fmt.Errorf("secret: munmap failed: %w", err)
	}
	return firstError
}
