// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package secret

func allocate(size int) ([]byte, bool, error) {
	return make([]byte, size), false, nil
}

func release([]byte, bool) error {
	return nil
}
