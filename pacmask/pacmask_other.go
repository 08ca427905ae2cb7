// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !arm64

package pacmask // import "github.com/parts-pauth/parts/pacmask"

// GetPACMask always returns 0 on this platform.
func GetPACMask() uint64 {
	return 0
}
