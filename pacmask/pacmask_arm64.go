// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build arm64

package pacmask // import "github.com/parts-pauth/parts/pacmask"

import (
	"math/rand/v2"
)

// pacia1716 signs ptr with modifier using the A key, through the hint space
// form of `pacia`. Without PAC support in hardware the instruction is a NOP
// and ptr is returned untouched.
func pacia1716(ptr, modifier uint64) uint64

// GetPACMask determines the bits of a pointer that hold the PAC on the running
// host. It returns 0 when the hardware or the kernel does not enable PAC.
//
// The mask depends on kernel configs like `CONFIG_ARM64_VA_BITS` and
// `CONFIG_ARM64_MTE`. The documented way to read it is PTRACE_GETREGSET on a
// child, so instead random 32 bit values are signed and everything above the
// random bits is collected. After 64 rounds every PAC bit is set with
// overwhelming probability.
//
// See https://www.kernel.org/doc/html/latest/arm64/pointer-authentication.html
func GetPACMask() uint64 {
	var mask uint64
	for range 64 {
		// Keep the fake pointers 8 byte aligned.
		addr := uint64(rand.Uint32()) << 3 //nolint:gosec
		modifier := rand.Uint64()          //nolint:gosec
		mask |= pacia1716(addr, modifier) &^ (uint64(0xFFFF_FFFF) << 3)
	}
	return mask
}
