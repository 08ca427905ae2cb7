// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// This package contains a series of helper functions for AArch64 register
// naming and immediate materialization.
package armhelpers // import "github.com/parts-pauth/parts/armhelpers"

import (
	"strconv"

	aa "golang.org/x/arch/arm64/arm64asm"
)

// Xreg2num converts arm64asm X0...X30 and W0...W30 register enum into a register
// number. X0/W0 return 0, X1/W1 return 1, etc.
func Xreg2num(reg aa.Reg) (int, bool) {
	switch {
	case reg >= aa.X0 && reg <= aa.X30:
		return int(reg - aa.X0), true
	case reg >= aa.W0 && reg <= aa.W30:
		return int(reg - aa.W0), true
	}
	return 0, false
}

// DecodeRegister converts the result of calling Reg.String()
// into the initial register's value.
func DecodeRegister(reg string) (aa.Reg, bool) {
	const maxRegister = uint64(aa.V31)

	// This function is essentially just the inverse
	// of https://cs.opensource.google/go/x/arch/+/fc48f9fe:arm64/arm64asm/inst.go;l=335
	length := len(reg)
	if length == 0 {
		return 0, false
	}

	// WZR and XZR don't have a value.
	if reg == "WZR" || reg == "XZR" {
		return 0, false
	}

	// The special case is having a string containing Reg(%d).
	if length > 3 && reg[0:3] == "Reg" {
		val, err := strconv.ParseUint(reg[4:length-1], 10, 64)
		if err != nil {
			return 0, false
		}
		if val > maxRegister {
			return 0, false
		}
		return aa.Reg(val), true
	}

	var regOffset uint64
	switch reg[0] {
	case 'W':
		regOffset = uint64(aa.W0)
	case 'X':
		regOffset = uint64(aa.X0)
	default:
		return 0, false
	}

	val, err := strconv.ParseUint(reg[1:], 10, 64)
	if err != nil || val > 30 {
		return 0, false
	}
	return aa.Reg(val + regOffset), true
}

// MovWide is one 16-bit chunk of a MOVZ/MOVK immediate sequence.
type MovWide struct {
	Imm   uint16
	Shift uint8
}

// MovWideChunks splits v into the chunks needed to materialize it with one
// MOVZ followed by MOVKs. Zero chunks other than the first are skipped, so a
// zero value is a single MOVZ #0.
func MovWideChunks(v uint64) []MovWide {
	chunks := make([]MovWide, 0, 4)
	for shift := uint8(0); shift < 64; shift += 16 {
		imm := uint16(v >> shift)
		if imm == 0 && len(chunks) > 0 {
			continue
		}
		if imm == 0 && v>>shift != 0 {
			// Leading zero chunk below the first non-zero one.
			continue
		}
		chunks = append(chunks, MovWide{Imm: imm, Shift: shift})
	}
	if len(chunks) == 0 {
		chunks = append(chunks, MovWide{})
	}
	return chunks
}
