// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package mir // import "github.com/parts-pauth/parts/mir"

import (
	"strings"

	aa "golang.org/x/arch/arm64/arm64asm"

	ah "github.com/parts-pauth/parts/armhelpers"
)

// Reg is an AArch64 physical register, numbered like arm64asm.Reg.
// The stack pointer has no arm64asm.Reg value of its own and uses SP.
type Reg uint16

const (
	// NoReg is the zero register slot of an operand that is not a register.
	NoReg Reg = 0xffff
	// SP is the stack pointer.
	SP Reg = 0xfffe
	// XZR is the 64-bit zero register.
	XZR = Reg(aa.XZR)
	// WZR is the 32-bit zero register.
	WZR = Reg(aa.WZR)
	// FP is the frame pointer.
	FP = Reg(aa.X29)
	// LR is the link register.
	LR = Reg(aa.X30)
	// ModifierReg is reserved as the context input of all data pointer
	// sign and authenticate instructions.
	ModifierReg = Reg(aa.X23)
)

// X returns the 64-bit general purpose register Xn.
func X(n int) Reg {
	return Reg(aa.X0) + Reg(n)
}

// W returns the 32-bit general purpose register Wn.
func W(n int) Reg {
	return Reg(aa.W0) + Reg(n)
}

// Num returns the register number of an X or W register.
func (r Reg) Num() (int, bool) {
	if r == SP || r == NoReg {
		return 0, false
	}
	return ah.Xreg2num(aa.Reg(r))
}

// AsW returns the 32-bit view of an X register.
func (r Reg) AsW() Reg {
	if r == XZR {
		return WZR
	}
	if n, ok := r.Num(); ok {
		return W(n)
	}
	return r
}

// IsZero reports whether r is XZR or WZR.
func (r Reg) IsZero() bool { return r == XZR || r == WZR }

// IsX reports whether r is one of X0..X30.
func (r Reg) IsX() bool {
	return r >= Reg(aa.X0) && r <= Reg(aa.X30)
}

func (r Reg) String() string {
	switch r {
	case SP:
		return "sp"
	case NoReg:
		return "noreg"
	}
	return strings.ToLower(aa.Reg(r).String())
}

// ParseReg converts a register name such as "x8", "W3", "sp" or "xzr".
func ParseReg(s string) (Reg, bool) {
	s = strings.ToUpper(s)
	switch s {
	case "SP":
		return SP, true
	case "XZR":
		return XZR, true
	case "WZR":
		return WZR, true
	case "FP":
		return FP, true
	case "LR":
		return LR, true
	}
	r, ok := ah.DecodeRegister(s)
	if !ok {
		return NoReg, false
	}
	if r > aa.XZR {
		// Only general purpose registers are modelled.
		return NoReg, false
	}
	return Reg(r), true
}

// Overlaps reports whether a and b name the same architectural register,
// for example X3 and W3.
func Overlaps(a, b Reg) bool {
	if a == b {
		return true
	}
	na, okA := a.Num()
	nb, okB := b.Num()
	return okA && okB && na == nb
}
