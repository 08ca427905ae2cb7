// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package mir // import "github.com/parts-pauth/parts/mir"

// Opcode identifies a machine instruction or pseudo-instruction.
type Opcode uint16

const (
	InvalidOp Opcode = iota

	// Loads: defs, base, immediate.
	LDRXui  // 64-bit, unsigned offset scaled by 8
	LDURXi  // 64-bit, signed unscaled offset
	LDRWui  // 32-bit, unsigned offset scaled by 4
	LDRBBui // 8-bit, unsigned offset
	LDPXi   // pair of 64-bit, signed offset scaled by 8

	// Stores: sources, base, immediate.
	STRXui
	STURXi
	STRWui
	STRBBui
	STPXi

	ADDXri  // dst, src, imm, shift
	ORRXrs  // dst, xzr, src, shift (register move)
	MOVZXi  // dst, imm16, shift
	MOVKXi  // dst, dst(tied), imm16, shift
	MOVaddr // dst, @symbol
	COPY    // dst, src

	PACDA // dst, dst(tied), modifier
	AUTDA // dst, dst(tied), modifier
	PACIB // lr, lr(tied), sp
	AUTIB // lr, lr(tied), sp

	BL    // @callee
	BLR   // target register
	B     // %block
	CBNZX // src, %block; falls through when src is zero
	RET

	// PARTS_PACDA and PARTS_AUTDA sign or authenticate src with mod into dst.
	PARTS_PACDA
	PARTS_AUTDA
	// PARTS_EVENT bumps a runtime statistics counter. The emitter expands
	// it into a call that preserves all registers.
	PARTS_EVENT

	numOpcodes
)

type opFlags uint16

const (
	flagLoad opFlags = 1 << iota
	flagStore
	flagPaired
	flagCall
	flagReturn
	flagBranch
	flagConditional
	flagPseudo
	flagUnscaled
)

type opInfo struct {
	name  string
	flags opFlags
	// size is the access size in bytes of loads and stores.
	size int64
}

var opInfos = [numOpcodes]opInfo{
	InvalidOp:   {name: "INVALID"},
	LDRXui:      {name: "LDRXui", flags: flagLoad, size: 8},
	LDURXi:      {name: "LDURXi", flags: flagLoad | flagUnscaled, size: 8},
	LDRWui:      {name: "LDRWui", flags: flagLoad, size: 4},
	LDRBBui:     {name: "LDRBBui", flags: flagLoad, size: 1},
	LDPXi:       {name: "LDPXi", flags: flagLoad | flagPaired, size: 8},
	STRXui:      {name: "STRXui", flags: flagStore, size: 8},
	STURXi:      {name: "STURXi", flags: flagStore | flagUnscaled, size: 8},
	STRWui:      {name: "STRWui", flags: flagStore, size: 4},
	STRBBui:     {name: "STRBBui", flags: flagStore, size: 1},
	STPXi:       {name: "STPXi", flags: flagStore | flagPaired, size: 8},
	ADDXri:      {name: "ADDXri"},
	ORRXrs:      {name: "ORRXrs"},
	MOVZXi:      {name: "MOVZXi"},
	MOVKXi:      {name: "MOVKXi"},
	MOVaddr:     {name: "MOVaddr", flags: flagPseudo},
	COPY:        {name: "COPY", flags: flagPseudo},
	PACDA:       {name: "PACDA"},
	AUTDA:       {name: "AUTDA"},
	PACIB:       {name: "PACIB"},
	AUTIB:       {name: "AUTIB"},
	BL:          {name: "BL", flags: flagCall},
	BLR:         {name: "BLR", flags: flagCall},
	B:           {name: "B", flags: flagBranch},
	CBNZX:       {name: "CBNZX", flags: flagBranch | flagConditional},
	RET:         {name: "RET", flags: flagReturn},
	PARTS_PACDA: {name: "PARTS_PACDA", flags: flagPseudo},
	PARTS_AUTDA: {name: "PARTS_AUTDA", flags: flagPseudo},
	PARTS_EVENT: {name: "PARTS_EVENT", flags: flagPseudo},
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, numOpcodes)
	for op := Opcode(1); op < numOpcodes; op++ {
		m[opInfos[op].name] = op
	}
	return m
}()

// LookupOpcode returns the opcode with the given name.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

func (op Opcode) info() opInfo {
	if op >= numOpcodes {
		return opInfos[InvalidOp]
	}
	return opInfos[op]
}

func (op Opcode) String() string { return op.info().name }

// IsLoad reports whether op reads memory into registers.
func (op Opcode) IsLoad() bool { return op.info().flags&flagLoad != 0 }

// IsStore reports whether op writes registers to memory.
func (op Opcode) IsStore() bool { return op.info().flags&flagStore != 0 }

// IsLoadOrStore reports whether op is a load or a store.
func (op Opcode) IsLoadOrStore() bool { return op.IsLoad() || op.IsStore() }

// IsPaired reports whether op transfers a register pair.
func (op Opcode) IsPaired() bool { return op.info().flags&flagPaired != 0 }

// IsCall reports whether op is a call.
func (op Opcode) IsCall() bool { return op.info().flags&flagCall != 0 }

// IsReturn reports whether op returns from the function.
func (op Opcode) IsReturn() bool { return op.info().flags&flagReturn != 0 }

// IsBranch reports whether op transfers control to a block.
func (op Opcode) IsBranch() bool { return op.info().flags&flagBranch != 0 }

// IsConditional reports whether a branch may fall through.
func (op Opcode) IsConditional() bool { return op.info().flags&flagConditional != 0 }

// AccessSize returns the number of bytes a load or store transfers per register.
func (op Opcode) AccessSize() int64 { return op.info().size }

// OffsetScale returns the factor the immediate offset of a load or store is
// multiplied with.
func (op Opcode) OffsetScale() int64 {
	if op.info().flags&flagUnscaled != 0 {
		return 1
	}
	return op.info().size
}

// ValidAddShift reports whether shift is an ADDXri immediate shift, which
// the instruction encodes as LSL #0 or LSL #12.
func ValidAddShift(shift int64) bool { return shift == 0 || shift == 12 }

// callerSaved reports whether a call may clobber r under AAPCS64.
func callerSaved(r Reg) bool {
	n, ok := r.Num()
	return ok && (n <= 18 || n == 30)
}
