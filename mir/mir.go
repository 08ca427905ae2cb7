// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// Package mir is the register level machine representation for AArch64 that
// the pointer authentication rewrites operate on.
package mir // import "github.com/parts-pauth/parts/mir"

import (
	"slices"

	"github.com/parts-pauth/parts/metadata"
	"github.com/parts-pauth/parts/types"
)

// OperandKind classifies an Operand.
type OperandKind uint8

const (
	KindReg OperandKind = iota + 1
	KindImm
	KindSym
	KindBlock
)

// Operand is a single machine instruction operand.
type Operand struct {
	Kind OperandKind
	Reg  Reg
	Imm  int64
	// Sym names a global symbol or, for KindBlock, a basic block.
	Sym string

	// Def marks a register operand written by the instruction.
	Def bool
	// Kill marks the last use of a register value.
	Kill bool
}

// RegOp returns a register use.
func RegOp(r Reg) Operand { return Operand{Kind: KindReg, Reg: r} }

// KillOp returns a register use that is the last use of the value.
func KillOp(r Reg) Operand { return Operand{Kind: KindReg, Reg: r, Kill: true} }

// DefOp returns a register definition.
func DefOp(r Reg) Operand { return Operand{Kind: KindReg, Reg: r, Def: true} }

// ImmOp returns an immediate.
func ImmOp(v int64) Operand { return Operand{Kind: KindImm, Reg: NoReg, Imm: v} }

// SymOp returns a symbol reference.
func SymOp(s string) Operand { return Operand{Kind: KindSym, Reg: NoReg, Sym: s} }

// BlockOp returns a basic block reference.
func BlockOp(name string) Operand { return Operand{Kind: KindBlock, Reg: NoReg, Sym: name} }

// IsReg reports whether the operand is a register.
func (o Operand) IsReg() bool { return o.Kind == KindReg }

// IsImm reports whether the operand is an immediate.
func (o Operand) IsImm() bool { return o.Kind == KindImm }

// Instr is a machine instruction.
type Instr struct {
	Op       Opcode
	Operands []Operand
	// RetType is the static type of the value a call returns in X0, when
	// the lowering knew it.
	RetType types.Type

	parent *Block
	md     metadata.Slot
}

// NewInstr returns an instruction that is not yet part of a block.
func NewInstr(op Opcode, ops ...Operand) *Instr {
	return &Instr{Op: op, Operands: ops}
}

// MetadataSlot implements metadata.Carrier.
func (in *Instr) MetadataSlot() *metadata.Slot { return &in.md }

// Parent returns the block containing the instruction.
func (in *Instr) Parent() *Block { return in.parent }

// Defines reports whether the instruction writes r, including the implicit
// clobbers of calls.
func (in *Instr) Defines(r Reg) bool {
	for _, o := range in.Operands {
		if o.IsReg() && o.Def && Overlaps(o.Reg, r) {
			return true
		}
	}
	return in.Op.IsCall() && callerSaved(r)
}

// Reads reports whether the instruction uses the current value of r.
func (in *Instr) Reads(r Reg) bool {
	for _, o := range in.Operands {
		if o.IsReg() && !o.Def && Overlaps(o.Reg, r) {
			return true
		}
	}
	return false
}

// Kills reports whether the instruction has a use of r flagged as the last one.
func (in *Instr) Kills(r Reg) bool {
	for _, o := range in.Operands {
		if o.IsReg() && !o.Def && o.Kill && Overlaps(o.Reg, r) {
			return true
		}
	}
	return false
}

// DefReg returns the first register defined by the instruction.
func (in *Instr) DefReg() (Reg, bool) {
	for _, o := range in.Operands {
		if o.IsReg() && o.Def {
			return o.Reg, true
		}
	}
	return NoReg, false
}

// Uses returns the register operands that are not definitions.
func (in *Instr) Uses() []Operand {
	var res []Operand
	for _, o := range in.Operands {
		if o.IsReg() && !o.Def {
			res = append(res, o)
		}
	}
	return res
}

// ValueReg returns the register a single register load defines or a single
// register store reads: operand 0 by convention.
func (in *Instr) ValueReg() (Operand, bool) {
	if !in.Op.IsLoadOrStore() || len(in.Operands) == 0 || !in.Operands[0].IsReg() {
		return Operand{}, false
	}
	return in.Operands[0], true
}

// BaseOffset returns the base register and byte offset of a load or store of
// the shape [base, #imm]. Paired transfers and any other shape report false.
func (in *Instr) BaseOffset() (Reg, int64, bool) {
	if !in.Op.IsLoadOrStore() || in.Op.IsPaired() || len(in.Operands) != 3 {
		return NoReg, 0, false
	}
	base, imm := in.Operands[1], in.Operands[2]
	if !base.IsReg() || !imm.IsImm() {
		return NoReg, 0, false
	}
	return base.Reg, imm.Imm * in.Op.OffsetScale(), true
}

// Block is a machine basic block.
type Block struct {
	Name   string
	Instrs []*Instr
	Succs  []*Block
	Preds  []*Block

	parent *Function
}

// Parent returns the function containing the block.
func (b *Block) Parent() *Function { return b.parent }

// Append adds instructions at the end of the block.
func (b *Block) Append(ins ...*Instr) {
	for _, in := range ins {
		in.parent = b
	}
	b.Instrs = append(b.Instrs, ins...)
}

// InsertAt places ins before position i and returns the number inserted.
func (b *Block) InsertAt(i int, ins ...*Instr) int {
	for _, in := range ins {
		in.parent = b
	}
	b.Instrs = append(b.Instrs[:i], append(append([]*Instr(nil), ins...), b.Instrs[i:]...)...)
	return len(ins)
}

// RemoveAt removes the instruction at position i.
func (b *Block) RemoveAt(i int) *Instr {
	in := b.Instrs[i]
	b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
	in.parent = nil
	return in
}

// IndexOf returns the position of in within the block, or -1.
func (b *Block) IndexOf(in *Instr) int {
	for i, x := range b.Instrs {
		if x == in {
			return i
		}
	}
	return -1
}

// FrameObject is a stack slot addressed as [FP, #Offset].
type FrameObject struct {
	Name   string
	Offset int64
	// Type is the type of the value held in the slot.
	Type types.Type
}

// Function is a machine function.
type Function struct {
	Name   string
	Blocks []*Block
	Frame  []FrameObject
	// ArgTypes are the static types of the arguments passed in X0..X7.
	ArgTypes []types.Type
	// Globals maps referenced global symbols to the type of their value.
	Globals map[string]types.Type
	Attrs   map[string]string
}

// NewFunction returns an empty machine function.
func NewFunction(name string) *Function {
	return &Function{Name: name, Globals: map[string]types.Type{}, Attrs: map[string]string{}}
}

// AddBlock appends a new block.
func (f *Function) AddBlock(name string) *Block {
	b := &Block{Name: name, parent: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Block returns the block called name, or nil.
func (f *Function) Block(name string) *Block {
	for _, b := range f.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// HasAttr reports whether the attribute key is set.
func (f *Function) HasAttr(key string) bool {
	_, ok := f.Attrs[key]
	return ok
}

// FrameObjectAt returns the frame object covering byte offset off from FP.
func (f *Function) FrameObjectAt(off int64) (FrameObject, bool) {
	for _, fo := range f.Frame {
		if off >= fo.Offset && off < fo.Offset+max(types.SizeOf(fo.Type), 1) {
			return fo, true
		}
	}
	return FrameObject{}, false
}

// ComputeCFG derives successor and predecessor lists from branches and fall
// through. Blocks not ending in a branch or return fall through to the next.
func (f *Function) ComputeCFG() {
	for _, b := range f.Blocks {
		b.Succs, b.Preds = nil, nil
	}
	for i, b := range f.Blocks {
		fallThrough := true
		for _, in := range b.Instrs {
			switch {
			case in.Op.IsBranch():
				for _, o := range in.Operands {
					if o.Kind != KindBlock {
						continue
					}
					if t := f.Block(o.Sym); t != nil && !slices.Contains(b.Succs, t) {
						b.Succs = append(b.Succs, t)
					}
				}
				fallThrough = in.Op.IsConditional()
			case in.Op.IsReturn():
				fallThrough = false
			}
		}
		if fallThrough && i+1 < len(f.Blocks) && !slices.Contains(b.Succs, f.Blocks[i+1]) {
			b.Succs = append(b.Succs, f.Blocks[i+1])
		}
		for _, s := range b.Succs {
			s.Preds = append(s.Preds, b)
		}
	}
}

// IsLeaf reports whether the function makes no calls.
func (f *Function) IsLeaf() bool {
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op.IsCall() {
				return false
			}
		}
	}
	return true
}
