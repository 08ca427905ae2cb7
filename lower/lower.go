// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// Package lower selects machine instructions for typed IR functions.
//
// The selection is deliberately simple: every alloca becomes a frame object
// addressed from FP, address arithmetic is folded into load and store
// offsets, and values live in registers for their whole live range.
// Pointer type metadata is carried from IR loads, stores and calls to the
// machine instructions they become, except for the instruction classes the
// caller asks to drop.
package lower // import "github.com/parts-pauth/parts/lower"

import (
	"errors"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"

	ah "github.com/parts-pauth/parts/armhelpers"
	"github.com/parts-pauth/parts/ir"
	"github.com/parts-pauth/parts/metadata"
	"github.com/parts-pauth/parts/mir"
	"github.com/parts-pauth/parts/types"
)

// ErrUnsupported is returned for IR this lowering cannot select
// instructions for.
var ErrUnsupported = errors.New("unsupported by instruction selection")

// Instruction classes metadata can be dropped for.
const (
	ClassLoad  = "load"
	ClassStore = "store"
	ClassCall  = "call"
)

// frameBase is the offset of the first frame object from FP, above the
// saved FP/LR pair.
const frameBase = 16

// maxRegArgs is the number of arguments passed in registers.
const maxRegArgs = 8

// Options control the lowering.
type Options struct {
	// DropMetadataOn lists instruction classes whose pointer type metadata
	// is not carried over to the machine instruction.
	DropMetadataOn []string
}

type locKind uint8

const (
	locReg locKind = iota + 1
	locFrame
	locSymbol
	locConst
)

// location describes where the value of an IR value can be found. Address
// values derived with getelementptr or bitcast share the location of their
// root with an added byte offset.
type location struct {
	kind locKind
	root ir.Value
	off  int64
	sym  string
	imm  int64
}

type lowering struct {
	mod  *ir.Module
	fn   *ir.Function
	opts Options
	out  *mir.Function

	leaf   bool
	frame  map[*ir.Instruction]int64
	locs   map[ir.Value]location
	live   *liveness
	cur    *mir.Block
	curPos int
}

// Function lowers the definition f of module m.
func Function(m *ir.Module, f *ir.Function, opts Options) (*mir.Function, error) {
	if f.IsDeclaration() {
		return nil, fmt.Errorf("%s is a declaration", f.Name())
	}
	if len(f.Params) > maxRegArgs {
		return nil, fmt.Errorf("%w: %s has more than %d parameters",
			ErrUnsupported, f.Name(), maxRegArgs)
	}

	l := &lowering{
		mod:   m,
		fn:    f,
		opts:  opts,
		out:   mir.NewFunction(f.Name()),
		leaf:  true,
		frame: make(map[*ir.Instruction]int64),
		locs:  make(map[ir.Value]location),
	}
	l.out.ArgTypes = slices.Clone(f.Sig.Params)
	for k, v := range f.Attrs {
		l.out.Attrs[k] = v
	}

	l.layoutFrame()
	f.Instructions(func(in *ir.Instruction) {
		if in.Op == ir.OpCall && !ir.IsIntrinsic(in.CalledFunction()) {
			l.leaf = false
		}
	})
	l.computeLiveness()
	if err := l.allocate(); err != nil {
		return nil, err
	}

	for i, b := range f.Blocks {
		l.cur = l.out.AddBlock(b.Name)
		if i == 0 {
			l.copyParams()
		}
		for _, in := range b.Instrs {
			l.curPos = l.live.pos[in]
			if err := l.instr(in); err != nil {
				return nil, fmt.Errorf("%s: %s: %w", f.Name(), in, err)
			}
		}
	}
	l.out.ComputeCFG()
	log.Debugf("Lowered %s: %d blocks, %d frame objects, leaf=%v",
		f.Name(), len(l.out.Blocks), len(l.out.Frame), l.leaf)
	return l.out, nil
}

func (l *lowering) dropMetadata(class string) bool {
	return slices.Contains(l.opts.DropMetadataOn, class)
}

func (l *lowering) layoutFrame() {
	next := int64(frameBase)
	n := 0
	l.fn.Instructions(func(in *ir.Instruction) {
		if in.Op != ir.OpAlloca {
			return
		}
		align := max(types.AlignOf(in.Allocated), 8)
		next = (next + align - 1) &^ (align - 1)
		name := in.Name()
		if name == "" {
			name = fmt.Sprintf("slot%d", n)
		}
		n++
		l.frame[in] = next
		l.out.Frame = append(l.out.Frame, mir.FrameObject{
			Name:   name,
			Offset: next,
			Type:   in.Allocated,
		})
		next += max(types.SizeOf(in.Allocated), 1)
	})
}

// locate resolves v to its root location.
func (l *lowering) locate(v ir.Value) location {
	if loc, ok := l.locs[v]; ok {
		return loc
	}
	var loc location
	switch val := v.(type) {
	case *ir.Param:
		loc = location{kind: locReg, root: val}
	case *ir.Global:
		loc = location{kind: locSymbol, sym: val.Name()}
		l.out.Globals[val.Name()] = val.ValueType
	case *ir.Function:
		loc = location{kind: locSymbol, sym: val.Name()}
		l.out.Globals[val.Name()] = val.Sig
	case *ir.Const:
		loc = location{kind: locConst, imm: val.Value}
	case *ir.Instruction:
		switch val.Op {
		case ir.OpAlloca:
			loc = location{kind: locFrame, off: l.frame[val]}
		case ir.OpGEP:
			loc = l.locate(val.Operands[0])
			loc.off += ir.GEPOffset(val)
		case ir.OpBitcast:
			loc = l.locate(val.Operands[0])
		default:
			loc = location{kind: locReg, root: val}
		}
	}
	l.locs[v] = loc
	return loc
}

func (l *lowering) emit(op mir.Opcode, ops ...mir.Operand) *mir.Instr {
	in := mir.NewInstr(op, ops...)
	l.cur.Append(in)
	return in
}

func (l *lowering) regOf(v ir.Value) mir.Reg {
	return l.live.intervals[v].reg
}

// use returns the register operand for a register held value at the current
// position, flagged killed at its last use.
func (l *lowering) use(v ir.Value) mir.Operand {
	r := l.regOf(v)
	if l.live.isLastUse(v, l.curPos) {
		return mir.KillOp(r)
	}
	return mir.RegOp(r)
}

func (l *lowering) copyParams() {
	if l.leaf {
		return
	}
	for _, p := range l.fn.Params {
		iv := l.live.intervals[p]
		if iv.end == 0 && !iv.open {
			continue
		}
		l.emit(mir.COPY, mir.DefOp(iv.reg), mir.KillOp(mir.X(p.Index)))
	}
}

// materialize makes the value of v available in a register, using dst when
// anything has to be computed.
func (l *lowering) materialize(v ir.Value, dst mir.Reg) (mir.Operand, error) {
	loc := l.locate(v)
	switch loc.kind {
	case locReg:
		if loc.off == 0 {
			return l.use(loc.root), nil
		}
		if loc.off < 0 || loc.off > 4095 {
			return mir.Operand{}, fmt.Errorf("%w: offset %d", ErrUnsupported, loc.off)
		}
		l.emit(mir.ADDXri, mir.DefOp(dst), l.use(loc.root), mir.ImmOp(loc.off), mir.ImmOp(0))
	case locFrame:
		l.emit(mir.ADDXri, mir.DefOp(dst), mir.RegOp(mir.FP), mir.ImmOp(loc.off), mir.ImmOp(0))
	case locSymbol:
		l.emit(mir.MOVaddr, mir.DefOp(dst), mir.SymOp(loc.sym))
		if loc.off != 0 {
			l.emit(mir.ADDXri, mir.DefOp(dst), mir.KillOp(dst), mir.ImmOp(loc.off), mir.ImmOp(0))
		}
	case locConst:
		if loc.imm == 0 {
			return mir.RegOp(mir.XZR), nil
		}
		l.moveImmediate(dst, uint64(loc.imm))
	default:
		return mir.Operand{}, fmt.Errorf("%w: operand %T", ErrUnsupported, v)
	}
	return mir.KillOp(dst), nil
}

func (l *lowering) moveImmediate(dst mir.Reg, v uint64) {
	for i, c := range ah.MovWideChunks(v) {
		if i == 0 {
			l.emit(mir.MOVZXi, mir.DefOp(dst), mir.ImmOp(int64(c.Imm)), mir.ImmOp(int64(c.Shift)))
			continue
		}
		l.emit(mir.MOVKXi, mir.DefOp(dst), mir.KillOp(dst),
			mir.ImmOp(int64(c.Imm)), mir.ImmOp(int64(c.Shift)))
	}
}

// address resolves the pointer operand of a load or store to a base register
// and byte offset.
func (l *lowering) address(ptr ir.Value) (mir.Operand, int64, error) {
	loc := l.locate(ptr)
	switch loc.kind {
	case locFrame:
		return mir.RegOp(mir.FP), loc.off, nil
	case locReg:
		return l.use(loc.root), loc.off, nil
	case locSymbol:
		l.emit(mir.MOVaddr, mir.DefOp(scratchAddr), mir.SymOp(loc.sym))
		return mir.KillOp(scratchAddr), loc.off, nil
	case locConst:
		l.moveImmediate(scratchAddr, uint64(loc.imm))
		return mir.KillOp(scratchAddr), 0, nil
	}
	return mir.Operand{}, 0, fmt.Errorf("%w: address %T", ErrUnsupported, ptr)
}

type memOps struct {
	scaled, unscaled mir.Opcode
	size             int64
}

var (
	memLoad8   = memOps{mir.LDRXui, mir.LDURXi, 8}
	memLoad4   = memOps{mir.LDRWui, mir.InvalidOp, 4}
	memLoad1   = memOps{mir.LDRBBui, mir.InvalidOp, 1}
	memStore8  = memOps{mir.STRXui, mir.STURXi, 8}
	memStore4  = memOps{mir.STRWui, mir.InvalidOp, 4}
	memStore1  = memOps{mir.STRBBui, mir.InvalidOp, 1}
	loadBySize = map[int64]memOps{8: memLoad8, 4: memLoad4, 1: memLoad1}
	storeBySz  = map[int64]memOps{8: memStore8, 4: memStore4, 1: memStore1}
)

// memAccess emits a load or store of value at [base, #off], picking the
// addressing form the offset fits.
func (l *lowering) memAccess(ops memOps, value, base mir.Operand, off int64) *mir.Instr {
	if ops.size != 8 {
		value.Reg = value.Reg.AsW()
	}
	switch {
	case off >= 0 && off%ops.size == 0 && off/ops.size < 4096:
		return l.emit(ops.scaled, value, base, mir.ImmOp(off/ops.size))
	case ops.unscaled != mir.InvalidOp && off >= -256 && off < 256:
		return l.emit(ops.unscaled, value, base, mir.ImmOp(off))
	}
	l.emit(mir.ADDXri, mir.DefOp(scratchAddr), base, mir.ImmOp(off), mir.ImmOp(0))
	return l.emit(ops.scaled, value, mir.KillOp(scratchAddr), mir.ImmOp(0))
}

func accessSize(t types.Type) (int64, error) {
	switch t.Kind() {
	case types.KindPointer:
		return 8, nil
	case types.KindInt:
		switch sz := types.SizeOf(t); sz {
		case 1, 4, 8:
			return sz, nil
		}
	}
	return 0, fmt.Errorf("%w: memory access of type %s", ErrUnsupported, t)
}

func (l *lowering) carryMetadata(class string, from *ir.Instruction, to *mir.Instr) {
	if l.dropMetadata(class) {
		return
	}
	metadata.Copy(to, from)
}

func (l *lowering) instr(in *ir.Instruction) error {
	switch in.Op {
	case ir.OpAlloca, ir.OpGEP, ir.OpBitcast:
		return nil
	case ir.OpLoad:
		return l.load(in)
	case ir.OpStore:
		return l.store(in)
	case ir.OpCall:
		return l.call(in)
	case ir.OpRet:
		if len(in.Operands) == 1 {
			if err := l.moveTo(in.Operands[0], mir.X(0)); err != nil {
				return err
			}
		}
		l.emit(mir.RET)
		return nil
	case ir.OpBr:
		l.emit(mir.B, mir.BlockOp(in.Target.Name))
		return nil
	}
	return fmt.Errorf("%w: opcode %s", ErrUnsupported, in.Op)
}

func (l *lowering) load(in *ir.Instruction) error {
	size, err := accessSize(in.Type())
	if err != nil {
		return err
	}
	base, off, err := l.address(in.PointerOperand())
	if err != nil {
		return err
	}
	if base.Reg == mir.FP && off < 0 {
		return fmt.Errorf("%w: negative frame offset", ErrUnsupported)
	}
	mi := l.memAccess(loadBySize[size], mir.DefOp(l.regOf(in)), base, off)
	l.carryMetadata(ClassLoad, in, mi)
	return nil
}

func (l *lowering) store(in *ir.Instruction) error {
	v := in.StoredValue()
	size, err := accessSize(v.Type())
	if err != nil {
		return err
	}
	value, err := l.materialize(v, scratchValue)
	if err != nil {
		return err
	}
	base, off, err := l.address(in.PointerOperand())
	if err != nil {
		return err
	}
	if types.IsPointer(v.Type()) && value.IsReg() && !value.Reg.IsZero() &&
		(!value.Kill || (base.IsReg() && mir.Overlaps(base.Reg, value.Reg))) {
		// The stored pointer may be signed in place, so a value that
		// stays live or also forms the address is stored from a copy.
		l.emit(mir.COPY, mir.DefOp(scratchValue), mir.RegOp(value.Reg))
		value = mir.KillOp(scratchValue)
	}
	mi := l.memAccess(storeBySz[size], value, base, off)
	l.carryMetadata(ClassStore, in, mi)
	return nil
}

// moveTo places the value of v into dst.
func (l *lowering) moveTo(v ir.Value, dst mir.Reg) error {
	op, err := l.materialize(v, dst)
	if err != nil {
		return err
	}
	if op.Reg != dst {
		l.emit(mir.COPY, mir.DefOp(dst), op)
	}
	return nil
}

func (l *lowering) call(in *ir.Instruction) error {
	callee := in.CalledFunction()
	if ir.IsIntrinsic(callee) {
		return l.intrinsic(in, callee)
	}

	args := in.Args()
	if len(args) > maxRegArgs {
		return fmt.Errorf("%w: more than %d call arguments", ErrUnsupported, maxRegArgs)
	}
	for i, a := range args {
		if err := l.moveTo(a, mir.X(i)); err != nil {
			return err
		}
	}

	var mi *mir.Instr
	if callee != nil {
		mi = l.emit(mir.BL, mir.SymOp(callee.Name()))
	} else {
		target, err := l.materialize(in.Callee(), scratchAddr)
		if err != nil {
			return err
		}
		mi = l.emit(mir.BLR, target)
	}
	if ft, ok := types.Elem(in.Callee().Type()).(*types.FuncType); ok &&
		ft.Ret.Kind() != types.KindVoid {
		mi.RetType = ft.Ret
	}
	l.carryMetadata(ClassCall, in, mi)

	if isRegisterValue(in) {
		l.emit(mir.COPY, mir.DefOp(l.regOf(in)), mir.KillOp(mir.X(0)))
	}
	return nil
}

func (l *lowering) intrinsic(in *ir.Instruction, callee *ir.Function) error {
	args := in.Args()
	if len(args) != 2 {
		return fmt.Errorf("%w: %s expects pointer and modifier", ErrUnsupported, callee.Name())
	}
	src, err := l.materialize(args[0], scratchAddr)
	if err != nil {
		return err
	}
	mod, err := l.materialize(args[1], scratchValue)
	if err != nil {
		return err
	}
	op := mir.PARTS_PACDA
	if callee.Name() == ir.IntrinsicAuth {
		op = mir.PARTS_AUTDA
	}
	dst := scratchAddr
	if isRegisterValue(in) {
		dst = l.regOf(in)
	}
	l.emit(op, mir.DefOp(dst), src, mod)
	return nil
}
