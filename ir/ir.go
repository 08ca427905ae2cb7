// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// Package ir is the typed intermediate representation that pointer type
// metadata is first attached to.
package ir // import "github.com/parts-pauth/parts/ir"

import (
	"strconv"

	"github.com/parts-pauth/parts/metadata"
	"github.com/parts-pauth/parts/types"
)

// AttrNoInstrument marks functions that must not be instrumented, typically
// because this tool generated them.
const AttrNoInstrument = "no-parts"

// Intrinsics that sign or authenticate a data pointer. Both take the pointer
// and a 64-bit modifier and return the resulting pointer.
const (
	IntrinsicSign = "pauth.pac"
	IntrinsicAuth = "pauth.aut"
)

// IsIntrinsic reports whether f is one of the pointer authentication intrinsics.
func IsIntrinsic(f *Function) bool {
	return f != nil && (f.name == IntrinsicSign || f.name == IntrinsicAuth)
}

// Value is anything an instruction can use as an operand.
type Value interface {
	Type() types.Type
	Name() string
}

// Module is a compilation unit.
type Module struct {
	Name      string
	Globals   []*Global
	Functions []*Function
}

// Function returns the function called name, or nil.
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.name == name {
			return f
		}
	}
	return nil
}

// Global returns the global variable called name, or nil.
func (m *Module) Global(name string) *Global {
	for _, g := range m.Globals {
		if g.name == name {
			return g
		}
	}
	return nil
}

// AddFunction appends a new function to the module.
func (m *Module) AddFunction(name string, sig *types.FuncType) *Function {
	f := NewFunction(name, sig)
	m.Functions = append(m.Functions, f)
	return f
}

// AddGlobal appends a new global variable to the module.
func (m *Module) AddGlobal(name string, valueType types.Type, init Value) *Global {
	g := &Global{name: name, ValueType: valueType, Init: init}
	m.Globals = append(m.Globals, g)
	return g
}

// Global is a module level variable. As a value it is the address of the variable.
type Global struct {
	name      string
	ValueType types.Type
	// Init is the initializer, nil for external globals.
	Init Value
}

func (g *Global) Name() string     { return g.name }
func (g *Global) Type() types.Type { return types.Pointer(g.ValueType) }

// Param is a formal function parameter.
type Param struct {
	name  string
	typ   types.Type
	Index int
}

func (p *Param) Name() string     { return p.name }
func (p *Param) Type() types.Type { return p.typ }

// Const is an integer constant or, for pointer types, the null pointer.
type Const struct {
	typ   types.Type
	Value int64
}

// ConstInt returns an integer constant.
func ConstInt(t types.Type, v int64) *Const { return &Const{typ: t, Value: v} }

// Null returns the null pointer of type t.
func Null(t types.Type) *Const { return &Const{typ: t} }

func (c *Const) Name() string     { return "" }
func (c *Const) Type() types.Type { return c.typ }

// Aggregate is a constant array or struct initializer.
type Aggregate struct {
	typ   types.Type
	Elems []Value
}

// NewAggregate returns a constant aggregate of type t.
func NewAggregate(t types.Type, elems ...Value) *Aggregate {
	return &Aggregate{typ: t, Elems: elems}
}

func (a *Aggregate) Name() string     { return "" }
func (a *Aggregate) Type() types.Type { return a.typ }

// Function is a function definition or declaration. As a value it is the
// address of the function.
type Function struct {
	name   string
	Sig    *types.FuncType
	Params []*Param
	Blocks []*Block
	Attrs  map[string]string
}

// NewFunction returns an empty function with the given signature.
func NewFunction(name string, sig *types.FuncType) *Function {
	f := &Function{name: name, Sig: sig, Attrs: map[string]string{}}
	for i, pt := range sig.Params {
		f.Params = append(f.Params, &Param{name: "arg" + strconv.Itoa(i), typ: pt, Index: i})
	}
	return f
}

func (f *Function) Name() string     { return f.name }
func (f *Function) Type() types.Type { return types.Pointer(f.Sig) }

// IsDeclaration reports whether the function has no body.
func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

// HasAttr reports whether the attribute key is set.
func (f *Function) HasAttr(key string) bool {
	_, ok := f.Attrs[key]
	return ok
}

// SetParamName renames parameter i.
func (f *Function) SetParamName(i int, name string) {
	f.Params[i].name = name
}

// AddBlock appends a new basic block.
func (f *Function) AddBlock(name string) *Block {
	b := &Block{Name: name, parent: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Entry returns the entry block, or nil for declarations.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Instructions calls fn for every instruction in program order.
func (f *Function) Instructions(fn func(*Instruction)) {
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			fn(in)
		}
	}
}

// Block is a basic block.
type Block struct {
	Name   string
	Instrs []*Instruction
	parent *Function
}

// Parent returns the function containing b.
func (b *Block) Parent() *Function { return b.parent }

// Insert places in at position i of the block.
func (b *Block) Insert(i int, in *Instruction) {
	in.parent = b
	b.Instrs = append(b.Instrs, nil)
	copy(b.Instrs[i+1:], b.Instrs[i:])
	b.Instrs[i] = in
}

// Op is an IR instruction opcode.
type Op uint8

const (
	OpAlloca Op = iota + 1
	OpLoad
	OpStore
	OpCall
	OpRet
	OpBr
	OpGEP
	OpBitcast
)

var opNames = map[Op]string{
	OpAlloca:  "alloca",
	OpLoad:    "load",
	OpStore:   "store",
	OpCall:    "call",
	OpRet:     "ret",
	OpBr:      "br",
	OpGEP:     "getelementptr",
	OpBitcast: "bitcast",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// Instruction is a single IR instruction. Its operands depend on Op:
//
//	alloca:  no operands, Allocated holds the allocated type
//	load:    [ptr]
//	store:   [value, ptr]
//	call:    [callee, args...]
//	ret:     [] or [value]
//	br:      no operands, Target holds the successor
//	gep:     [ptr], Indices holds constant indices
//	bitcast: [value]
type Instruction struct {
	Op        Op
	name      string
	typ       types.Type
	Operands  []Value
	Allocated types.Type
	Indices   []int64
	Target    *Block

	parent *Block
	md     metadata.Slot
}

func (in *Instruction) Name() string { return in.name }

// Type returns the type of the value the instruction produces.
func (in *Instruction) Type() types.Type {
	if in.typ == nil {
		return types.Void
	}
	return in.typ
}

// Parent returns the block containing the instruction.
func (in *Instruction) Parent() *Block { return in.parent }

// MetadataSlot implements metadata.Carrier.
func (in *Instruction) MetadataSlot() *metadata.Slot { return &in.md }

// StoredValue returns the value operand of a store.
func (in *Instruction) StoredValue() Value { return in.Operands[0] }

// PointerOperand returns the address operand of a load or store.
func (in *Instruction) PointerOperand() Value {
	if in.Op == OpStore {
		return in.Operands[1]
	}
	return in.Operands[0]
}

// Callee returns the called value of a call.
func (in *Instruction) Callee() Value { return in.Operands[0] }

// Args returns the arguments of a call.
func (in *Instruction) Args() []Value { return in.Operands[1:] }

// CalledFunction returns the statically known callee of a call, or nil for
// indirect calls.
func (in *Instruction) CalledFunction() *Function {
	if in.Op != OpCall {
		return nil
	}
	f, _ := in.Operands[0].(*Function)
	return f
}

// IsTerminator reports whether the instruction ends a block.
func (in *Instruction) IsTerminator() bool {
	return in.Op == OpRet || in.Op == OpBr
}
