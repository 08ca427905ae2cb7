// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package ir // import "github.com/parts-pauth/parts/ir"

import (
	"fmt"

	"github.com/parts-pauth/parts/types"
)

// Builder appends or inserts instructions into a block.
type Builder struct {
	block *Block
	// pos is the insertion index, -1 appends.
	pos int
}

// NewBuilder returns a builder appending to b.
func NewBuilder(b *Block) *Builder {
	return &Builder{block: b, pos: -1}
}

// NewBuilderAt returns a builder inserting before instruction index i of b.
func NewBuilderAt(b *Block, i int) *Builder {
	return &Builder{block: b, pos: i}
}

// Block returns the block the builder inserts into.
func (b *Builder) Block() *Block { return b.block }

// SetBlock moves the builder to the end of blk.
func (b *Builder) SetBlock(blk *Block) {
	b.block = blk
	b.pos = -1
}

func (b *Builder) emit(in *Instruction) *Instruction {
	if b.pos < 0 {
		in.parent = b.block
		b.block.Instrs = append(b.block.Instrs, in)
		return in
	}
	b.block.Insert(b.pos, in)
	b.pos++
	return in
}

// Alloca reserves a stack slot for a value of type t.
func (b *Builder) Alloca(name string, t types.Type) *Instruction {
	return b.emit(&Instruction{Op: OpAlloca, name: name, typ: types.Pointer(t), Allocated: t})
}

// Load reads the value ptr points to.
func (b *Builder) Load(name string, ptr Value) *Instruction {
	elem := types.Elem(ptr.Type())
	if elem == nil {
		panic(fmt.Sprintf("load from non-pointer %s", ptr.Type()))
	}
	return b.emit(&Instruction{Op: OpLoad, name: name, typ: elem, Operands: []Value{ptr}})
}

// Store writes v to ptr.
func (b *Builder) Store(v, ptr Value) *Instruction {
	return b.emit(&Instruction{Op: OpStore, Operands: []Value{v, ptr}})
}

// Call calls callee, which must have a function pointer type.
func (b *Builder) Call(name string, callee Value, args ...Value) *Instruction {
	ft, ok := types.Elem(callee.Type()).(*types.FuncType)
	if !ok {
		panic(fmt.Sprintf("call through non-function %s", callee.Type()))
	}
	ops := append([]Value{callee}, args...)
	var rt types.Type
	if ft.Ret.Kind() != types.KindVoid {
		rt = ft.Ret
	} else {
		name = ""
	}
	return b.emit(&Instruction{Op: OpCall, name: name, typ: rt, Operands: ops})
}

// Ret returns from the function, with v when it is not nil.
func (b *Builder) Ret(v Value) *Instruction {
	in := &Instruction{Op: OpRet}
	if v != nil {
		in.Operands = []Value{v}
	}
	return b.emit(in)
}

// Br jumps to target.
func (b *Builder) Br(target *Block) *Instruction {
	return b.emit(&Instruction{Op: OpBr, Target: target})
}

// GEP computes the address of an element inside *ptr. The first index steps
// over whole pointees, further indices select struct fields or array elements.
func (b *Builder) GEP(name string, ptr Value, indices ...int64) (*Instruction, error) {
	t, err := gepResultElem(ptr.Type(), indices)
	if err != nil {
		return nil, err
	}
	return b.emit(&Instruction{Op: OpGEP, name: name, typ: types.Pointer(t),
		Operands: []Value{ptr}, Indices: indices}), nil
}

// Bitcast reinterprets v as t.
func (b *Builder) Bitcast(name string, v Value, t types.Type) *Instruction {
	return b.emit(&Instruction{Op: OpBitcast, name: name, typ: t, Operands: []Value{v}})
}

func gepResultElem(ptrType types.Type, indices []int64) (types.Type, error) {
	t := types.Elem(ptrType)
	if t == nil {
		return nil, fmt.Errorf("getelementptr on non-pointer %s", ptrType)
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("getelementptr without indices")
	}
	for _, idx := range indices[1:] {
		switch tt := t.(type) {
		case *types.StructType:
			if idx < 0 || int(idx) >= len(tt.Fields) {
				return nil, fmt.Errorf("field %d out of range for %s", idx, tt)
			}
			t = tt.Fields[idx]
		case *types.ArrayType:
			t = tt.Elem
		default:
			return nil, fmt.Errorf("cannot index into %s", t)
		}
	}
	return t, nil
}

// GEPOffset returns the constant byte offset computed by a getelementptr.
func GEPOffset(in *Instruction) int64 {
	t := types.Elem(in.Operands[0].Type())
	off := in.Indices[0] * types.SizeOf(t)
	for _, idx := range in.Indices[1:] {
		switch tt := t.(type) {
		case *types.StructType:
			off += types.FieldOffset(tt, int(idx))
			t = tt.Fields[idx]
		case *types.ArrayType:
			off += idx * types.SizeOf(tt.Elem)
			t = tt.Elem
		}
	}
	return off
}
