// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// Package types models the static types of the typed intermediate representation.
// Types are compared structurally through their canonical spelling, see Type.String.
package types // import "github.com/parts-pauth/parts/types"

import (
	"fmt"
	"strings"
)

// Kind classifies a Type.
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt
	KindPointer
	KindFunction
	KindStruct
	KindArray
)

// Type is a static IR type.
type Type interface {
	// Kind returns the classification of the type.
	Kind() Kind
	// String returns the canonical spelling of the type. Two types with the
	// same spelling are structurally identical.
	String() string
}

type voidType struct{}

func (voidType) Kind() Kind     { return KindVoid }
func (voidType) String() string { return "void" }

// Void is the type of functions without a return value.
var Void Type = voidType{}

// IntType is an integer of a fixed bit width.
type IntType struct {
	Bits uint
}

func (*IntType) Kind() Kind       { return KindInt }
func (t *IntType) String() string { return fmt.Sprintf("i%d", t.Bits) }

var (
	I1  = &IntType{Bits: 1}
	I8  = &IntType{Bits: 8}
	I16 = &IntType{Bits: 16}
	I32 = &IntType{Bits: 32}
	I64 = &IntType{Bits: 64}
)

// Int returns an integer type with the given width.
func Int(bits uint) *IntType {
	switch bits {
	case 1:
		return I1
	case 8:
		return I8
	case 16:
		return I16
	case 32:
		return I32
	case 64:
		return I64
	}
	return &IntType{Bits: bits}
}

// PointerType points to values of Elem.
type PointerType struct {
	Elem Type
}

func (*PointerType) Kind() Kind       { return KindPointer }
func (t *PointerType) String() string { return t.Elem.String() + "*" }

// Pointer returns a pointer to elem.
func Pointer(elem Type) *PointerType {
	return &PointerType{Elem: elem}
}

// FuncType is the type of a function, not of a pointer to one.
type FuncType struct {
	Ret      Type
	Params   []Type
	Variadic bool
}

func (*FuncType) Kind() Kind { return KindFunction }

func (t *FuncType) String() string {
	var sb strings.Builder
	sb.WriteString(t.Ret.String())
	sb.WriteString(" (")
	for i, p := range t.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	if t.Variadic {
		if len(t.Params) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("...")
	}
	sb.WriteString(")")
	return sb.String()
}

// Function returns the type of a function returning ret.
func Function(ret Type, params ...Type) *FuncType {
	return &FuncType{Ret: ret, Params: params}
}

// StructType is a sequence of fields laid out with natural alignment.
// A named struct spells as its name, which allows self-referential types.
type StructType struct {
	Name   string
	Fields []Type
}

func (*StructType) Kind() Kind { return KindStruct }

func (t *StructType) String() string {
	if t.Name != "" {
		return "%" + t.Name
	}
	return t.Body()
}

// Body spells the field list of the struct regardless of its name.
func (t *StructType) Body() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, f := range t.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.String())
	}
	sb.WriteString("}")
	return sb.String()
}

// Struct returns an anonymous struct type.
func Struct(fields ...Type) *StructType {
	return &StructType{Fields: fields}
}

// Named returns a named struct type. Its fields can be set later, which
// is required for recursive types.
func Named(name string, fields ...Type) *StructType {
	return &StructType{Name: name, Fields: fields}
}

// ArrayType is a fixed-length sequence of Elem.
type ArrayType struct {
	Len  uint64
	Elem Type
}

func (*ArrayType) Kind() Kind       { return KindArray }
func (t *ArrayType) String() string { return fmt.Sprintf("[%d x %s]", t.Len, t.Elem.String()) }

// Array returns an array of n elements.
func Array(n uint64, elem Type) *ArrayType {
	return &ArrayType{Len: n, Elem: elem}
}

// IsPointer reports whether t is a pointer type.
func IsPointer(t Type) bool {
	return t != nil && t.Kind() == KindPointer
}

// IsFunctionPointer reports whether t is a pointer whose direct pointee is a function.
func IsFunctionPointer(t Type) bool {
	pt, ok := t.(*PointerType)
	return ok && pt.Elem.Kind() == KindFunction
}

// Elem returns the pointee of a pointer type, or nil.
func Elem(t Type) Type {
	if pt, ok := t.(*PointerType); ok {
		return pt.Elem
	}
	return nil
}
