// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package types // import "github.com/parts-pauth/parts/types"

// PointerSize is the size of a pointer on the target in bytes.
const PointerSize = 8

// SizeOf returns the store size of t in bytes. Functions and void have no size.
func SizeOf(t Type) int64 {
	switch tt := t.(type) {
	case *IntType:
		return int64((tt.Bits + 7) / 8)
	case *PointerType:
		return PointerSize
	case *ArrayType:
		return int64(tt.Len) * SizeOf(tt.Elem)
	case *StructType:
		var off int64
		for _, f := range tt.Fields {
			off = alignTo(off, AlignOf(f)) + SizeOf(f)
		}
		return alignTo(off, AlignOf(tt))
	}
	return 0
}

// AlignOf returns the natural alignment of t in bytes.
func AlignOf(t Type) int64 {
	switch tt := t.(type) {
	case *IntType:
		a := SizeOf(tt)
		if a == 0 {
			return 1
		}
		return a
	case *PointerType:
		return PointerSize
	case *ArrayType:
		return AlignOf(tt.Elem)
	case *StructType:
		var a int64 = 1
		for _, f := range tt.Fields {
			if fa := AlignOf(f); fa > a {
				a = fa
			}
		}
		return a
	}
	return 1
}

// FieldOffset returns the byte offset of field i within t.
func FieldOffset(t *StructType, i int) int64 {
	var off int64
	for j, f := range t.Fields {
		off = alignTo(off, AlignOf(f))
		if j == i {
			return off
		}
		off += SizeOf(f)
	}
	return off
}

// ElementAt returns the scalar type stored at byte offset off within a value of
// type t. Aggregates are descended until a non-aggregate starts exactly at off.
func ElementAt(t Type, off int64) (Type, bool) {
	if off < 0 {
		return nil, false
	}
	switch tt := t.(type) {
	case *StructType:
		for i, f := range tt.Fields {
			fo := FieldOffset(tt, i)
			if off >= fo && off < fo+SizeOf(f) {
				return ElementAt(f, off-fo)
			}
		}
		return nil, false
	case *ArrayType:
		es := SizeOf(tt.Elem)
		if es == 0 || off >= int64(tt.Len)*es {
			return nil, false
		}
		return ElementAt(tt.Elem, off%es)
	}
	if off != 0 {
		return nil, false
	}
	return t, true
}

func alignTo(off, align int64) int64 {
	if align <= 1 {
		return off
	}
	return (off + align - 1) / align * align
}
