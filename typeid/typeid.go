// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// Package typeid derives the numeric type identifiers that are used as the
// context for signing and authenticating pointers.
package typeid // import "github.com/parts-pauth/parts/typeid"

import (
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/parts-pauth/parts/types"
)

// TypeID identifies the static type of a pointer. The two top bits classify the
// pointer, the remaining bits are a fingerprint of the pointee type.
// The zero value means "not a pointer".
type TypeID uint64

const (
	// MaskPointer is set for every pointer type.
	MaskPointer TypeID = 1 << 63
	// MaskCode is set for pointers to functions.
	MaskCode TypeID = 1 << 62
	// MaskFingerprint selects the structural fingerprint.
	MaskFingerprint = MaskCode - 1
)

// None is the identifier of every non-pointer type.
const None TypeID = 0

// Of returns the identifier of t.
func Of(t types.Type) TypeID {
	if !types.IsPointer(t) {
		return None
	}
	id := MaskPointer | Fingerprint(types.Elem(t))
	if types.IsFunctionPointer(t) {
		id |= MaskCode
	}
	return id
}

// Fingerprint hashes the canonical spelling of t. Named structs are hashed
// including their body so that two distinct declarations with the same name
// in different modules do not collide on the name alone.
func Fingerprint(t types.Type) TypeID {
	s := t.String()
	if st, ok := t.(*types.StructType); ok && st.Name != "" {
		s += "=" + st.Body()
	}
	return TypeID(xxh3.HashString(s)) & MaskFingerprint
}

// IsPointer reports whether id belongs to a pointer type.
func (id TypeID) IsPointer() bool {
	return id&MaskPointer != 0
}

// IsCodePointer reports whether id belongs to a pointer to a function.
func (id TypeID) IsCodePointer() bool {
	return id.IsPointer() && id&MaskCode != 0
}

// IsDataPointer reports whether id belongs to a pointer that is not a code pointer.
func (id TypeID) IsDataPointer() bool {
	return id.IsPointer() && id&MaskCode == 0
}

func (id TypeID) String() string {
	switch {
	case !id.IsPointer():
		return fmt.Sprintf("none(%#x)", uint64(id))
	case id.IsCodePointer():
		return fmt.Sprintf("code(%#x)", uint64(id&MaskFingerprint))
	}
	return fmt.Sprintf("data(%#x)", uint64(id&MaskFingerprint))
}
