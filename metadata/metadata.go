// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// Package metadata carries pointer type records on IR and machine instructions.
//
// Both representation levels expose a typed Slot through the Carrier interface,
// so callers use the same Attach and Retrieve functions regardless of which
// level an instruction belongs to.
package metadata // import "github.com/parts-pauth/parts/metadata"

import (
	"fmt"

	"github.com/parts-pauth/parts/typeid"
)

// Record is the type information attached to a load, store or call.
type Record struct {
	// ID is the type identifier of the pointer involved.
	ID typeid.TypeID
	// Ignored marks an instruction as deliberately excluded from instrumentation.
	Ignored bool
	// Unknown marks an instruction whose type could not be inferred.
	Unknown bool
}

// ForID returns a record for a known type identifier.
func ForID(id typeid.TypeID) Record {
	return Record{ID: id}
}

// Ignored returns a record that excludes an instruction from instrumentation.
func Ignored() Record {
	return Record{Ignored: true}
}

// Unknown returns a record for an instruction whose type is not known.
func Unknown() Record {
	return Record{Unknown: true}
}

// IsKnown reports whether the record holds a usable type identifier.
func (r Record) IsKnown() bool { return !r.Unknown }

// IsPointer reports whether the record describes a pointer.
func (r Record) IsPointer() bool { return r.ID.IsPointer() }

// IsCodePointer reports whether the record describes a code pointer.
func (r Record) IsCodePointer() bool { return r.ID.IsCodePointer() }

// IsDataPointer reports whether the record describes a data pointer.
func (r Record) IsDataPointer() bool { return r.ID.IsDataPointer() }

// WithIgnored returns a copy of r with the ignored flag set to ignored.
func (r Record) WithIgnored(ignored bool) Record {
	r.Ignored = ignored
	return r
}

func (r Record) String() string {
	switch {
	case r.Unknown:
		return "unknown"
	case r.Ignored:
		return fmt.Sprintf("ignored %v", r.ID)
	}
	return r.ID.String()
}

// Slot holds the record attached to one instruction.
// The zero value is an empty slot.
type Slot struct {
	rec Record
	set bool
}

// Carrier is implemented by instructions that can hold a Record.
type Carrier interface {
	MetadataSlot() *Slot
}

// Attach stores a copy of rec on c, replacing any previous record.
func Attach(rec Record, c Carrier) {
	s := c.MetadataSlot()
	s.rec = rec
	s.set = true
}

// Retrieve returns the record attached to c. It reports false if nothing
// was attached.
func Retrieve(c Carrier) (Record, bool) {
	if c == nil {
		return Record{}, false
	}
	s := c.MetadataSlot()
	if s == nil || !s.set {
		return Record{}, false
	}
	return s.rec, true
}

// Detach removes the record attached to c.
func Detach(c Carrier) {
	*c.MetadataSlot() = Slot{}
}

// Copy attaches the record of src, if any, to dst.
func Copy(dst, src Carrier) bool {
	rec, ok := Retrieve(src)
	if ok {
		Attach(rec, dst)
	}
	return ok
}
