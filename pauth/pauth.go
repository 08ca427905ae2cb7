// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// Package pauth implements the pointer authentication passes.
//
// Pointer typed loads, stores and calls are tagged with a type identifier on
// the typed IR. After lowering, every store of a data pointer is preceded by
// a PACDA and every load of a data pointer is followed by an AUTDA, both
// using the type identifier materialized in the modifier register X23.
// Where the tag did not survive lowering, it is recovered by searching
// backward for the origin of the register.
//
// Decisions that leave an instruction alone are counted as events. Internal
// inconsistencies are returned as errors wrapping ErrDefect and abort the
// compilation unit.
package pauth // import "github.com/parts-pauth/parts/pauth"

import (
	"errors"
	"fmt"

	ah "github.com/parts-pauth/parts/armhelpers"
	"github.com/parts-pauth/parts/mir"
	"github.com/parts-pauth/parts/typeid"
	"github.com/parts-pauth/parts/types"
)

// ErrDefect is wrapped by errors that report a violated internal invariant.
var ErrDefect = errors.New("pointer authentication defect")

func defectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDefect, fmt.Sprintf(format, args...))
}

// Names of the runtime statistics counters PARTS_EVENT refers to.
const (
	CounterDataStore   = "__parts_count_data_str"
	CounterNonLeafCall = "__parts_count_nonleaf_call"
	CounterLeafCall    = "__parts_count_leaf_call"
)

// Diagnostic events. Events ending in an underscore get the opcode appended.
const (
	EventInferred              = "StoreLoad.Inferred"
	EventIgnored               = "StoreLoad.Ignored_"
	EventUnknown               = "StoreLoad.Unknown_"
	EventNotAPointer           = "StoreLoad.NotAPointer_"
	EventIgnoringCodePointer   = "StoreLoad.IgnoringCodePointer_"
	EventInstrumentedDataStore = "StoreLoad.InstrumentedDataStore"
	EventInstrumentedDataLoad  = "StoreLoad.InstrumentedDataLoad"
	EventReusedSignature       = "StoreLoad.ReusedLiveSignature"
	EventReturnSigned          = "ReturnSigner.Signed"
	EventIntrinsicLowered      = "PartsIntrinsics.Lowered_"
	EventLeafCounter           = "PartsIntrinsics.LeafCounter"
	EventNonLeafCounter        = "PartsIntrinsics.NonLeafCounter"
	EventDataPointersFixed     = "MarkGlobals.DataPointersFixed"
	EventCodePointersFixed     = "MarkGlobals.CodePointersFixed"
)

// instrumentable reports whether a value held in r can be signed in place.
func instrumentable(r mir.Reg) bool {
	return r.IsX() && r != mir.ModifierReg && r != mir.FP && r != mir.LR
}

// modifierSequence materializes id into the modifier register.
func modifierSequence(id typeid.TypeID) []*mir.Instr {
	chunks := ah.MovWideChunks(uint64(id))
	seq := make([]*mir.Instr, 0, len(chunks))
	for i, c := range chunks {
		if i == 0 {
			seq = append(seq, mir.NewInstr(mir.MOVZXi, mir.DefOp(mir.ModifierReg),
				mir.ImmOp(int64(c.Imm)), mir.ImmOp(int64(c.Shift))))
			continue
		}
		seq = append(seq, mir.NewInstr(mir.MOVKXi, mir.DefOp(mir.ModifierReg),
			mir.RegOp(mir.ModifierReg), mir.ImmOp(int64(c.Imm)), mir.ImmOp(int64(c.Shift))))
	}
	return seq
}

// signSequence signs reg in place with the modifier set to id.
func signSequence(reg mir.Reg, id typeid.TypeID) []*mir.Instr {
	return append(modifierSequence(id),
		mir.NewInstr(mir.PACDA, mir.DefOp(reg), mir.RegOp(reg), mir.RegOp(mir.ModifierReg)))
}

// authSequence authenticates reg in place with the modifier set to id.
func authSequence(reg mir.Reg, id typeid.TypeID) []*mir.Instr {
	return append(modifierSequence(id),
		mir.NewInstr(mir.AUTDA, mir.DefOp(reg), mir.RegOp(reg), mir.RegOp(mir.ModifierReg)))
}

// idOf classifies t, through the cache when there is one.
func idOf(cache *typeid.Cache, t types.Type) typeid.TypeID {
	if cache == nil {
		return typeid.Of(t)
	}
	return cache.Of(t)
}
