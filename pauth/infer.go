// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pauth // import "github.com/parts-pauth/parts/pauth"

import (
	log "github.com/sirupsen/logrus"

	"github.com/parts-pauth/parts/metadata"
	"github.com/parts-pauth/parts/metrics"
	"github.com/parts-pauth/parts/mir"
	"github.com/parts-pauth/parts/successfailurecounter"
	"github.com/parts-pauth/parts/typeid"
	"github.com/parts-pauth/parts/types"
)

// maxInferenceDepth bounds the number of moves and loads followed when
// searching for the origin of a value.
const maxInferenceDepth = 8

// BackwardInferer recovers the type record of machine loads and stores that
// lost their metadata during lowering. It never modifies the function.
type BackwardInferer struct {
	cache *typeid.Cache
}

// NewBackwardInferer returns an inferer. cache may be nil; without it only
// the identifiers of statically known types are available.
func NewBackwardInferer(cache *typeid.Cache) *BackwardInferer {
	return &BackwardInferer{cache: cache}
}

// origin describes the value held by a register at some point.
type origin struct {
	known bool
	id    typeid.TypeID
	// typ is nil when only the identifier is known.
	typ types.Type
}

func (bi *BackwardInferer) typed(t types.Type) origin {
	return origin{known: true, id: idOf(bi.cache, t), typ: t}
}

func (bi *BackwardInferer) identified(id typeid.TypeID) origin {
	o := origin{known: true, id: id}
	if bi.cache != nil && id != typeid.None {
		o.typ, _ = bi.cache.TypeOf(id)
	}
	return o
}

// merge combines the origins of all paths. Disagreement is unknown.
func merge(origins []origin) origin {
	if len(origins) == 0 {
		return origin{}
	}
	res := origins[0]
	for _, o := range origins {
		if !o.known || o.id != res.id {
			return origin{}
		}
		if res.typ == nil {
			res.typ = o.typ
		}
	}
	return res
}

// Infer returns the record of the load or store in, which must be part of
// fn. The outcome is counted as inference success or failure.
func (bi *BackwardInferer) Infer(fn *mir.Function, in *mir.Instr) metadata.Record {
	sfc := successfailurecounter.New(metrics.IDInferenceSuccess, metrics.IDInferenceFailure)
	rec := bi.infer(fn, in, 0)
	sfc.Report(rec.IsKnown())
	return rec
}

func (bi *BackwardInferer) infer(fn *mir.Function, in *mir.Instr, depth int) metadata.Record {
	value, ok := in.ValueReg()
	switch {
	case !ok || in.Parent() == nil:
		log.Debugf("%s: no value register in %v", fn.Name, in)
		return metadata.Unknown()
	case !instrumentable(value.Reg):
		return metadata.Ignored()
	case in.Op.IsPaired():
		log.Debugf("%s: cannot infer the type of paired transfer %v", fn.Name, in)
		return metadata.Unknown()
	}

	var o origin
	if in.Op.IsStore() {
		o = bi.originBefore(fn, in, value.Reg, depth)
	} else {
		o = bi.loaded(fn, in, depth)
	}
	if !o.known {
		log.Debugf("%s: no origin found for %v", fn.Name, in)
		return metadata.Unknown()
	}
	return metadata.ForID(o.id)
}

// originBefore returns what reg holds just before in executes.
func (bi *BackwardInferer) originBefore(fn *mir.Function, in *mir.Instr, reg mir.Reg,
	depth int) origin {
	b := in.Parent()
	if depth > maxInferenceDepth || b == nil {
		return origin{}
	}
	if reg.IsZero() {
		return bi.identified(typeid.None)
	}
	res := reachingDefs(b, b.IndexOf(in), func(x *mir.Instr) reachAction {
		if x.Defines(reg) {
			return reachFound
		}
		return reachContinue
	})
	origins := make([]origin, 0, len(res.defs)+1)
	for _, d := range res.defs {
		origins = append(origins, bi.classify(fn, d, reg, depth+1))
	}
	if res.entry {
		origins = append(origins, bi.argument(fn, reg))
	}
	return merge(origins)
}

// argument returns the origin of reg at function entry.
func (bi *BackwardInferer) argument(fn *mir.Function, reg mir.Reg) origin {
	n, ok := reg.Num()
	if !ok || !reg.IsX() || n >= len(fn.ArgTypes) {
		return origin{}
	}
	return bi.typed(fn.ArgTypes[n])
}

// classify returns the value d leaves in reg.
func (bi *BackwardInferer) classify(fn *mir.Function, d *mir.Instr, reg mir.Reg,
	depth int) origin {
	ops := d.Operands
	switch d.Op {
	case mir.LDRXui, mir.LDURXi:
		if rec, ok := metadata.Retrieve(d); ok {
			return bi.fromRecord(rec)
		}
		return bi.loaded(fn, d, depth)
	case mir.LDRWui, mir.LDRBBui, mir.MOVZXi, mir.MOVKXi:
		return bi.identified(typeid.None)
	case mir.COPY:
		if len(ops) == 2 && ops[1].IsReg() {
			return bi.originBefore(fn, d, ops[1].Reg, depth)
		}
	case mir.ORRXrs:
		if len(ops) == 4 && ops[1].Reg.IsZero() && ops[3].Imm == 0 {
			return bi.originBefore(fn, d, ops[2].Reg, depth)
		}
	case mir.ADDXri:
		return bi.address(fn, d, depth)
	case mir.PACDA, mir.AUTDA:
		return bi.originBefore(fn, d, reg, depth)
	case mir.PARTS_PACDA, mir.PARTS_AUTDA:
		if len(ops) == 3 && ops[1].IsReg() {
			return bi.originBefore(fn, d, ops[1].Reg, depth)
		}
	case mir.MOVaddr:
		if len(ops) != 2 {
			break
		}
		if t, ok := fn.Globals[ops[1].Sym]; ok {
			return bi.typed(types.Pointer(t))
		}
	case mir.BL, mir.BLR:
		if reg == mir.X(0) && d.RetType != nil {
			return bi.typed(d.RetType)
		}
	}
	log.Debugf("%s: %v is not a known origin of %v", fn.Name, d, reg)
	return origin{}
}

// address classifies ADDXri dst, src, #imm, #shift.
func (bi *BackwardInferer) address(fn *mir.Function, d *mir.Instr, depth int) origin {
	ops := d.Operands
	if len(ops) != 4 || !ops[1].IsReg() || !ops[2].IsImm() || !ops[3].IsImm() ||
		!mir.ValidAddShift(ops[3].Imm) {
		return origin{}
	}
	src, off := ops[1].Reg, ops[2].Imm<<ops[3].Imm
	if src == mir.FP {
		fo, ok := fn.FrameObjectAt(off)
		if !ok {
			return origin{}
		}
		if off == fo.Offset {
			return bi.typed(types.Pointer(fo.Type))
		}
		elem, ok := types.ElementAt(fo.Type, off-fo.Offset)
		if !ok {
			return origin{}
		}
		return bi.typed(types.Pointer(elem))
	}

	base := bi.originBefore(fn, d, src, depth)
	if off == 0 || !base.known {
		return base
	}
	if !types.IsPointer(base.typ) {
		return origin{}
	}
	elem, ok := types.ElementAt(types.Elem(base.typ), off)
	if !ok {
		return origin{}
	}
	return bi.typed(types.Pointer(elem))
}

func (bi *BackwardInferer) fromRecord(rec metadata.Record) origin {
	if rec.Unknown || (rec.Ignored && rec.ID == typeid.None) {
		return origin{}
	}
	return bi.identified(rec.ID)
}

// loaded returns the origin of the value the load ld reads.
func (bi *BackwardInferer) loaded(fn *mir.Function, ld *mir.Instr, depth int) origin {
	b := ld.Parent()
	if depth > maxInferenceDepth || b == nil {
		return origin{}
	}
	base, off, ok := ld.BaseOffset()
	if !ok {
		return origin{}
	}

	// A store to the same slot reaching the load carries the type.
	res := reachingDefs(b, b.IndexOf(ld), func(x *mir.Instr) reachAction {
		if x.Defines(base) {
			return reachBlocked
		}
		if !x.Op.IsStore() {
			return reachContinue
		}
		if x.Op.IsPaired() {
			if x.Reads(base) {
				return reachBlocked
			}
			return reachContinue
		}
		if xb, xoff, ok := x.BaseOffset(); ok && xb == base && xoff == off {
			if x.Op.AccessSize() != ld.Op.AccessSize() {
				return reachBlocked
			}
			return reachFound
		}
		return reachContinue
	})
	if res.complete() {
		origins := make([]origin, 0, len(res.defs))
		for _, st := range res.defs {
			rec, ok := metadata.Retrieve(st)
			if !ok {
				rec = bi.infer(fn, st, depth+1)
			}
			origins = append(origins, bi.fromRecord(rec))
		}
		if o := merge(origins); o.known {
			return o
		}
	}

	// Otherwise the static type of the slot decides.
	var slot types.Type
	rel := off
	if base == mir.FP {
		fo, ok := fn.FrameObjectAt(off)
		if !ok {
			return origin{}
		}
		slot, rel = fo.Type, off-fo.Offset
	} else {
		bo := bi.originBefore(fn, ld, base, depth+1)
		if !bo.known || !types.IsPointer(bo.typ) {
			return origin{}
		}
		slot = types.Elem(bo.typ)
	}
	elem, ok := types.ElementAt(slot, rel)
	if !ok {
		return origin{}
	}
	return bi.typed(elem)
}
