// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pauth // import "github.com/parts-pauth/parts/pauth"

import (
	"fmt"
	"slices"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/parts-pauth/parts/config"
	"github.com/parts-pauth/parts/ir"
	"github.com/parts-pauth/parts/metrics"
	"github.com/parts-pauth/parts/typeid"
	"github.com/parts-pauth/parts/types"
)

// FixupFunction is the name of the synthesized function that signs the
// pointers in global initializers at startup.
const FixupFunction = "__pauth_pac_globals"

// GlobalFixup signs pointers that global initializers place in memory
// before any instrumented code can load them.
type GlobalFixup struct {
	cfg    config.Config
	cache  *typeid.Cache
	events *metrics.Events
}

// NewGlobalFixup returns a GlobalFixup. cache and events may be nil.
func NewGlobalFixup(cfg config.Config, cache *typeid.Cache, events *metrics.Events) *GlobalFixup {
	return &GlobalFixup{cfg: cfg, cache: cache, events: events}
}

// pointerSlot is a pointer inside a global initializer.
type pointerSlot struct {
	global *ir.Global
	// path are the indices selecting the pointer inside the global.
	path []int64
	typ  types.Type
	id   typeid.TypeID
}

// Run adds the fixup function to m and calls it from main. It reports
// whether m changed.
func (gf *GlobalFixup) Run(m *ir.Module) (bool, error) {
	if !gf.cfg.DataPointers && !gf.cfg.ForwardEdge {
		return false, nil
	}
	if m.Function(FixupFunction) != nil {
		return false, nil
	}

	var slots []pointerSlot
	for _, g := range m.Globals {
		if g.Init == nil {
			continue
		}
		gf.collect(g, g.ValueType, g.Init, nil, &slots)
	}
	if len(slots) == 0 {
		return false, nil
	}

	fixup, err := gf.synthesize(m, slots)
	if err != nil {
		return false, err
	}
	if main := m.Function("main"); main != nil && !main.IsDeclaration() {
		ir.NewBuilderAt(main.Entry(), 0).Call("", fixup)
	} else {
		log.Warnf("No main function in %s, %s must be called explicitly",
			m.Name, FixupFunction)
	}
	metrics.Add(metrics.IDGlobalsFixed, metrics.MetricValue(len(slots)))
	return true, nil
}

// collect appends the pointers of init that need signing.
func (gf *GlobalFixup) collect(g *ir.Global, t types.Type, init ir.Value, path []int64,
	slots *[]pointerSlot) {
	switch tt := t.(type) {
	case *types.PointerType:
		if _, null := init.(*ir.Const); null || init == nil {
			return
		}
		id := idOf(gf.cache, t)
		event := EventDataPointersFixed
		if id.IsCodePointer() {
			if !gf.cfg.ForwardEdge {
				return
			}
			event = EventCodePointersFixed
		} else if !gf.cfg.DataPointers {
			return
		}
		*slots = append(*slots, pointerSlot{global: g, path: path, typ: t, id: id})
		gf.events.Inc(event, g.Name())
	case *types.StructType:
		agg, ok := init.(*ir.Aggregate)
		if !ok {
			return
		}
		for i, f := range tt.Fields {
			if i < len(agg.Elems) {
				gf.collect(g, f, agg.Elems[i], append(slices.Clone(path), int64(i)), slots)
			}
		}
	case *types.ArrayType:
		agg, ok := init.(*ir.Aggregate)
		if !ok {
			return
		}
		for i, e := range agg.Elems {
			gf.collect(g, tt.Elem, e, append(slices.Clone(path), int64(i)), slots)
		}
	}
}

// synthesize builds the fixup function: every slot is loaded, signed and
// stored back.
func (gf *GlobalFixup) synthesize(m *ir.Module, slots []pointerSlot) (*ir.Function, error) {
	bytePtr := types.Pointer(types.I8)
	sign := m.Function(ir.IntrinsicSign)
	if sign == nil {
		sign = m.AddFunction(ir.IntrinsicSign, types.Function(bytePtr, bytePtr, types.I64))
	}

	fixup := m.AddFunction(FixupFunction, types.Function(types.Void))
	fixup.Attrs[ir.AttrNoInstrument] = ""
	b := ir.NewBuilder(fixup.AddBlock("entry"))
	for n, s := range slots {
		suffix := strconv.Itoa(n)
		var addr ir.Value = s.global
		if len(s.path) > 0 {
			gep, err := b.GEP("addr"+suffix, s.global, append([]int64{0}, s.path...)...)
			if err != nil {
				return nil, fmt.Errorf("addressing %v in %s: %w", s.path, s.global.Name(), err)
			}
			addr = gep
		}
		v := b.Load("ptr"+suffix, addr)
		raw := b.Bitcast("raw"+suffix, v, bytePtr)
		signed := b.Call("signed"+suffix, sign, raw, ir.ConstInt(types.I64, int64(s.id)))
		b.Store(b.Bitcast("fixed"+suffix, signed, s.typ), addr)
	}
	b.Ret(nil)
	log.Debugf("Synthesized %s signing %d global pointers", FixupFunction, len(slots))
	return fixup, nil
}
