// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pauth // import "github.com/parts-pauth/parts/pauth"

import (
	"github.com/parts-pauth/parts/config"
	"github.com/parts-pauth/parts/ir"
	"github.com/parts-pauth/parts/metadata"
	"github.com/parts-pauth/parts/metrics"
	"github.com/parts-pauth/parts/typeid"
	"github.com/parts-pauth/parts/types"
)

// ForwardTagger attaches a type record to every load, store and call of an
// IR function.
type ForwardTagger struct {
	cfg    config.Config
	cache  *typeid.Cache
	events *metrics.Events
}

// NewForwardTagger returns a tagger. cache and events may be nil.
func NewForwardTagger(cfg config.Config, cache *typeid.Cache,
	events *metrics.Events) *ForwardTagger {
	return &ForwardTagger{cfg: cfg, cache: cache, events: events}
}

// Run tags f. It reports whether it ran, which is the case for every
// function without the no-parts attribute.
func (t *ForwardTagger) Run(f *ir.Function) bool {
	if f.IsDeclaration() || f.HasAttr(ir.AttrNoInstrument) {
		return false
	}
	f.Instructions(func(in *ir.Instruction) {
		var rec metadata.Record
		var kind string
		switch in.Op {
		case ir.OpStore:
			kind = "Store"
			rec = t.dataRecord(in.StoredValue().Type())
		case ir.OpLoad:
			kind = "Load"
			rec = t.dataRecord(in.Type())
		case ir.OpCall:
			kind = "Call"
			rec = t.callRecord(in)
		default:
			return
		}
		metadata.Attach(rec, in)
		t.events.Inc("ForwardTagger."+kind+"."+outcome(rec), f.Name())
	})
	return true
}

func outcome(rec metadata.Record) string {
	switch {
	case rec.Ignored:
		return "Ignored"
	case !rec.IsPointer():
		return "NotAPointer"
	}
	return "Tagged"
}

func (t *ForwardTagger) dataRecord(ty types.Type) metadata.Record {
	id := idOf(t.cache, ty)
	rec := metadata.ForID(id)
	switch {
	case !id.IsPointer():
	case id.IsCodePointer():
		// Handled by the forward edge protection.
		rec.Ignored = true
	case !t.cfg.DataPointers:
		rec.Ignored = true
	}
	return rec
}

func (t *ForwardTagger) callRecord(in *ir.Instruction) metadata.Record {
	if in.CalledFunction() != nil {
		// The target is known at compile time.
		return metadata.Ignored()
	}
	rec := metadata.ForID(idOf(t.cache, in.Callee().Type()))
	rec.Ignored = !t.cfg.ForwardEdge
	return rec
}
