// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pauth // import "github.com/parts-pauth/parts/pauth"

import (
	"fmt"

	"github.com/parts-pauth/parts/config"
	"github.com/parts-pauth/parts/ir"
	"github.com/parts-pauth/parts/metrics"
	"github.com/parts-pauth/parts/mir"
)

// IntrinsicLowerer expands the PARTS_PACDA and PARTS_AUTDA pseudos and
// places the runtime statistics events.
type IntrinsicLowerer struct {
	cfg    config.Config
	events *metrics.Events
}

// NewIntrinsicLowerer returns an IntrinsicLowerer. events may be nil.
func NewIntrinsicLowerer(cfg config.Config, events *metrics.Events) *IntrinsicLowerer {
	return &IntrinsicLowerer{cfg: cfg, events: events}
}

// Run lowers the pseudos of fn and reports whether fn changed. It also runs
// on functions marked no-parts, which is where synthesized signing code
// lives.
func (il *IntrinsicLowerer) Run(fn *mir.Function) (bool, error) {
	changed := false
	for _, b := range fn.Blocks {
		for i := 0; i < len(b.Instrs); i++ {
			in := b.Instrs[i]
			if in.Op != mir.PARTS_PACDA && in.Op != mir.PARTS_AUTDA {
				continue
			}
			seq, err := il.expand(in)
			if err != nil {
				return changed, fmt.Errorf("function %s: %v: %w", fn.Name, in, err)
			}
			b.RemoveAt(i)
			i += b.InsertAt(i, seq...) - 1
			changed = true
			il.events.Inc(EventIntrinsicLowered+in.Op.String(), fn.Name)
		}
	}
	if il.cfg.RuntimeStats && !fn.HasAttr(ir.AttrNoInstrument) && il.countCalls(fn) {
		changed = true
	}
	return changed, nil
}

func (il *IntrinsicLowerer) expand(in *mir.Instr) ([]*mir.Instr, error) {
	ops := in.Operands
	if len(ops) != 3 || !ops[0].IsReg() || !ops[1].IsReg() || !ops[2].IsReg() {
		return nil, defectf("malformed pseudo")
	}
	op := mir.PACDA
	if in.Op == mir.PARTS_AUTDA {
		if !il.cfg.ExperimentalAutIntrinsic {
			return nil, defectf("authentication intrinsic is not supported")
		}
		op = mir.AUTDA
	}

	dst, src, mod := ops[0].Reg, ops[1], ops[2]
	var seq []*mir.Instr
	modifier := mod.Reg
	// The modifier must survive the move into dst.
	if modifier != mir.ModifierReg && (mod.Kill || mir.Overlaps(modifier, dst)) {
		seq = append(seq, mir.NewInstr(mir.ADDXri, mir.DefOp(mir.ModifierReg),
			mir.Operand{Kind: mir.KindReg, Reg: modifier, Kill: mod.Kill},
			mir.ImmOp(0), mir.ImmOp(0)))
		modifier = mir.ModifierReg
	}
	seq = append(seq, mir.NewInstr(mir.ADDXri, mir.DefOp(dst),
		mir.Operand{Kind: mir.KindReg, Reg: src.Reg, Kill: src.Kill},
		mir.ImmOp(0), mir.ImmOp(0)))
	seq = append(seq, mir.NewInstr(op, mir.DefOp(dst), mir.RegOp(dst), mir.RegOp(modifier)))
	if op == mir.PACDA && il.cfg.RuntimeStats {
		seq = append(seq, mir.NewInstr(mir.PARTS_EVENT, mir.SymOp(CounterDataStore)))
	}
	return seq, nil
}

// countCalls places the call counters. Only functions whose return address
// is signed contain PACIB; all others are counted as leaf calls.
func (il *IntrinsicLowerer) countCalls(fn *mir.Function) bool {
	for _, b := range fn.Blocks {
		for i, in := range b.Instrs {
			if in.Op == mir.PACIB {
				b.InsertAt(i, mir.NewInstr(mir.PARTS_EVENT, mir.SymOp(CounterNonLeafCall)))
				il.events.Inc(EventNonLeafCounter, fn.Name)
				return true
			}
		}
	}
	changed := false
	for _, b := range fn.Blocks {
		for i := 0; i < len(b.Instrs); i++ {
			if b.Instrs[i].Op.IsReturn() {
				i += b.InsertAt(i, mir.NewInstr(mir.PARTS_EVENT, mir.SymOp(CounterLeafCall)))
				il.events.Inc(EventLeafCounter, fn.Name)
				changed = true
			}
		}
	}
	return changed
}
