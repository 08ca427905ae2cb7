// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pauth // import "github.com/parts-pauth/parts/pauth"

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/parts-pauth/parts/config"
	"github.com/parts-pauth/parts/ir"
	"github.com/parts-pauth/parts/metadata"
	"github.com/parts-pauth/parts/metrics"
	"github.com/parts-pauth/parts/mir"
)

// InstructionRewriter signs data pointers before they are stored and
// authenticates them after they are loaded.
type InstructionRewriter struct {
	cfg     config.Config
	inferer *BackwardInferer
	events  *metrics.Events
}

// NewInstructionRewriter returns a rewriter using inferer for instructions
// without metadata. events may be nil.
func NewInstructionRewriter(cfg config.Config, inferer *BackwardInferer,
	events *metrics.Events) *InstructionRewriter {
	return &InstructionRewriter{cfg: cfg, inferer: inferer, events: events}
}

// Run rewrites fn and reports whether any instruction was inserted. Run may
// be called concurrently for different functions.
func (rw *InstructionRewriter) Run(fn *mir.Function) (bool, error) {
	if fn.HasAttr(ir.AttrNoInstrument) {
		return false, nil
	}
	var inserted int64
	defer func() {
		metrics.Add(metrics.IDInstructionsInserted, metrics.MetricValue(inserted))
	}()
	for _, b := range fn.Blocks {
		n, err := rw.block(fn, b)
		inserted += n
		if err != nil {
			return inserted > 0, fmt.Errorf("function %s, block %s: %w", fn.Name, b.Name, err)
		}
	}
	return inserted > 0, nil
}

func (rw *InstructionRewriter) block(fn *mir.Function, b *mir.Block) (int64, error) {
	var inserted int64
	var state liveState
	for i := 0; i < len(b.Instrs); i++ {
		in := b.Instrs[i]
		if !in.Op.IsLoadOrStore() {
			state.observe(in)
			continue
		}
		rec := rw.record(fn, in)
		if !rw.instrument(fn, in, rec) {
			state.observe(in)
			continue
		}

		value, _ := in.ValueReg()
		if in.Op.IsLoad() {
			state.observe(in)
			seq := authSequence(value.Reg, rec.ID)
			i += b.InsertAt(i+1, seq...)
			inserted += int64(len(seq))
			rw.events.Inc(EventInstrumentedDataLoad, fn.Name)
			continue
		}

		if aliasesAddress(in, value.Reg) {
			// Signing in place would also tag the address, store a copy.
			value = copyValue(b, i, in)
			i++
			inserted++
		}
		sign, err := state.store(value.Reg, rec.ID, value.Kill)
		if err != nil {
			return inserted, fmt.Errorf("%v: %w", in, err)
		}
		if r, ok := state.Pending(); ok && r != value.Reg && in.Kills(r) {
			state.reset()
		}
		if !sign {
			rw.events.Inc(EventReusedSignature, fn.Name)
			continue
		}
		seq := signSequence(value.Reg, rec.ID)
		i += b.InsertAt(i, seq...)
		inserted += int64(len(seq))
		rw.events.Inc(EventInstrumentedDataStore, fn.Name)
	}
	return inserted, nil
}

// aliasesAddress reports whether the store in reads reg outside of its
// value operand.
func aliasesAddress(in *mir.Instr, reg mir.Reg) bool {
	for _, o := range in.Operands[1:] {
		if o.IsReg() && mir.Overlaps(o.Reg, reg) {
			return true
		}
	}
	return false
}

// copyValue inserts a copy of the value register of the store at index i of
// b into a scratch register and makes the store read the copy. The kill of
// the original register moves to the address operands.
func copyValue(b *mir.Block, i int, in *mir.Instr) mir.Operand {
	value := in.Operands[0]
	scratch := mir.X(17)
	if mir.Overlaps(value.Reg, scratch) {
		scratch = mir.X(16)
	}
	b.InsertAt(i, mir.NewInstr(mir.COPY, mir.DefOp(scratch), mir.RegOp(value.Reg)))
	if value.Kill {
		for j := range in.Operands[1:] {
			if o := &in.Operands[j+1]; o.IsReg() && o.Reg == value.Reg {
				o.Kill = true
			}
		}
	}
	in.Operands[0] = mir.KillOp(scratch)
	return in.Operands[0]
}

// record returns the record of in, inferring and attaching it when the
// instruction carries none.
func (rw *InstructionRewriter) record(fn *mir.Function, in *mir.Instr) metadata.Record {
	if in.Op.IsPaired() {
		// Only one of the two registers could be signed.
		return metadata.Unknown()
	}
	if rec, ok := metadata.Retrieve(in); ok {
		return rec
	}
	rec := rw.inferer.Infer(fn, in)
	metadata.Attach(rec, in)
	rw.events.Inc(EventInferred, fn.Name)
	return rec
}

// instrument decides whether in gets a sign or authenticate sequence and
// counts the reason when it does not.
func (rw *InstructionRewriter) instrument(fn *mir.Function, in *mir.Instr,
	rec metadata.Record) bool {
	op := in.Op.String()
	value, ok := in.ValueReg()
	switch {
	case !ok:
		log.Warnf("%s: unexpected operands in %v", fn.Name, in)
		rw.events.Inc(EventUnknown+op, fn.Name)
	case rec.Ignored || !instrumentable(value.Reg) || in.Reads(mir.ModifierReg):
		rw.events.Inc(EventIgnored+op, fn.Name)
	case rec.Unknown:
		rw.events.Inc(EventUnknown+op, fn.Name)
	case !rec.IsPointer() || in.Op.AccessSize() != 8:
		rw.events.Inc(EventNotAPointer+op, fn.Name)
	case rec.IsCodePointer():
		rw.events.Inc(EventIgnoringCodePointer+op, fn.Name)
	default:
		return rw.cfg.DataPointers
	}
	return false
}
