// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pauth // import "github.com/parts-pauth/parts/pauth"

import (
	"github.com/parts-pauth/parts/config"
	"github.com/parts-pauth/parts/ir"
	"github.com/parts-pauth/parts/metrics"
	"github.com/parts-pauth/parts/mir"
)

// ReturnSigner protects the return address of non-leaf functions, which
// spill it to the stack, with the stack pointer as modifier.
type ReturnSigner struct {
	cfg    config.Config
	events *metrics.Events
}

// NewReturnSigner returns a ReturnSigner. events may be nil.
func NewReturnSigner(cfg config.Config, events *metrics.Events) *ReturnSigner {
	return &ReturnSigner{cfg: cfg, events: events}
}

// Run inserts PACIB at the entry of fn and AUTIB before every return.
func (rs *ReturnSigner) Run(fn *mir.Function) bool {
	if !rs.cfg.BackwardEdge || fn.HasAttr(ir.AttrNoInstrument) ||
		len(fn.Blocks) == 0 || fn.IsLeaf() {
		return false
	}
	fn.Blocks[0].InsertAt(0, mir.NewInstr(mir.PACIB,
		mir.DefOp(mir.LR), mir.RegOp(mir.LR), mir.RegOp(mir.SP)))
	for _, b := range fn.Blocks {
		for i := 0; i < len(b.Instrs); i++ {
			if !b.Instrs[i].Op.IsReturn() {
				continue
			}
			i += b.InsertAt(i, mir.NewInstr(mir.AUTIB,
				mir.DefOp(mir.LR), mir.RegOp(mir.LR), mir.RegOp(mir.SP)))
		}
	}
	rs.events.Inc(EventReturnSigned, fn.Name)
	return true
}
