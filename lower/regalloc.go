// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package lower // import "github.com/parts-pauth/parts/lower"

import (
	"fmt"
	"slices"

	"github.com/parts-pauth/parts/ir"
	"github.com/parts-pauth/parts/mir"
	"github.com/parts-pauth/parts/types"
)

// Registers handed out to IR values. X16-X18 are scratch and platform
// registers, X23 holds the modifier and X29/X30 are FP and LR.
var (
	tempPool = []mir.Reg{
		mir.X(8), mir.X(9), mir.X(10), mir.X(11),
		mir.X(12), mir.X(13), mir.X(14), mir.X(15),
	}
	calleeSavedPool = []mir.Reg{
		mir.X(19), mir.X(20), mir.X(21), mir.X(22),
		mir.X(24), mir.X(25), mir.X(26), mir.X(27), mir.X(28),
	}
)

// Scratch registers used while materializing addresses and operands.
var (
	scratchAddr  = mir.X(16)
	scratchValue = mir.X(17)
)

// interval is the linear live range of a register held IR value.
type interval struct {
	value ir.Value
	start int
	end   int
	// open is set when the value may be live beyond end, e.g. around a loop.
	open bool
	reg  mir.Reg
}

// liveness numbers IR instructions in layout order and records where each
// register held value is defined and used.
type liveness struct {
	pos       map[*ir.Instruction]int
	intervals map[ir.Value]*interval
	calls     []int
	last      int
}

func (l *lowering) computeLiveness() {
	lv := &liveness{
		pos:       make(map[*ir.Instruction]int),
		intervals: make(map[ir.Value]*interval),
	}
	l.live = lv

	for _, p := range l.fn.Params {
		lv.intervals[p] = &interval{value: p, start: 0, end: 0}
	}

	blockIdx := make(map[*ir.Block]int, len(l.fn.Blocks))
	for i, b := range l.fn.Blocks {
		blockIdx[b] = i
	}
	defBlock := make(map[ir.Value]int)
	hasLoop := false

	pos := 0
	for bi, b := range l.fn.Blocks {
		for _, in := range b.Instrs {
			pos++
			lv.pos[in] = pos
			if in.Op == ir.OpBr && blockIdx[in.Target] <= bi {
				hasLoop = true
			}
			if in.Op == ir.OpCall && !ir.IsIntrinsic(in.CalledFunction()) {
				lv.calls = append(lv.calls, pos)
			}
			if isRegisterValue(in) {
				lv.intervals[in] = &interval{value: in, start: pos, end: pos}
				defBlock[in] = bi
			}
		}
	}
	lv.last = pos

	pos = 0
	for bi, b := range l.fn.Blocks {
		for _, in := range b.Instrs {
			pos++
			switch in.Op {
			case ir.OpAlloca, ir.OpGEP, ir.OpBitcast:
				// Folded into the instructions using them.
				continue
			}
			operands := in.Operands
			if in.Op == ir.OpCall && in.CalledFunction() != nil {
				operands = in.Args()
			}
			for _, op := range operands {
				root := l.locate(op).root
				iv, ok := lv.intervals[root]
				if !ok {
					continue
				}
				iv.end = max(iv.end, pos)
				if hasLoop && defBlock[root] != bi {
					iv.open = true
				}
			}
		}
	}
	for _, iv := range lv.intervals {
		if iv.open {
			iv.end = lv.last
		}
	}
}

// isRegisterValue reports whether the result of in lives in a register.
func isRegisterValue(in *ir.Instruction) bool {
	switch in.Op {
	case ir.OpLoad:
		return true
	case ir.OpCall:
		return in.Type().Kind() != types.KindVoid
	}
	return false
}

// spansCall reports whether a call clobbers registers while iv is live.
func (lv *liveness) spansCall(iv *interval) bool {
	for _, c := range lv.calls {
		if c > iv.start && c < iv.end {
			return true
		}
		if iv.open && c > iv.start {
			return true
		}
	}
	return false
}

// isLastUse reports whether the use of v at pos ends its live range.
func (lv *liveness) isLastUse(v ir.Value, pos int) bool {
	iv, ok := lv.intervals[v]
	return ok && !iv.open && iv.end == pos
}

// allocate assigns registers with a linear scan over the live ranges.
// Parameters of functions without calls stay in their argument registers.
func (l *lowering) allocate() error {
	lv := l.live
	ivs := make([]*interval, 0, len(lv.intervals))
	for _, iv := range lv.intervals {
		ivs = append(ivs, iv)
	}
	slices.SortFunc(ivs, func(a, b *interval) int {
		if a.start != b.start {
			return a.start - b.start
		}
		return paramIndex(a.value) - paramIndex(b.value)
	})

	free := map[mir.Reg]bool{}
	for _, r := range tempPool {
		free[r] = true
	}
	for _, r := range calleeSavedPool {
		free[r] = true
	}

	var active []*interval
	for _, iv := range ivs {
		active = slices.DeleteFunc(active, func(a *interval) bool {
			if a.end < iv.start {
				if _, pinned := a.value.(*ir.Param); !pinned || !l.leaf {
					free[a.reg] = true
				}
				return true
			}
			return false
		})

		if p, ok := iv.value.(*ir.Param); ok && l.leaf {
			iv.reg = mir.X(p.Index)
			active = append(active, iv)
			continue
		}

		pools := [][]mir.Reg{tempPool, calleeSavedPool}
		if lv.spansCall(iv) {
			pools = pools[1:]
		}
		iv.reg = mir.NoReg
		for _, pool := range pools {
			for _, r := range pool {
				if free[r] {
					iv.reg = r
					free[r] = false
					break
				}
			}
			if iv.reg != mir.NoReg {
				break
			}
		}
		if iv.reg == mir.NoReg {
			return fmt.Errorf("%w: too many values live at once in %s",
				ErrUnsupported, l.fn.Name())
		}
		active = append(active, iv)
	}
	return nil
}

func paramIndex(v ir.Value) int {
	if p, ok := v.(*ir.Param); ok {
		return p.Index
	}
	return 1 << 20
}
