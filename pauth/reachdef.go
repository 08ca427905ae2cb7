// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pauth // import "github.com/parts-pauth/parts/pauth"

import (
	"github.com/parts-pauth/parts/mir"
)

// reachAction is the verdict of a reaching definition visitor on one
// instruction.
type reachAction uint8

const (
	// reachContinue keeps searching above the instruction.
	reachContinue reachAction = iota
	// reachFound ends the path at the instruction, which defines the value.
	reachFound
	// reachBlocked ends the path without a usable definition.
	reachBlocked
)

// reachResult is the outcome of a reaching definition query.
type reachResult struct {
	// defs are the definitions found, at most one per path.
	defs []*mir.Instr
	// entry is set when some path reaches the function entry.
	entry bool
	// blocked is set when some path was cut by the visitor.
	blocked bool
}

// complete reports whether every path ended in a definition.
func (r reachResult) complete() bool {
	return len(r.defs) > 0 && !r.entry && !r.blocked
}

// reachingDefs walks backward from the instruction at position i of b,
// excluding it, along every control flow path until visit reports a
// verdict. Each block is scanned from its end at most once, so the search
// terminates on loops.
func reachingDefs(b *mir.Block, i int, visit func(*mir.Instr) reachAction) reachResult {
	var res reachResult
	seen := make(map[*mir.Instr]bool)
	scanned := make(map[*mir.Block]bool)

	var walk func(b *mir.Block, from int)
	walk = func(b *mir.Block, from int) {
		for j := from - 1; j >= 0; j-- {
			in := b.Instrs[j]
			switch visit(in) {
			case reachFound:
				if !seen[in] {
					seen[in] = true
					res.defs = append(res.defs, in)
				}
				return
			case reachBlocked:
				res.blocked = true
				return
			}
		}
		if fn := b.Parent(); fn != nil && len(fn.Blocks) > 0 && fn.Blocks[0] == b {
			res.entry = true
		}
		for _, p := range b.Preds {
			if scanned[p] {
				continue
			}
			scanned[p] = true
			walk(p, len(p.Instrs))
		}
	}
	walk(b, i)
	return res
}
