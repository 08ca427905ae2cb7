// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pauth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parts-pauth/parts/config"
	"github.com/parts-pauth/parts/metadata"
	"github.com/parts-pauth/parts/mir"
	"github.com/parts-pauth/parts/typeid"
	"github.com/parts-pauth/parts/types"
)

func parse(t *testing.T, src string) *mir.Function {
	t.Helper()
	fn, err := mir.ParseFunction(src, nil)
	require.NoError(t, err)
	return fn
}

// tag returns the textual metadata of rec, to be appended to an instruction.
func tag(rec metadata.Record) string {
	return " !pauth " + metadata.Encode(rec).String()
}

func dataTag(t string) string {
	return tag(metadata.ForID(typeid.Of(types.MustParse(t))))
}

func isModifierSetup(in *mir.Instr) bool {
	r, ok := in.DefReg()
	return ok && r == mir.ModifierReg && (in.Op == mir.MOVZXi || in.Op == mir.MOVKXi)
}

// listing prints fn without metadata and without the MOVZ/MOVK sequences
// that load the modifier register.
func listing(fn *mir.Function) []string {
	var res []string
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			if isModifierSetup(in) {
				continue
			}
			s, _, _ := strings.Cut(in.String(), " !pauth ")
			res = append(res, s)
		}
	}
	return res
}

// modifiers evaluates the MOVZ/MOVK sequences and returns the modifier value
// of every PACDA and AUTDA in order.
func modifiers(fn *mir.Function) []typeid.TypeID {
	var res []typeid.TypeID
	var x23 uint64
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			switch {
			case in.Op == mir.MOVZXi && isModifierSetup(in):
				x23 = uint64(in.Operands[1].Imm) << in.Operands[2].Imm
			case in.Op == mir.MOVKXi && isModifierSetup(in):
				shift := in.Operands[3].Imm
				x23 = x23&^(0xffff<<shift) | uint64(in.Operands[2].Imm)<<shift
			case in.Op == mir.PACDA || in.Op == mir.AUTDA:
				res = append(res, typeid.TypeID(x23))
			}
		}
	}
	return res
}

func dpi() config.Config {
	return config.Default()
}

func TestModifierSequence(t *testing.T) {
	tests := map[string]typeid.TypeID{
		"zero":          0,
		"low chunk":     0x1234,
		"data pointer":  typeid.Of(types.MustParse("i64*")),
		"code pointer":  typeid.Of(types.MustParse("void ()*")),
		"sparse chunks": 1<<63 | 0xbeef<<16,
	}
	for name, id := range tests {
		t.Run(name, func(t *testing.T) {
			fn := mir.NewFunction("f")
			fn.AddBlock("entry").Append(signSequence(mir.X(8), id)...)
			assert.Equal(t, []typeid.TypeID{id}, modifiers(fn))
			last := fn.Blocks[0].Instrs[len(fn.Blocks[0].Instrs)-1]
			assert.Equal(t, "$x8 = PACDA $x8, $x23", last.String())
		})
	}
}

func TestInstrumentable(t *testing.T) {
	tests := map[string]struct {
		reg  mir.Reg
		want bool
	}{
		"x0":       {mir.X(0), true},
		"x28":      {mir.X(28), true},
		"modifier": {mir.ModifierReg, false},
		"fp":       {mir.FP, false},
		"lr":       {mir.LR, false},
		"w0":       {mir.W(0), false},
		"xzr":      {mir.XZR, false},
		"sp":       {mir.SP, false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, instrumentable(tc.reg))
		})
	}
}
