// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package mir // import "github.com/parts-pauth/parts/mir"

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/parts-pauth/parts/metadata"
)

func (o Operand) String() string {
	switch o.Kind {
	case KindReg:
		if o.Kill {
			return "killed $" + o.Reg.String()
		}
		return "$" + o.Reg.String()
	case KindImm:
		return fmt.Sprintf("#%d", o.Imm)
	case KindSym:
		return "@" + o.Sym
	case KindBlock:
		return "%" + o.Sym
	}
	return "<invalid>"
}

func (in *Instr) String() string {
	var sb strings.Builder
	var defs, uses []string
	for _, o := range in.Operands {
		if o.IsReg() && o.Def {
			defs = append(defs, o.String())
		} else {
			uses = append(uses, o.String())
		}
	}
	if len(defs) > 0 {
		sb.WriteString(strings.Join(defs, ", "))
		sb.WriteString(" = ")
	}
	sb.WriteString(in.Op.String())
	if len(uses) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(uses, ", "))
	}
	if in.RetType != nil {
		sb.WriteString(" -> ")
		sb.WriteString(in.RetType.String())
	}
	if rec, ok := metadata.Retrieve(in); ok {
		sb.WriteString(" !pauth ")
		sb.WriteString(metadata.Encode(rec).String())
	}
	return sb.String()
}

func (f *Function) String() string {
	var sb strings.Builder
	args := make([]string, 0, len(f.ArgTypes))
	for _, t := range f.ArgTypes {
		args = append(args, t.String())
	}
	fmt.Fprintf(&sb, "function %s(%s)\n", f.Name, strings.Join(args, ", "))
	for _, key := range slices.Sorted(maps.Keys(f.Attrs)) {
		if v := f.Attrs[key]; v != "" {
			fmt.Fprintf(&sb, "attr %s=%s\n", key, v)
		} else {
			fmt.Fprintf(&sb, "attr %s\n", key)
		}
	}
	for _, fo := range f.Frame {
		fmt.Fprintf(&sb, "frame %%%s %d %s\n", fo.Name, fo.Offset, fo.Type)
	}
	for _, name := range slices.Sorted(maps.Keys(f.Globals)) {
		fmt.Fprintf(&sb, "global @%s %s\n", name, f.Globals[name])
	}
	for _, b := range f.Blocks {
		fmt.Fprintf(&sb, "%s:\n", b.Name)
		for _, in := range b.Instrs {
			sb.WriteString("  ")
			sb.WriteString(in.String())
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
