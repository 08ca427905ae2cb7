// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package ir // import "github.com/parts-pauth/parts/ir"

import (
	"fmt"
	"strings"

	"github.com/parts-pauth/parts/metadata"
	"github.com/parts-pauth/parts/types"
)

func operandString(v Value) string {
	switch vv := v.(type) {
	case *Const:
		if types.IsPointer(vv.typ) && vv.Value == 0 {
			return vv.typ.String() + " null"
		}
		return fmt.Sprintf("%s %d", vv.typ, vv.Value)
	case *Global, *Function:
		return fmt.Sprintf("%s @%s", v.Type(), v.Name())
	case *Aggregate:
		elems := make([]string, 0, len(vv.Elems))
		for _, e := range vv.Elems {
			elems = append(elems, operandString(e))
		}
		return fmt.Sprintf("%s [%s]", vv.typ, strings.Join(elems, ", "))
	}
	return fmt.Sprintf("%s %%%s", v.Type(), v.Name())
}

func (in *Instruction) String() string {
	var sb strings.Builder
	if in.name != "" {
		fmt.Fprintf(&sb, "%%%s = ", in.name)
	}
	sb.WriteString(in.Op.String())
	switch in.Op {
	case OpAlloca:
		sb.WriteString(" " + in.Allocated.String())
	case OpBr:
		sb.WriteString(" label %" + in.Target.Name)
	case OpLoad, OpBitcast:
		sb.WriteString(" " + in.Type().String() + ",")
	}
	for i, op := range in.Operands {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(" " + operandString(op))
	}
	for _, idx := range in.Indices {
		fmt.Fprintf(&sb, ", %d", idx)
	}
	if rec, ok := metadata.Retrieve(in); ok {
		sb.WriteString(", !pauth " + metadata.Encode(rec).String())
	}
	return sb.String()
}

func (f *Function) String() string {
	var sb strings.Builder
	params := make([]string, 0, len(f.Params))
	for _, p := range f.Params {
		params = append(params, fmt.Sprintf("%s %%%s", p.typ, p.name))
	}
	kw := "define"
	if f.IsDeclaration() {
		kw = "declare"
	}
	fmt.Fprintf(&sb, "%s %s @%s(%s)", kw, f.Sig.Ret, f.name, strings.Join(params, ", "))
	if f.IsDeclaration() {
		sb.WriteString("\n")
		return sb.String()
	}
	sb.WriteString(" {\n")
	for _, b := range f.Blocks {
		fmt.Fprintf(&sb, "%s:\n", b.Name)
		for _, in := range b.Instrs {
			fmt.Fprintf(&sb, "  %s\n", in)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}
