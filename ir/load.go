// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package ir // import "github.com/parts-pauth/parts/ir"

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/parts-pauth/parts/types"
)

// moduleDoc is the YAML form of a module.
type moduleDoc struct {
	Name      string            `yaml:"name"`
	Types     map[string]string `yaml:"types"`
	Globals   []globalDoc       `yaml:"globals"`
	Functions []functionDoc     `yaml:"functions"`
}

type globalDoc struct {
	Name string    `yaml:"name"`
	Type string    `yaml:"type"`
	Init yaml.Node `yaml:"init"`
}

type functionDoc struct {
	Name   string            `yaml:"name"`
	Ret    string            `yaml:"ret"`
	Params []paramDoc        `yaml:"params"`
	Attrs  map[string]string `yaml:"attrs"`
	Blocks []blockDoc        `yaml:"blocks"`
}

type paramDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type blockDoc struct {
	Name   string     `yaml:"name"`
	Instrs []instrDoc `yaml:"instrs"`
}

type instrDoc struct {
	Op      string   `yaml:"op"`
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Callee  string   `yaml:"callee"`
	Args    []string `yaml:"args"`
	Indices []int64  `yaml:"indices"`
	Target  string   `yaml:"target"`
}

// LoadModule reads a module from its YAML description.
func LoadModule(r io.Reader) (*Module, error) {
	var doc moduleDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode module: %w", err)
	}
	l := &loader{parser: types.NewParser(), mod: &Module{Name: doc.Name}}
	if err := l.load(&doc); err != nil {
		return nil, err
	}
	return l.mod, nil
}

type loader struct {
	parser *types.Parser
	mod    *Module
}

func (l *loader) load(doc *moduleDoc) error {
	for name, body := range doc.Types {
		if _, err := l.parser.Declare(name, body); err != nil {
			return err
		}
	}
	// Declare everything first, initializers and bodies may refer to any symbol.
	for _, gd := range doc.Globals {
		t, err := l.parser.Parse(gd.Type)
		if err != nil {
			return fmt.Errorf("global @%s: %w", gd.Name, err)
		}
		l.mod.AddGlobal(gd.Name, t, nil)
	}
	for _, fd := range doc.Functions {
		sig, err := l.signature(&fd)
		if err != nil {
			return fmt.Errorf("function @%s: %w", fd.Name, err)
		}
		f := l.mod.AddFunction(fd.Name, sig)
		for i, pd := range fd.Params {
			if pd.Name != "" {
				f.SetParamName(i, pd.Name)
			}
		}
		for k, v := range fd.Attrs {
			f.Attrs[k] = v
		}
	}
	for i, gd := range doc.Globals {
		if gd.Init.Kind == 0 {
			continue
		}
		g := l.mod.Globals[i]
		init, err := l.constant(&gd.Init, g.ValueType)
		if err != nil {
			return fmt.Errorf("global @%s: %w", gd.Name, err)
		}
		g.Init = init
	}
	for i := range doc.Functions {
		if err := l.body(l.mod.Functions[i], &doc.Functions[i]); err != nil {
			return fmt.Errorf("function @%s: %w", doc.Functions[i].Name, err)
		}
	}
	return nil
}

func (l *loader) signature(fd *functionDoc) (*types.FuncType, error) {
	ret := types.Void
	if fd.Ret != "" {
		t, err := l.parser.Parse(fd.Ret)
		if err != nil {
			return nil, err
		}
		ret = t
	}
	sig := types.Function(ret)
	for _, pd := range fd.Params {
		t, err := l.parser.Parse(pd.Type)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", pd.Name, err)
		}
		sig.Params = append(sig.Params, t)
	}
	return sig, nil
}

func (l *loader) constant(n *yaml.Node, t types.Type) (Value, error) {
	switch n.Kind {
	case yaml.SequenceNode:
		agg := NewAggregate(t)
		for i, en := range n.Content {
			var et types.Type
			switch tt := t.(type) {
			case *types.ArrayType:
				et = tt.Elem
			case *types.StructType:
				if i >= len(tt.Fields) {
					return nil, fmt.Errorf("too many initializers for %s", t)
				}
				et = tt.Fields[i]
			default:
				return nil, fmt.Errorf("aggregate initializer for %s", t)
			}
			ev, err := l.constant(en, et)
			if err != nil {
				return nil, err
			}
			agg.Elems = append(agg.Elems, ev)
		}
		return agg, nil
	case yaml.ScalarNode:
		return l.scalar(n.Value, t, nil)
	}
	return nil, fmt.Errorf("unsupported initializer at line %d", n.Line)
}

// scalar resolves an operand spelling. expected is the type a constant takes.
func (l *loader) scalar(s string, expected types.Type, locals map[string]Value) (Value, error) {
	switch {
	case s == "null":
		if !types.IsPointer(expected) {
			return nil, fmt.Errorf("null used as %v", expected)
		}
		return Null(expected), nil
	case strings.HasPrefix(s, "@"):
		name := s[1:]
		if g := l.mod.Global(name); g != nil {
			return g, nil
		}
		if f := l.mod.Function(name); f != nil {
			return f, nil
		}
		return nil, fmt.Errorf("undefined symbol %s", s)
	case strings.HasPrefix(s, "%"):
		if v, ok := locals[s[1:]]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("undefined value %s", s)
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("bad operand %q", s)
	}
	if expected == nil || expected.Kind() != types.KindInt {
		expected = types.I64
	}
	return ConstInt(expected, v), nil
}

func (l *loader) body(f *Function, fd *functionDoc) error {
	locals := make(map[string]Value)
	for _, p := range f.Params {
		locals[p.name] = p
	}
	blocks := make(map[string]*Block)
	for _, bd := range fd.Blocks {
		if _, dup := blocks[bd.Name]; dup {
			return fmt.Errorf("duplicate block %s", bd.Name)
		}
		blocks[bd.Name] = f.AddBlock(bd.Name)
	}
	for i, bd := range fd.Blocks {
		b := NewBuilder(f.Blocks[i])
		for _, id := range bd.Instrs {
			in, err := l.instr(b, &id, locals, blocks)
			if err != nil {
				return fmt.Errorf("block %s: %s: %w", bd.Name, id.Op, err)
			}
			if in.name != "" {
				locals[in.name] = in
			}
		}
	}
	return nil
}

func (l *loader) instr(b *Builder, id *instrDoc, locals map[string]Value,
	blocks map[string]*Block) (*Instruction, error) {
	arg := func(i int, expected types.Type) (Value, error) {
		if i >= len(id.Args) {
			return nil, fmt.Errorf("missing operand %d", i)
		}
		return l.scalar(id.Args[i], expected, locals)
	}

	switch id.Op {
	case "alloca":
		t, err := l.parser.Parse(id.Type)
		if err != nil {
			return nil, err
		}
		return b.Alloca(id.Name, t), nil
	case "load":
		ptr, err := arg(0, nil)
		if err != nil {
			return nil, err
		}
		if !types.IsPointer(ptr.Type()) {
			return nil, fmt.Errorf("load from non-pointer %s", ptr.Type())
		}
		return b.Load(id.Name, ptr), nil
	case "store":
		ptr, err := arg(1, nil)
		if err != nil {
			return nil, err
		}
		elem := types.Elem(ptr.Type())
		if elem == nil {
			return nil, fmt.Errorf("store to non-pointer %s", ptr.Type())
		}
		v, err := arg(0, elem)
		if err != nil {
			return nil, err
		}
		return b.Store(v, ptr), nil
	case "call":
		callee, err := l.scalar(id.Callee, nil, locals)
		if err != nil {
			return nil, err
		}
		ft, ok := types.Elem(callee.Type()).(*types.FuncType)
		if !ok {
			return nil, fmt.Errorf("call through %s", callee.Type())
		}
		args := make([]Value, 0, len(id.Args))
		for i := range id.Args {
			var pt types.Type
			if i < len(ft.Params) {
				pt = ft.Params[i]
			}
			a, err := arg(i, pt)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		return b.Call(id.Name, callee, args...), nil
	case "ret":
		if len(id.Args) == 0 {
			return b.Ret(nil), nil
		}
		v, err := arg(0, b.Block().Parent().Sig.Ret)
		if err != nil {
			return nil, err
		}
		return b.Ret(v), nil
	case "br":
		target, ok := blocks[id.Target]
		if !ok {
			return nil, fmt.Errorf("undefined block %s", id.Target)
		}
		return b.Br(target), nil
	case "gep", "getelementptr":
		ptr, err := arg(0, nil)
		if err != nil {
			return nil, err
		}
		return b.GEP(id.Name, ptr, id.Indices...)
	case "bitcast":
		t, err := l.parser.Parse(id.Type)
		if err != nil {
			return nil, err
		}
		v, err := arg(0, t)
		if err != nil {
			return nil, err
		}
		return b.Bitcast(id.Name, v, t), nil
	}
	return nil, fmt.Errorf("unknown instruction")
}
