// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package mir // import "github.com/parts-pauth/parts/mir"

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/parts-pauth/parts/metadata"
	"github.com/parts-pauth/parts/stringutil"
	"github.com/parts-pauth/parts/types"
)

// Parse reads functions in the textual form produced by Function.String.
// Top level lines of the form "type %name = {...}" declare named structs
// in tp, which may be nil.
func Parse(r io.Reader, tp *types.Parser) ([]*Function, error) {
	if tp == nil {
		tp = types.NewParser()
	}
	p := &parser{types: tp}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line++
		if err := p.parseLine(scanner.Text()); err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	for _, f := range p.funcs {
		f.ComputeCFG()
	}
	return p.funcs, nil
}

// ParseFunction parses exactly one function.
func ParseFunction(s string, tp *types.Parser) (*Function, error) {
	funcs, err := Parse(strings.NewReader(s), tp)
	if err != nil {
		return nil, err
	}
	if len(funcs) != 1 {
		return nil, fmt.Errorf("expected one function, got %d", len(funcs))
	}
	return funcs[0], nil
}

type parser struct {
	types *types.Parser
	funcs []*Function
	fn    *Function
	block *Block
	line  int
}

var errNoFunction = errors.New("statement outside of a function")

func (p *parser) parseLine(line string) error {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var fields [2]string
	stringutil.FieldsN(line, fields[:])
	switch fields[0] {
	case "type":
		return p.parseTypeDecl(fields[1])
	case "function":
		return p.parseHeader(fields[1])
	case "attr", "frame", "global":
		if p.fn == nil {
			return errNoFunction
		}
		return p.parseProperty(fields[0], fields[1])
	}

	if strings.HasSuffix(line, ":") && !strings.ContainsAny(line, " ,") {
		if p.fn == nil {
			return errNoFunction
		}
		p.block = p.fn.AddBlock(strings.TrimSuffix(line, ":"))
		return nil
	}
	if p.block == nil {
		return errors.New("instruction outside of a block")
	}
	in, err := p.parseInstr(line)
	if err != nil {
		return err
	}
	p.block.Append(in)
	return nil
}

func (p *parser) parseTypeDecl(rest string) error {
	var fields [3]string
	if stringutil.FieldsN(rest, fields[:]) != 3 || fields[1] != "=" ||
		!strings.HasPrefix(fields[0], "%") {
		return fmt.Errorf("malformed type declaration %q", rest)
	}
	_, err := p.types.Declare(fields[0][1:], fields[2])
	return err
}

func (p *parser) parseHeader(rest string) error {
	open := strings.IndexByte(rest, '(')
	if open <= 0 || !strings.HasSuffix(rest, ")") {
		return fmt.Errorf("malformed function header %q", rest)
	}
	fn := NewFunction(strings.TrimSpace(rest[:open]))
	for _, s := range stringutil.SplitTopLevel(rest[open+1:len(rest)-1], ',') {
		t, err := p.types.Parse(s)
		if err != nil {
			return err
		}
		fn.ArgTypes = append(fn.ArgTypes, t)
	}
	p.funcs = append(p.funcs, fn)
	p.fn = fn
	p.block = nil
	return nil
}

func (p *parser) parseProperty(kind, rest string) error {
	switch kind {
	case "attr":
		var kv [2]string
		stringutil.SplitN(rest, "=", kv[:])
		p.fn.Attrs[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	case "frame":
		var fields [3]string
		if stringutil.FieldsN(rest, fields[:]) != 3 || !strings.HasPrefix(fields[0], "%") {
			return fmt.Errorf("malformed frame object %q", rest)
		}
		off, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad frame offset: %v", err)
		}
		t, err := p.types.Parse(fields[2])
		if err != nil {
			return err
		}
		p.fn.Frame = append(p.fn.Frame, FrameObject{Name: fields[0][1:], Offset: off, Type: t})
	case "global":
		var fields [2]string
		if stringutil.FieldsN(rest, fields[:]) != 2 || !strings.HasPrefix(fields[0], "@") {
			return fmt.Errorf("malformed global %q", rest)
		}
		t, err := p.types.Parse(fields[1])
		if err != nil {
			return err
		}
		p.fn.Globals[fields[0][1:]] = t
	}
	return nil
}

func (p *parser) parseInstr(line string) (*Instr, error) {
	var rec *metadata.Record
	if i := strings.Index(line, " !pauth "); i >= 0 {
		node, err := metadata.ParseNode(line[i+len(" !pauth "):])
		if err != nil {
			return nil, err
		}
		r, err := metadata.Decode(node)
		if err != nil {
			return nil, err
		}
		rec = &r
		line = strings.TrimSpace(line[:i])
	}

	in := &Instr{}
	if i := strings.Index(line, " -> "); i >= 0 {
		t, err := p.types.Parse(line[i+len(" -> "):])
		if err != nil {
			return nil, err
		}
		in.RetType = t
		line = strings.TrimSpace(line[:i])
	}

	if i := strings.Index(line, " = "); i >= 0 {
		for _, s := range stringutil.SplitTopLevel(line[:i], ',') {
			o, err := parseOperand(s)
			if err != nil {
				return nil, err
			}
			if !o.IsReg() || o.Kill {
				return nil, fmt.Errorf("invalid definition %q", s)
			}
			o.Def = true
			in.Operands = append(in.Operands, o)
		}
		line = strings.TrimSpace(line[i+len(" = "):])
	}

	var fields [2]string
	stringutil.FieldsN(line, fields[:])
	op, ok := LookupOpcode(fields[0])
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", fields[0])
	}
	in.Op = op
	for _, s := range stringutil.SplitTopLevel(fields[1], ',') {
		o, err := parseOperand(s)
		if err != nil {
			return nil, err
		}
		in.Operands = append(in.Operands, o)
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	if rec != nil {
		metadata.Attach(*rec, in)
	}
	return in, nil
}

// validate rejects operands the opcode cannot encode.
func validate(in *Instr) error {
	if in.Op == ADDXri {
		ops := in.Operands
		if len(ops) != 4 || !ops[2].IsImm() || !ops[3].IsImm() {
			return fmt.Errorf("%v: expected dst, src, #imm, #shift", in.Op)
		}
		if !ValidAddShift(ops[3].Imm) {
			return fmt.Errorf("%v: invalid shift #%d", in.Op, ops[3].Imm)
		}
	}
	return nil
}

func parseOperand(s string) (Operand, error) {
	kill := false
	if rest, ok := strings.CutPrefix(s, "killed "); ok {
		kill = true
		s = strings.TrimSpace(rest)
	}
	if s == "" {
		return Operand{}, errors.New("empty operand")
	}
	switch s[0] {
	case '$':
		r, ok := ParseReg(s[1:])
		if !ok {
			return Operand{}, fmt.Errorf("unknown register %q", s)
		}
		return Operand{Kind: KindReg, Reg: r, Kill: kill}, nil
	case '#':
		v, err := strconv.ParseInt(s[1:], 0, 64)
		if err != nil {
			return Operand{}, fmt.Errorf("bad immediate %q: %v", s, err)
		}
		return ImmOp(v), nil
	case '@':
		return SymOp(s[1:]), nil
	case '%':
		return BlockOp(s[1:]), nil
	}
	return Operand{}, fmt.Errorf("unexpected operand %q", s)
}
