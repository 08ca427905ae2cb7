// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package types // import "github.com/parts-pauth/parts/types"

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser reads the canonical type spelling back into a Type. Named structs
// are looked up in (and added to) the parser's table, so a module can declare
// recursive types before using them.
type Parser struct {
	named map[string]*StructType
}

// NewParser returns a parser with an empty table of named types.
func NewParser() *Parser {
	return &Parser{named: make(map[string]*StructType)}
}

// Declare registers a named struct with the given body spelling.
func (p *Parser) Declare(name, body string) (*StructType, error) {
	st := p.lookup(name)
	t, err := p.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("type %%%s: %w", name, err)
	}
	body2, ok := t.(*StructType)
	if !ok || body2.Name != "" {
		return nil, fmt.Errorf("type %%%s: body %q is not a struct literal", name, body)
	}
	st.Fields = body2.Fields
	return st, nil
}

// Parse parses a single type.
func (p *Parser) Parse(s string) (Type, error) {
	l := &lexer{src: s}
	t, err := p.parseType(l)
	if err != nil {
		return nil, err
	}
	l.skipSpace()
	if !l.eof() {
		return nil, fmt.Errorf("trailing input %q in type %q", l.src[l.pos:], s)
	}
	return t, nil
}

// Parse parses s without any named types in scope.
func Parse(s string) (Type, error) {
	return NewParser().Parse(s)
}

// MustParse is like Parse but panics on malformed input. It is meant for
// tests and static tables.
func MustParse(s string) Type {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// MustParseWith is like MustParse but resolves named types through p.
func MustParseWith(p *Parser, s string) Type {
	t, err := p.Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (p *Parser) lookup(name string) *StructType {
	st, ok := p.named[name]
	if !ok {
		st = Named(name)
		p.named[name] = st
	}
	return st
}

func (p *Parser) parseType(l *lexer) (Type, error) {
	t, err := p.parseBase(l)
	if err != nil {
		return nil, err
	}
	for {
		l.skipSpace()
		switch {
		case l.accept('*'):
			t = Pointer(t)
		case l.peek() == '(':
			ft, err := p.parseParams(l, t)
			if err != nil {
				return nil, err
			}
			t = ft
		default:
			return t, nil
		}
	}
}

func (p *Parser) parseBase(l *lexer) (Type, error) {
	l.skipSpace()
	switch c := l.peek(); {
	case c == '{':
		l.pos++
		var fields []Type
		l.skipSpace()
		if l.accept('}') {
			return Struct(), nil
		}
		for {
			f, err := p.parseType(l)
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
			l.skipSpace()
			if l.accept('}') {
				return Struct(fields...), nil
			}
			if !l.accept(',') {
				return nil, l.errorf("expected ',' or '}'")
			}
		}
	case c == '[':
		l.pos++
		l.skipSpace()
		n, err := strconv.ParseUint(l.word(), 10, 64)
		if err != nil {
			return nil, l.errorf("bad array length: %v", err)
		}
		l.skipSpace()
		if l.word() != "x" {
			return nil, l.errorf("expected 'x' in array type")
		}
		elem, err := p.parseType(l)
		if err != nil {
			return nil, err
		}
		l.skipSpace()
		if !l.accept(']') {
			return nil, l.errorf("expected ']'")
		}
		return Array(n, elem), nil
	case c == '%':
		l.pos++
		name := l.word()
		if name == "" {
			return nil, l.errorf("empty type name")
		}
		return p.lookup(name), nil
	}

	w := l.word()
	switch {
	case w == "void":
		return Void, nil
	case w == "ptr":
		return Pointer(I8), nil
	case strings.HasPrefix(w, "i"):
		bits, err := strconv.ParseUint(w[1:], 10, 16)
		if err != nil || bits == 0 {
			return nil, l.errorf("bad integer type %q", w)
		}
		return Int(uint(bits)), nil
	case w == "":
		return nil, l.errorf("expected type")
	}
	return nil, l.errorf("unknown type %q", w)
}

func (p *Parser) parseParams(l *lexer, ret Type) (*FuncType, error) {
	l.pos++ // (
	ft := &FuncType{Ret: ret}
	l.skipSpace()
	if l.accept(')') {
		return ft, nil
	}
	for {
		l.skipSpace()
		if strings.HasPrefix(l.src[l.pos:], "...") {
			l.pos += 3
			ft.Variadic = true
			l.skipSpace()
			if !l.accept(')') {
				return nil, l.errorf("expected ')' after '...'")
			}
			return ft, nil
		}
		t, err := p.parseType(l)
		if err != nil {
			return nil, err
		}
		ft.Params = append(ft.Params, t)
		l.skipSpace()
		if l.accept(')') {
			return ft, nil
		}
		if !l.accept(',') {
			return nil, l.errorf("expected ',' or ')'")
		}
	}
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) eof() bool { return l.pos >= len(l.src) }

func (l *lexer) peek() byte {
	if l.eof() {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) accept(c byte) bool {
	if l.peek() == c {
		l.pos++
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for !l.eof() && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t') {
		l.pos++
	}
}

func (l *lexer) word() string {
	start := l.pos
	for !l.eof() {
		c := l.src[l.pos]
		if c == '_' || c == '.' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' ||
			c >= 'A' && c <= 'Z' {
			l.pos++
			continue
		}
		break
	}
	return l.src[start:l.pos]
}

func (l *lexer) errorf(format string, args ...any) error {
	return fmt.Errorf("at offset %d in %q: %s", l.pos, l.src, fmt.Sprintf(format, args...))
}
