// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package metadata // import "github.com/parts-pauth/parts/metadata"

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/parts-pauth/parts/typeid"
)

// ErrMalformed is returned for metadata nodes that do not have the expected
// structure. Such nodes are produced by a broken producer, not by user input.
var ErrMalformed = errors.New("malformed pointer type metadata")

// Flags of the second node element.
const (
	FlagCode    = "1"
	FlagData    = "0"
	FlagIgnored = "i"
	FlagUnknown = "u"
)

// Element is one operand of a Node.
type Element interface {
	String() string
}

// Node is a metadata tuple.
type Node struct {
	Elements []Element
}

// Int is an integer constant element.
type Int uint64

func (v Int) String() string { return "i64 " + strconv.FormatUint(uint64(v), 10) }

// Str is a string element.
type Str string

func (s Str) String() string { return "!" + strconv.Quote(string(s)) }

func (n *Node) String() string {
	parts := make([]string, 0, len(n.Elements))
	for _, e := range n.Elements {
		parts = append(parts, e.String())
	}
	return "!{" + strings.Join(parts, ", ") + "}"
}

// Encode converts rec into its two element node form:
// a nested node wrapping the identifier and a one character flag.
func Encode(rec Record) *Node {
	flag := FlagData
	switch {
	case rec.Unknown:
		flag = FlagUnknown
	case rec.Ignored:
		flag = FlagIgnored
	case rec.ID.IsCodePointer():
		flag = FlagCode
	}
	return &Node{Elements: []Element{
		&Node{Elements: []Element{Int(rec.ID)}},
		Str(flag),
	}}
}

// Decode validates n and converts it back into a Record.
func Decode(n *Node) (Record, error) {
	if n == nil || len(n.Elements) != 2 {
		return Record{}, fmt.Errorf("%w: expected two elements", ErrMalformed)
	}
	inner, ok := n.Elements[0].(*Node)
	if !ok || len(inner.Elements) != 1 {
		return Record{}, fmt.Errorf("%w: expected single element id node", ErrMalformed)
	}
	v, ok := inner.Elements[0].(Int)
	if !ok {
		return Record{}, fmt.Errorf("%w: id is not an integer constant", ErrMalformed)
	}
	flag, ok := n.Elements[1].(Str)
	if !ok || len(flag) != 1 {
		return Record{}, fmt.Errorf("%w: expected one character flag", ErrMalformed)
	}

	rec := Record{ID: typeid.TypeID(v)}
	switch string(flag) {
	case FlagCode:
		if !rec.ID.IsCodePointer() {
			return Record{}, fmt.Errorf("%w: code flag on %v", ErrMalformed, rec.ID)
		}
	case FlagData:
		if rec.ID.IsCodePointer() {
			return Record{}, fmt.Errorf("%w: data flag on %v", ErrMalformed, rec.ID)
		}
	case FlagIgnored:
		rec.Ignored = true
	case FlagUnknown:
		rec.Unknown = true
	default:
		return Record{}, fmt.Errorf("%w: unexpected flag %q", ErrMalformed, string(flag))
	}
	return rec, nil
}

// ParseNode parses the textual form produced by Node.String.
func ParseNode(s string) (*Node, error) {
	p := nodeParser{src: strings.TrimSpace(s)}
	n, err := p.node()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("trailing input %q after metadata node", p.src[p.pos:])
	}
	return n, nil
}

type nodeParser struct {
	src string
	pos int
}

func (p *nodeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *nodeParser) consume(prefix string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], prefix) {
		p.pos += len(prefix)
		return true
	}
	return false
}

func (p *nodeParser) node() (*Node, error) {
	if !p.consume("!{") {
		return nil, fmt.Errorf("expected '!{' at offset %d", p.pos)
	}
	n := &Node{}
	if p.consume("}") {
		return n, nil
	}
	for {
		e, err := p.element()
		if err != nil {
			return nil, err
		}
		n.Elements = append(n.Elements, e)
		if p.consume("}") {
			return n, nil
		}
		if !p.consume(",") {
			return nil, fmt.Errorf("expected ',' or '}' at offset %d", p.pos)
		}
	}
}

func (p *nodeParser) element() (Element, error) {
	p.skipSpace()
	rest := p.src[p.pos:]
	switch {
	case strings.HasPrefix(rest, "!{"):
		return p.node()
	case strings.HasPrefix(rest, "!\""):
		p.pos++
		end := strings.IndexByte(p.src[p.pos+1:], '"')
		if end < 0 {
			return nil, errors.New("unterminated metadata string")
		}
		raw := p.src[p.pos : p.pos+end+2]
		p.pos += end + 2
		s, err := strconv.Unquote(raw)
		if err != nil {
			return nil, fmt.Errorf("bad metadata string %s: %v", raw, err)
		}
		return Str(s), nil
	case strings.HasPrefix(rest, "i64 "):
		p.pos += 4
		start := p.pos
		for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' ||
			p.src[p.pos] == 'x' || p.src[p.pos] >= 'a' && p.src[p.pos] <= 'f') {
			p.pos++
		}
		v, err := strconv.ParseUint(p.src[start:p.pos], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad metadata integer: %v", err)
		}
		return Int(v), nil
	}
	return nil, fmt.Errorf("unexpected metadata element at offset %d", p.pos)
}
