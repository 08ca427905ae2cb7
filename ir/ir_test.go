// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parts-pauth/parts/types"
)

const testModule = `
name: test
types:
  node: "{i64, %node*}"
globals:
  - name: head
    type: "%node*"
    init: null
  - name: table
    type: "[2 x i64*]"
    init: ["@counter", "null"]
  - name: counter
    type: i64
    init: 7
functions:
  - name: callback
    ret: void
    params: [{name: p, type: "i8*"}]
  - name: walk
    ret: i64
    params: [{name: n, type: "%node*"}, {name: cb, type: "void (i8*)*"}]
    blocks:
      - name: entry
        instrs:
          - {op: alloca, name: slot, type: "%node*"}
          - {op: store, args: ["%n", "%slot"]}
          - {op: load, name: cur, args: ["%slot"]}
          - {op: gep, name: next.addr, args: ["%cur"], indices: [0, 1]}
          - {op: load, name: next, args: ["%next.addr"]}
          - {op: store, args: ["null", "%slot"]}
          - {op: bitcast, name: raw, type: "i8*", args: ["%next"]}
          - {op: call, callee: "%cb", args: ["%raw"]}
          - {op: call, callee: "@callback", args: ["%raw"]}
          - {op: br, target: exit}
      - name: exit
        instrs:
          - {op: ret, args: ["0"]}
`

func TestLoadModule(t *testing.T) {
	m, err := LoadModule(strings.NewReader(testModule))
	require.NoError(t, err)
	assert.Equal(t, "test", m.Name)
	require.Len(t, m.Globals, 3)
	require.Len(t, m.Functions, 2)

	table := m.Global("table")
	require.NotNil(t, table)
	agg, ok := table.Init.(*Aggregate)
	require.True(t, ok)
	require.Len(t, agg.Elems, 2)
	assert.Same(t, m.Global("counter"), agg.Elems[0])
	assert.Equal(t, "i64*", agg.Elems[1].Type().String())
	head, ok := m.Global("head").Init.(*Const)
	require.True(t, ok)
	assert.Equal(t, "%node*", head.Type().String())

	assert.True(t, m.Function("callback").IsDeclaration())

	walk := m.Function("walk")
	require.NotNil(t, walk)
	require.Len(t, walk.Blocks, 2)
	entry := walk.Entry().Instrs
	require.Len(t, entry, 10)

	assert.Equal(t, OpStore, entry[1].Op)
	assert.Equal(t, "%node*", entry[1].StoredValue().Type().String())
	assert.Equal(t, "%node*", entry[2].Type().String())
	assert.Equal(t, "%node**", entry[3].Type().String())
	assert.Equal(t, int64(8), GEPOffset(entry[3]))
	assert.Equal(t, "%node*", entry[5].StoredValue().Type().String())

	assert.Nil(t, entry[7].CalledFunction())
	assert.Same(t, m.Function("callback"), entry[8].CalledFunction())
	assert.Same(t, walk.Blocks[1], entry[9].Target)
	assert.True(t, entry[9].IsTerminator())
	assert.Contains(t, walk.String(), "define i64 @walk(%node* %n, void (i8*)* %cb)")
}

func TestLoadModuleErrors(t *testing.T) {
	tests := map[string]string{
		"unknown field": "bogus: 1\n",
		"bad type":      "globals: [{name: g, type: \"i\"}]\n",
		"undefined value": `
functions:
  - name: f
    blocks: [{name: entry, instrs: [{op: load, name: x, args: ["%nope"]}]}]
`,
		"load from int": `
functions:
  - name: f
    params: [{name: a, type: i64}]
    blocks: [{name: entry, instrs: [{op: load, name: x, args: ["%a"]}]}]
`,
		"unknown op": `
functions:
  - name: f
    blocks: [{name: entry, instrs: [{op: frobnicate}]}]
`,
		"bad gep": `
functions:
  - name: f
    params: [{name: a, type: "i64*"}]
    blocks: [{name: entry, instrs: [{op: gep, name: x, args: ["%a"], indices: [0, 1]}]}]
`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadModule(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestBuilderInsert(t *testing.T) {
	m := &Module{}
	f := m.AddFunction("f", types.Function(types.Void))
	b := NewBuilder(f.AddBlock("entry"))
	b.Ret(nil)

	g := m.AddFunction("g", types.Function(types.Void))
	NewBuilderAt(f.Entry(), 0).Call("", g)
	require.Len(t, f.Entry().Instrs, 2)
	assert.Equal(t, OpCall, f.Entry().Instrs[0].Op)
	assert.Same(t, f.Entry(), f.Entry().Instrs[0].Parent())
}
