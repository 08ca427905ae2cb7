// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package lower

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parts-pauth/parts/ir"
	"github.com/parts-pauth/parts/metadata"
	"github.com/parts-pauth/parts/mir"
	"github.com/parts-pauth/parts/typeid"
	"github.com/parts-pauth/parts/types"
)

var i8p = types.Pointer(types.I8)

func body(f *mir.Function) string {
	var sb strings.Builder
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			sb.WriteString(in.String())
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func TestStoreLoadStackSlot(t *testing.T) {
	m := &ir.Module{}
	i64p := types.Pointer(types.I64)
	f := m.AddFunction("f", types.Function(types.Void, i64p))
	b := ir.NewBuilder(f.AddBlock("entry"))
	slot := b.Alloca("slot", i64p)
	st := b.Store(f.Params[0], slot)
	ld := b.Load("v", slot)
	b.Ret(nil)

	rec := metadata.ForID(typeid.Of(i64p))
	metadata.Attach(rec, st)
	metadata.Attach(rec, ld)

	tests := map[string]struct {
		drop      []string
		storeMeta bool
		loadMeta  bool
	}{
		"keep all":   {nil, true, true},
		"drop store": {[]string{ClassStore}, false, true},
		"drop both":  {[]string{ClassStore, ClassLoad}, false, false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			mf, err := Function(m, f, Options{DropMetadataOn: tc.drop})
			require.NoError(t, err)
			require.Len(t, mf.Frame, 1)
			assert.Equal(t, int64(16), mf.Frame[0].Offset)

			instrs := mf.Blocks[0].Instrs
			require.Len(t, instrs, 3)
			assert.Equal(t, "STRXui killed $x0, $x29, #2", strings.Split(instrs[0].String(), " !")[0])
			assert.Equal(t, "$x8 = LDRXui $x29, #2", strings.Split(instrs[1].String(), " !")[0])
			assert.Equal(t, mir.RET, instrs[2].Op)

			got, ok := metadata.Retrieve(instrs[0])
			assert.Equal(t, tc.storeMeta, ok)
			if ok {
				assert.Equal(t, rec, got)
			}
			_, ok = metadata.Retrieve(instrs[1])
			assert.Equal(t, tc.loadMeta, ok)
		})
	}
}

func TestCallKeepsValuesInCalleeSaved(t *testing.T) {
	m := &ir.Module{}
	g := m.AddFunction("g", types.Function(types.Void, i8p))
	gl := m.AddGlobal("gl", i8p, nil)
	f := m.AddFunction("f", types.Function(types.Void, i8p))
	b := ir.NewBuilder(f.AddBlock("entry"))
	b.Call("", g, f.Params[0])
	b.Store(f.Params[0], gl)
	b.Ret(nil)

	mf, err := Function(m, f, Options{})
	require.NoError(t, err)
	assert.Equal(t, `$x19 = COPY killed $x0
$x0 = COPY $x19
BL @g
$x16 = MOVaddr @gl
STRXui killed $x19, killed $x16, #0
RET
`, body(mf))
	assert.Equal(t, i8p, mf.Globals["gl"])
	_, ok := mf.Globals["g"]
	assert.False(t, ok)
	assert.False(t, mf.IsLeaf())
}

func TestLiveStoredPointerIsCopied(t *testing.T) {
	m := &ir.Module{}
	f := m.AddFunction("f", types.Function(types.Void, i8p, types.Pointer(i8p)))
	b := ir.NewBuilder(f.AddBlock("entry"))
	b.Store(f.Params[0], f.Params[1])
	b.Store(f.Params[0], f.Params[1])
	b.Ret(nil)

	mf, err := Function(m, f, Options{})
	require.NoError(t, err)
	assert.Equal(t, `$x17 = COPY $x0
STRXui killed $x17, $x1, #0
STRXui killed $x0, killed $x1, #0
RET
`, body(mf))
}

func TestStoredPointerFormingAddressIsCopied(t *testing.T) {
	tests := map[string]struct {
		build func(b *ir.Builder, p ir.Value)
		want  string
	}{
		"bitcast of itself": {
			build: func(b *ir.Builder, p ir.Value) {
				b.Store(p, b.Bitcast("pp", p, types.Pointer(types.Pointer(i8p))))
			},
			want: "$x17 = COPY $x0\nSTRXui killed $x17, killed $x0, #0\nRET\n",
		},
		"field of itself": {
			build: func(b *ir.Builder, p ir.Value) {
				pp := b.Bitcast("pp", p, types.Pointer(types.Struct(types.I64, types.Pointer(i8p))))
				field, err := b.GEP("field", pp, 0, 1)
				require.NoError(t, err)
				b.Store(p, field)
			},
			want: "$x17 = COPY $x0\nSTRXui killed $x17, killed $x0, #1\nRET\n",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			m := &ir.Module{}
			f := m.AddFunction("f", types.Function(types.Void, types.Pointer(i8p)))
			b := ir.NewBuilder(f.AddBlock("entry"))
			tc.build(b, f.Params[0])
			b.Ret(nil)

			mf, err := Function(m, f, Options{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, body(mf))
		})
	}
}

func TestIntrinsicLowering(t *testing.T) {
	m := &ir.Module{}
	pac := m.AddFunction(ir.IntrinsicSign, types.Function(i8p, i8p, types.I64))
	f := m.AddFunction("f", types.Function(i8p, i8p))
	b := ir.NewBuilder(f.AddBlock("entry"))
	r := b.Call("r", pac, f.Params[0], ir.ConstInt(types.I64, 42))
	b.Ret(r)

	mf, err := Function(m, f, Options{})
	require.NoError(t, err)
	assert.True(t, mf.IsLeaf())
	assert.Equal(t, `$x17 = MOVZXi #42, #0
$x8 = PARTS_PACDA killed $x0, killed $x17
$x0 = COPY killed $x8
RET
`, body(mf))
}

func TestFieldAddressFolding(t *testing.T) {
	m := &ir.Module{}
	st := types.Struct(types.I64, i8p)
	f := m.AddFunction("f", types.Function(types.Void, i8p))
	b := ir.NewBuilder(f.AddBlock("entry"))
	obj := b.Alloca("obj", st)
	field, err := b.GEP("field", obj, 0, 1)
	require.NoError(t, err)
	b.Store(f.Params[0], field)
	b.Ret(nil)

	mf, err := Function(m, f, Options{})
	require.NoError(t, err)
	assert.Equal(t, "STRXui killed $x0, $x29, #3\nRET\n", body(mf))
}

func TestIndirectCall(t *testing.T) {
	m := &ir.Module{}
	fnType := types.Function(i8p)
	f := m.AddFunction("f", types.Function(i8p, types.Pointer(types.Pointer(fnType))))
	b := ir.NewBuilder(f.AddBlock("entry"))
	target := b.Load("target", f.Params[0])
	r := b.Call("r", target)
	b.Ret(r)

	mf, err := Function(m, f, Options{})
	require.NoError(t, err)
	assert.Equal(t, `$x8 = COPY killed $x0
$x9 = LDRXui killed $x8, #0
BLR killed $x9 -> i8*
$x8 = COPY killed $x0
$x0 = COPY killed $x8
RET
`, body(mf))
}

func TestUnsupported(t *testing.T) {
	m := &ir.Module{}
	f := m.AddFunction("f", types.Function(types.Void, types.Pointer(types.I16)))
	b := ir.NewBuilder(f.AddBlock("entry"))
	b.Load("v", f.Params[0])
	b.Ret(nil)

	_, err := Function(m, f, Options{})
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = Function(m, m.AddFunction("decl", types.Function(types.Void)), Options{})
	assert.Error(t, err)
}

func TestFrameLayout(t *testing.T) {
	m := &ir.Module{}
	f := m.AddFunction("f", types.Function(types.Void))
	b := ir.NewBuilder(f.AddBlock("entry"))
	b.Alloca("c", types.I8)
	b.Alloca("", i8p)
	b.Ret(nil)

	mf, err := Function(m, f, Options{})
	require.NoError(t, err)
	require.Len(t, mf.Frame, 2)
	assert.Equal(t, mir.FrameObject{Name: "c", Offset: 16, Type: types.I8}, mf.Frame[0])
	assert.Equal(t, mir.FrameObject{Name: "slot1", Offset: 24, Type: i8p}, mf.Frame[1])
}
