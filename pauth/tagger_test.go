// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parts-pauth/parts/config"
	"github.com/parts-pauth/parts/ir"
	"github.com/parts-pauth/parts/metadata"
	"github.com/parts-pauth/parts/metrics"
	"github.com/parts-pauth/parts/typeid"
	"github.com/parts-pauth/parts/types"
)

type taggedFunction struct {
	fn                       *ir.Function
	storeData, storeCode     *ir.Instruction
	storeInt                 *ir.Instruction
	loadData, loadCode       *ir.Instruction
	directCall, indirectCall *ir.Instruction
	dataPointer, codePointer types.Type
}

func newTaggedFunction() taggedFunction {
	m := &ir.Module{}
	data := types.Pointer(types.I64)
	code := types.Pointer(types.Function(types.Void))
	g := m.AddFunction("g", types.Function(types.Void))
	f := m.AddFunction("f", types.Function(types.Void,
		data, types.Pointer(data), code, types.Pointer(code), types.I64, types.Pointer(types.I64)))
	b := ir.NewBuilder(f.AddBlock("entry"))
	tf := taggedFunction{fn: f, dataPointer: data, codePointer: code}
	tf.storeData = b.Store(f.Params[0], f.Params[1])
	tf.storeCode = b.Store(f.Params[2], f.Params[3])
	tf.storeInt = b.Store(f.Params[4], f.Params[5])
	tf.loadData = b.Load("d", f.Params[1])
	tf.loadCode = b.Load("c", f.Params[3])
	tf.directCall = b.Call("", g)
	tf.indirectCall = b.Call("", f.Params[2])
	b.Ret(nil)
	return tf
}

func TestForwardTagger(t *testing.T) {
	tf := newTaggedFunction()
	data := metadata.ForID(typeid.Of(tf.dataPointer))
	code := metadata.ForID(typeid.Of(tf.codePointer))
	notAPointer := metadata.ForID(typeid.None)

	tests := map[string]struct {
		cfg                 config.Config
		storeData, loadData metadata.Record
		indirectCall        metadata.Record
		callEvents          map[string]int64
	}{
		"data pointers": {
			cfg:          config.Config{DataPointers: true},
			storeData:    data,
			loadData:     data,
			indirectCall: code.WithIgnored(true),
			callEvents:   map[string]int64{"Ignored": 2},
		},
		"forward edge": {
			cfg:          config.Config{ForwardEdge: true},
			storeData:    data.WithIgnored(true),
			loadData:     data.WithIgnored(true),
			indirectCall: code,
			callEvents:   map[string]int64{"Ignored": 1, "Tagged": 1},
		},
		"everything": {
			cfg:          config.Config{DataPointers: true, ForwardEdge: true},
			storeData:    data,
			loadData:     data,
			indirectCall: code,
			callEvents:   map[string]int64{"Ignored": 1, "Tagged": 1},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			tf := newTaggedFunction()
			events := metrics.NewEvents()
			require.True(t, NewForwardTagger(tc.cfg, nil, events).Run(tf.fn))

			want := map[*ir.Instruction]metadata.Record{
				tf.storeData:    tc.storeData,
				tf.storeCode:    code.WithIgnored(true),
				tf.storeInt:     notAPointer,
				tf.loadData:     tc.loadData,
				tf.loadCode:     code.WithIgnored(true),
				tf.directCall:   metadata.Ignored(),
				tf.indirectCall: tc.indirectCall,
			}
			for in, rec := range want {
				got, ok := metadata.Retrieve(in)
				require.True(t, ok, "%v", in)
				assert.Equal(t, rec, got, "%v", in)
			}
			assert.Equal(t, int64(1), events.Count("ForwardTagger.Store.NotAPointer"))
			assert.Equal(t, int64(2), events.Count("ForwardTagger.Load.Ignored")+
				events.Count("ForwardTagger.Load.Tagged"))
			for outcome, n := range tc.callEvents {
				assert.Equal(t, n, events.Count("ForwardTagger.Call."+outcome), outcome)
			}
		})
	}
}

func TestForwardTaggerSkips(t *testing.T) {
	t.Run("no-parts", func(t *testing.T) {
		tf := newTaggedFunction()
		tf.fn.Attrs[ir.AttrNoInstrument] = ""
		assert.False(t, NewForwardTagger(dpi(), nil, nil).Run(tf.fn))
		_, ok := metadata.Retrieve(tf.storeData)
		assert.False(t, ok)
	})
	t.Run("declaration", func(t *testing.T) {
		f := ir.NewFunction("g", types.Function(types.Void))
		assert.False(t, NewForwardTagger(dpi(), nil, nil).Run(f))
	})
}

func TestForwardTaggerUsesCache(t *testing.T) {
	cache, err := typeid.NewCache(16)
	require.NoError(t, err)
	tf := newTaggedFunction()
	NewForwardTagger(dpi(), cache, nil).Run(tf.fn)

	got, ok := cache.TypeOf(typeid.Of(tf.dataPointer))
	require.True(t, ok)
	assert.Equal(t, tf.dataPointer.String(), got.String())
	hit, miss := cache.Statistics()
	assert.NotZero(t, hit)
	assert.NotZero(t, miss)
}
