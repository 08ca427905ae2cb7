// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parts-pauth/parts/lower"
	"github.com/parts-pauth/parts/metrics"
	"github.com/parts-pauth/parts/mir"
)

const testFunction = `
function f(i8*, i8**)
entry:
  STRXui killed $x0, killed $x1, #0
  BL @g
  RET
`

const testModule = `
name: test
functions:
  - name: f
    ret: "i8*"
    params: [{name: p, type: "i8*"}]
    blocks:
      - name: entry
        instrs:
          - {op: alloca, name: slot, type: "i8*"}
          - {op: store, args: ["%p", "%slot"]}
          - {op: load, name: v, args: ["%slot"]}
          - {op: ret, args: ["%v"]}
`

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseArgs(t *testing.T) {
	tests := map[string]struct {
		argv    []string
		env     map[string]string
		check   func(t *testing.T, args *arguments)
		wantErr bool
	}{
		"defaults": {
			argv: []string{"in.mir"},
			check: func(t *testing.T, args *arguments) {
				assert.True(t, args.DataPointers)
				assert.False(t, args.ForwardEdge)
				assert.False(t, args.BackwardEdge)
				assert.Equal(t, "in.mir", args.input)
				assert.Empty(t, args.DropMetadataOn)
			},
		},
		"all protections": {
			argv: []string{"-fecfi", "-becfi", "-runtime-stats", "-jobs", "3", "in.yaml"},
			check: func(t *testing.T, args *arguments) {
				assert.True(t, args.ForwardEdge)
				assert.True(t, args.BackwardEdge)
				assert.True(t, args.RuntimeStats)
				assert.Equal(t, 3, args.Jobs)
			},
		},
		"drop metadata": {
			argv: []string{"-drop-metadata", "store,load", "in.yaml"},
			check: func(t *testing.T, args *arguments) {
				assert.Equal(t, []string{lower.ClassStore, lower.ClassLoad}, args.DropMetadataOn)
			},
		},
		"environment": {
			argv: []string{"in.yaml"},
			env:  map[string]string{"PARTS_DPI": "false", "PARTS_BECFI": "true"},
			check: func(t *testing.T, args *arguments) {
				assert.False(t, args.DataPointers)
				assert.True(t, args.BackwardEdge)
			},
		},
		"version needs no input": {
			argv: []string{"-version"},
			check: func(t *testing.T, args *arguments) {
				assert.True(t, args.version)
			},
		},
		"pac mask needs no input": {
			argv: []string{"-pac-mask"},
			check: func(t *testing.T, args *arguments) {
				assert.True(t, args.pacMask)
			},
		},
		"missing input": {
			argv:    []string{"-dpi"},
			wantErr: true,
		},
		"two inputs": {
			argv:    []string{"a.mir", "b.mir"},
			wantErr: true,
		},
		"unknown class": {
			argv:    []string{"-drop-metadata", "branch", "in.mir"},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			args, err := parseArgs(tc.argv)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, args)
		})
	}
}

func TestParseArgsConfigFile(t *testing.T) {
	path := writeInput(t, "parts.conf", "becfi true\njobs 2\nunknown-option 1\n")
	args, err := parseArgs([]string{"-config", path, "in.mir"})
	require.NoError(t, err)
	assert.True(t, args.BackwardEdge)
	assert.Equal(t, 2, args.Jobs)
}

func TestRun(t *testing.T) {
	tests := map[string]struct {
		file    string
		content string
		stats   bool
		want    []string
	}{
		"machine function": {
			file:    "f.mir",
			content: testFunction,
			want:    []string{"function f(i8*, i8**)", "PACDA", "STRXui"},
		},
		"module": {
			file:    "m.yaml",
			content: testModule,
			want:    []string{"function f(i8*)", "PACDA", "AUTDA"},
		},
		"statistics": {
			file:    "f.mir",
			content: testFunction,
			stats:   true,
			want:    []string{"; events", "StoreLoad.InstrumentedDataStore", "; metrics"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			args, err := parseArgs([]string{writeInput(t, tc.file, tc.content)})
			require.NoError(t, err)
			args.stats = tc.stats

			var out bytes.Buffer
			require.NoError(t, run(context.Background(), args, &out))
			for _, s := range tc.want {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestRunListingParses(t *testing.T) {
	args, err := parseArgs([]string{"-becfi", writeInput(t, "f.mir", testFunction)})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out))
	fns, err := mir.Parse(strings.NewReader(out.String()), nil)
	require.NoError(t, err)
	require.Len(t, fns, 1)
	assert.Equal(t, mir.PACIB, fns[0].Blocks[0].Instrs[0].Op)
}

func TestRunErrors(t *testing.T) {
	tests := map[string]struct {
		file    string
		content string
	}{
		"unknown format": {file: "f.txt", content: testFunction},
		"bad module":     {file: "m.yaml", content: "functions: 3"},
		"bad function":   {file: "f.mir", content: "entry:\n  RET\n"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			args, err := parseArgs([]string{writeInput(t, tc.file, tc.content)})
			require.NoError(t, err)
			assert.Error(t, run(context.Background(), args, &bytes.Buffer{}))
		})
	}
}

func TestRunDemanglesNames(t *testing.T) {
	const mangled = `
function _ZN4list4pushEPv(i8*, i8**)
entry:
  STRXui killed $x0, killed $x1, #0
  RET
`
	args, err := parseArgs([]string{writeInput(t, "f.mir", mangled)})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out))
	assert.Contains(t, out.String(), "; list::push(void*)\n")
}

func TestRunCompressedModule(t *testing.T) {
	args, err := parseArgs([]string{writeInput(t, "m.yaml.zst", zstded(t, testModule))})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out))
	assert.Contains(t, out.String(), "function f(i8*)")
}

var errShortWrite = errors.New("short write")

// failingWriter fails every write after the first ok ones.
type failingWriter struct {
	ok     int
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > w.ok {
		return 0, errShortWrite
	}
	return len(p), nil
}

func TestPrintStatsWriteError(t *testing.T) {
	events := metrics.NewEvents()
	events.Inc("StoreLoad.InstrumentedDataStore", "f")
	events.Inc("StoreLoad.InstrumentedDataLoad", "f")

	tests := map[string]struct {
		ok int
	}{
		"events header":  {ok: 0},
		"first event":    {ok: 1},
		"second event":   {ok: 2},
		"metrics header": {ok: 3},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			w := &failingWriter{ok: tc.ok}
			require.ErrorIs(t, printStats(w, events), errShortWrite)
			assert.Equal(t, tc.ok+1, w.writes)
		})
	}
}
