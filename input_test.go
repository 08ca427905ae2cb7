// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.String()
}

func zstded(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.String()
}

func TestOpenInput(t *testing.T) {
	tests := map[string]struct {
		file    string
		content func(t *testing.T) string
		format  string
		wantErr bool
	}{
		"module": {
			file:   "m.yaml",
			format: formatModule,
		},
		"short module extension": {
			file:   "m.yml",
			format: formatModule,
		},
		"function": {
			file:   "f.mir",
			format: formatFunction,
		},
		"gzip": {
			file:    "f.mir.gz",
			content: func(t *testing.T) string { return gzipped(t, testFunction) },
			format:  formatFunction,
		},
		"zstd": {
			file:    "m.yaml.zst",
			content: func(t *testing.T) string { return zstded(t, testFunction) },
			format:  formatModule,
		},
		"unknown": {
			file:    "f.s",
			wantErr: true,
		},
		"compressed unknown": {
			file:    "f.s.gz",
			wantErr: true,
		},
		"corrupt gzip": {
			file:    "f.mir.gz",
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			content := testFunction
			if tc.content != nil {
				content = tc.content(t)
			}
			in, err := openInput(writeInput(t, tc.file, content))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer in.Close()

			assert.Equal(t, tc.format, in.format)
			data, err := io.ReadAll(in)
			require.NoError(t, err)
			assert.Equal(t, testFunction, string(data))
		})
	}
}

func TestOpenInputMissing(t *testing.T) {
	_, err := openInput(t.TempDir() + "/missing.mir")
	assert.Error(t, err)
}
