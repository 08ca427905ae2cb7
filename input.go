// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Input formats
const (
	formatModule   = "module"
	formatFunction = "function"
)

// input is an opened input file together with its decompressor.
type input struct {
	io.Reader
	format  string
	closers []io.Closer
}

func (in *input) Close() error {
	var err error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if cerr := in.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// openInput opens path and picks the format from its extension. A trailing
// .gz or .zst extension selects transparent decompression.
func openInput(path string) (*input, error) {
	name := filepath.Base(path)
	compression := filepath.Ext(name)
	switch compression {
	case ".gz", ".zst":
		name = strings.TrimSuffix(name, compression)
	default:
		compression = ""
	}

	var format string
	switch ext := filepath.Ext(name); ext {
	case ".yaml", ".yml":
		format = formatModule
	case ".mir":
		format = formatFunction
	default:
		return nil, fmt.Errorf("unsupported input format %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	in := &input{Reader: f, format: format, closers: []io.Closer{f}}

	switch compression {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		in.Reader = zr
		in.closers = append(in.closers, zr)
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		in.Reader = zr
		in.closers = append(in.closers, zr.IOReadCloser())
	}
	return in, nil
}
