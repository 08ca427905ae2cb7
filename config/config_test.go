// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		modify func(*Config)
		err    string
	}{
		"default": {
			modify: func(*Config) {},
		},
		"negative jobs": {
			modify: func(cfg *Config) { cfg.Jobs = -1 },
			err:    "the number of jobs must not be negative",
		},
		"no cache": {
			modify: func(cfg *Config) { cfg.CacheSize = 0 },
			err:    "invalid type cache size: 0",
		},
		"bad class": {
			modify: func(cfg *Config) { cfg.DropMetadataOn = []string{"branch"} },
			err:    "unknown instruction class: branch",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.modify(&cfg)
			err := cfg.Validate()
			if tc.err == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tc.err)
		})
	}
}

func TestParseDropList(t *testing.T) {
	tests := map[string]struct {
		in       string
		expected []string
		fail     bool
	}{
		"empty":      {in: "", expected: nil},
		"single":     {in: "load", expected: []string{"load"}},
		"duplicates": {in: "store, STORE,load", expected: []string{"store", "load"}},
		"all":        {in: "all", expected: []string{"load", "store", "call"}},
		"trailing":   {in: "call,", expected: []string{"call"}},
		"unknown":    {in: "load,foo", fail: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseDropList(tc.in)
			if tc.fail {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestInstrumenting(t *testing.T) {
	assert.False(t, Config{}.Instrumenting())
	assert.True(t, Config{BackwardEdge: true}.Instrumenting())
	assert.True(t, Default().Instrumenting())
}
