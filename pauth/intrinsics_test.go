// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pauth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parts-pauth/parts/config"
	"github.com/parts-pauth/parts/metrics"
)

func TestIntrinsicLowering(t *testing.T) {
	tests := map[string]struct {
		cfg    config.Config
		pseudo string
		want   []string
		defect bool
	}{
		"killed modifier": {
			cfg:    dpi(),
			pseudo: "$x8 = PARTS_PACDA killed $x0, killed $x17",
			want: []string{
				"$x23 = ADDXri killed $x17, #0, #0",
				"$x8 = ADDXri killed $x0, #0, #0",
				"$x8 = PACDA $x8, $x23",
			},
		},
		"live modifier": {
			cfg:    dpi(),
			pseudo: "$x8 = PARTS_PACDA killed $x0, $x9",
			want: []string{
				"$x8 = ADDXri killed $x0, #0, #0",
				"$x8 = PACDA $x8, $x9",
			},
		},
		"modifier overwritten by the move": {
			cfg:    dpi(),
			pseudo: "$x8 = PARTS_PACDA killed $x0, $x8",
			want: []string{
				"$x23 = ADDXri $x8, #0, #0",
				"$x8 = ADDXri killed $x0, #0, #0",
				"$x8 = PACDA $x8, $x23",
			},
		},
		"runtime statistics": {
			cfg:    config.Config{DataPointers: true, RuntimeStats: true},
			pseudo: "$x8 = PARTS_PACDA killed $x0, $x9",
			want: []string{
				"$x8 = ADDXri killed $x0, #0, #0",
				"$x8 = PACDA $x8, $x9",
				"PARTS_EVENT @__parts_count_data_str",
			},
		},
		"authenticate": {
			cfg:    config.Config{DataPointers: true, ExperimentalAutIntrinsic: true},
			pseudo: "$x8 = PARTS_AUTDA killed $x0, $x9",
			want: []string{
				"$x8 = ADDXri killed $x0, #0, #0",
				"$x8 = AUTDA $x8, $x9",
			},
		},
		"authenticate not enabled": {
			cfg:    dpi(),
			pseudo: "$x8 = PARTS_AUTDA killed $x0, $x9",
			defect: true,
		},
		"malformed": {
			cfg:    dpi(),
			pseudo: "$x8 = PARTS_PACDA killed $x0, #3",
			defect: true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			fn := parse(t, "function f(i8*)\nentry:\n  "+tc.pseudo+"\n  $x0 = COPY killed $x8\n")
			events := metrics.NewEvents()
			changed, err := NewIntrinsicLowerer(tc.cfg, events).Run(fn)
			if tc.defect {
				require.ErrorIs(t, err, ErrDefect)
				return
			}
			require.NoError(t, err)
			assert.True(t, changed)
			assert.Equal(t, append(tc.want, "$x0 = COPY killed $x8"), listing(fn))
			op := strings.Fields(tc.pseudo)[2]
			assert.Equal(t, int64(1), events.CountIn(EventIntrinsicLowered+op, "f"))
		})
	}
}

func TestRuntimeCallCounters(t *testing.T) {
	tests := map[string]struct {
		src  string
		want []string
	}{
		"leaf": {
			src: `function f()
entry:
  CBNZX $x0, %out
early:
  RET
out:
  RET`,
			want: []string{
				"CBNZX $x0, %out",
				"PARTS_EVENT @__parts_count_leaf_call",
				"RET",
				"PARTS_EVENT @__parts_count_leaf_call",
				"RET",
			},
		},
		"non-leaf": {
			src: `function f()
entry:
  $x30 = PACIB $x30, $sp
  BL @g
  $x30 = AUTIB $x30, $sp
  RET`,
			want: []string{
				"PARTS_EVENT @__parts_count_nonleaf_call",
				"$x30 = PACIB $x30, $sp",
				"BL @g",
				"$x30 = AUTIB $x30, $sp",
				"RET",
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			fn := parse(t, tc.src+"\n")
			changed, err := NewIntrinsicLowerer(config.Config{RuntimeStats: true}, nil).Run(fn)
			require.NoError(t, err)
			assert.True(t, changed)
			assert.Equal(t, tc.want, listing(fn))
		})
	}

	t.Run("no-parts", func(t *testing.T) {
		fn := parse(t, "function f()\nattr no-parts\nentry:\n  RET\n")
		changed, err := NewIntrinsicLowerer(config.Config{RuntimeStats: true}, nil).Run(fn)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, []string{"RET"}, listing(fn))
	})
}
