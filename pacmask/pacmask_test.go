// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pacmask

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPACMask(t *testing.T) {
	mask := GetPACMask()
	if runtime.GOARCH != "arm64" {
		assert.Zero(t, mask)
		return
	}
	// The signed address bits never end up in the mask.
	assert.Zero(t, mask&(uint64(0xFFFF_FFFF)<<3))
}
