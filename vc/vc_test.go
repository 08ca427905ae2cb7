// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package vc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummary(t *testing.T) {
	tests := map[string]struct {
		version, revision, timestamp string
		want                         string
	}{
		"local build": {
			want: "parts unknown (revision unknown, build timestamp unknown)",
		},
		"release": {
			version:   "v0.3.0",
			revision:  "4f2a9c1",
			timestamp: "2026-10-01T12:00:00Z",
			want:      "parts v0.3.0 (revision 4f2a9c1, build timestamp 2026-10-01T12:00:00Z)",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			defer func(v, r, b string) { version, revision, buildTimestamp = v, r, b }(
				version, revision, buildTimestamp)
			version, revision, buildTimestamp = tc.version, tc.revision, tc.timestamp
			assert.Equal(t, tc.want, Summary())
		})
	}
}
