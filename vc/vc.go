// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// Package vc provides the build information of the parts binary. The values
// are injected at link time, for example:
//
//	go build -ldflags "-X github.com/parts-pauth/parts/vc.version=v0.3.0"
package vc // import "github.com/parts-pauth/parts/vc"

import "fmt"

// Set through -ldflags -X.
var (
	revision       = ""
	buildTimestamp = ""
	// vX.Y.Z{-N-abbrev}, as produced by git describe --tags
	version = ""
)

const unknown = "unknown"

// Revision returns the VCS revision of the build.
func Revision() string {
	return orUnknown(revision)
}

// BuildTimestamp returns the timestamp of the build.
func BuildTimestamp() string {
	return orUnknown(buildTimestamp)
}

// Version returns the release version, or "unknown" for local builds.
func Version() string {
	return orUnknown(version)
}

// Summary returns a single line describing the build.
func Summary() string {
	return fmt.Sprintf("parts %s (revision %s, build timestamp %s)",
		Version(), Revision(), BuildTimestamp())
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
