// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// Package pacmask detects the pointer authentication support of the host.
package pacmask // import "github.com/parts-pauth/parts/pacmask"
