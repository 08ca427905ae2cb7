// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the settings that enable the individual pointer
// authentication protections. A Config is built once per run and passed by
// value to every pass, so passes never observe a change mid-run.
package config // import "github.com/parts-pauth/parts/config"

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/parts-pauth/parts/lower"
)

// DefaultCacheSize is the default number of entries of the type identifier cache.
const DefaultCacheSize = 4096

// Config selects the instrumentation to perform.
type Config struct {
	// DataPointers enables signing of data pointers before they are stored
	// and authentication after they are loaded.
	DataPointers bool
	// ForwardEdge enables tagging of indirect calls and signing of code
	// pointers in global initializers.
	ForwardEdge bool
	// BackwardEdge enables return address signing in non-leaf functions.
	BackwardEdge bool
	// RuntimeStats enables the runtime event counters.
	RuntimeStats bool
	// ExperimentalAutIntrinsic allows lowering of the authenticate intrinsic,
	// which has not been validated on hardware.
	ExperimentalAutIntrinsic bool

	// DropMetadataOn lists instruction classes whose metadata is lost during
	// lowering, forcing the backward inference to recover it.
	DropMetadataOn []string

	// Jobs bounds the number of functions processed concurrently. Zero
	// picks the number of CPUs.
	Jobs int
	// CacheSize is the number of entries of the type identifier cache.
	CacheSize int
}

var dropClasses = []string{lower.ClassLoad, lower.ClassStore, lower.ClassCall}

// Default returns a configuration with data pointer instrumentation enabled.
func Default() Config {
	return Config{
		DataPointers: true,
		CacheSize:    DefaultCacheSize,
	}
}

// Instrumenting reports whether any protection is enabled.
func (cfg Config) Instrumenting() bool {
	return cfg.DataPointers || cfg.ForwardEdge || cfg.BackwardEdge
}

// Validate checks the configuration for values that cannot work.
func (cfg Config) Validate() error {
	if cfg.Jobs < 0 {
		return errors.New("the number of jobs must not be negative")
	}
	if cfg.CacheSize <= 0 {
		return fmt.Errorf("invalid type cache size: %d", cfg.CacheSize)
	}
	for _, class := range cfg.DropMetadataOn {
		if !slices.Contains(dropClasses, class) {
			return fmt.Errorf("unknown instruction class: %s", class)
		}
	}
	if cfg.ExperimentalAutIntrinsic && !cfg.DataPointers {
		log.Warn("The authenticate intrinsic has no effect without data pointer instrumentation")
	}
	return nil
}

// ParseDropList parses a comma separated list of instruction classes.
func ParseDropList(s string) ([]string, error) {
	var result []string
	for name := range strings.SplitSeq(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		switch {
		case name == "all":
			return slices.Clone(dropClasses), nil
		case slices.Contains(dropClasses, name):
			if !slices.Contains(result, name) {
				result = append(result, name)
			}
		default:
			return nil, fmt.Errorf("unknown instruction class: %s", name)
		}
	}
	if len(result) > 0 {
		log.Debugf("Dropping metadata on: %v", result)
	}
	return result, nil
}
