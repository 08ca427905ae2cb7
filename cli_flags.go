// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"flag"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/peterbourgon/ff/v3"

	"github.com/parts-pauth/parts/config"
)

// Help strings for command line arguments
var (
	dataPointersHelp = "Sign data pointers before they are stored and authenticate " +
		"them after they are loaded."
	forwardEdgeHelp  = "Tag indirect calls and sign code pointers in global initializers."
	backwardEdgeHelp = "Sign return addresses in non-leaf functions."
	runtimeStatsHelp = "Emit runtime event counters."
	autIntrinsicHelp = "Allow lowering of the authenticate intrinsic. " +
		"It has not been validated on hardware."
	dropMetadataHelp = "Comma-separated list of instruction classes (load, store, call, all) " +
		"whose metadata is dropped during lowering."
	jobsHelp      = "Number of functions processed concurrently. Zero uses all CPUs."
	cacheSizeHelp = fmt.Sprintf("Number of entries of the type identifier cache. "+
		"Default is %d.", config.DefaultCacheSize)
	configHelp      = "Path to a plain config file with one flag per line."
	pacMaskHelp     = "Print the pointer authentication code mask of the host and exit."
	statsHelp       = "Print the event summary and metrics after the listing."
	verboseModeHelp = "Enable verbose logging."
	versionHelp     = "Show version."
)

var errMissingInput = errors.New("expected exactly one input file")

type arguments struct {
	config.Config
	dropMetadata string
	input        string
	pacMask      bool
	stats        bool
	verboseMode  bool
	version      bool

	fs *flag.FlagSet
}

// dump logs all flags at debug level.
func (args *arguments) dump() {
	log.Debug("Config:")
	args.fs.VisitAll(func(f *flag.Flag) {
		log.Debugf("%s: %v", f.Name, f.Value)
	})
}

func parseArgs(argv []string) (*arguments, error) {
	args := arguments{Config: config.Default()}

	fs := flag.NewFlagSet("parts", flag.ContinueOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.BoolVar(&args.BackwardEdge, "becfi", false, backwardEdgeHelp)

	fs.IntVar(&args.CacheSize, "cache-size", config.DefaultCacheSize, cacheSizeHelp)
	fs.String("config", "", configHelp)

	fs.BoolVar(&args.DataPointers, "dpi", true, dataPointersHelp)
	fs.StringVar(&args.dropMetadata, "drop-metadata", "", dropMetadataHelp)

	fs.BoolVar(&args.ExperimentalAutIntrinsic, "experimental-aut", false, autIntrinsicHelp)

	fs.BoolVar(&args.ForwardEdge, "fecfi", false, forwardEdgeHelp)

	fs.IntVar(&args.Jobs, "jobs", 0, jobsHelp)

	fs.BoolVar(&args.pacMask, "pac-mask", false, pacMaskHelp)

	fs.BoolVar(&args.RuntimeStats, "runtime-stats", false, runtimeStatsHelp)

	fs.BoolVar(&args.stats, "stats", false, statsHelp)

	fs.BoolVar(&args.verboseMode, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.verboseMode, "verbose", false, verboseModeHelp)
	fs.BoolVar(&args.version, "version", false, versionHelp)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: parts [flags] <module.yaml|function.mir>\n")
		fs.PrintDefaults()
	}

	args.fs = fs

	err := ff.Parse(fs, argv,
		ff.WithEnvVarPrefix("PARTS"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		// This will ignore configuration file (only) options that the current
		// version does not recognize.
		ff.WithIgnoreUndefined(true),
		ff.WithAllowMissingConfigFile(true),
	)
	if err != nil {
		return nil, err
	}
	if args.version || args.pacMask {
		return &args, nil
	}

	if args.DropMetadataOn, err = config.ParseDropList(args.dropMetadata); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, errMissingInput
	}
	args.input = fs.Arg(0)
	return &args, nil
}
