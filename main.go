// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// parts instruments a module or a lowered machine function with pointer
// authentication and prints the resulting machine code.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"

	"github.com/ianlancetaylor/demangle"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/parts-pauth/parts/ir"
	"github.com/parts-pauth/parts/metrics"
	"github.com/parts-pauth/parts/metrics/agentmetrics"
	"github.com/parts-pauth/parts/mir"
	"github.com/parts-pauth/parts/pacmask"
	"github.com/parts-pauth/parts/pauth"
	"github.com/parts-pauth/parts/vc"
)

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// Invalid flags or configuration values
	exitParseError exitCode = 2
)

func main() {
	os.Exit(int(mainWithExitCode()))
}

func mainWithExitCode() exitCode {
	args, err := parseArgs(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return exitSuccess
	}
	if err != nil {
		return parseError("Failure to parse arguments: %v", err)
	}

	if args.version {
		fmt.Printf("%s\n", vc.Version())
		return exitSuccess
	}

	if args.pacMask {
		fmt.Printf("%#016x\n", pacmask.GetPACMask())
		return exitSuccess
	}

	if args.verboseMode {
		log.SetLevel(log.DebugLevel)
		// Dump the arguments in debug mode.
		args.dump()
	}

	if err = args.Validate(); err != nil {
		return parseError("Invalid configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		unix.SIGINT, unix.SIGTERM, unix.SIGABRT)
	defer cancel()

	log.Debugf("Starting %s", vc.Summary())

	if err = run(ctx, args, os.Stdout); err != nil {
		return failure("Failed to instrument %s: %v", args.input, err)
	}
	return exitSuccess
}

// run instruments the input file and writes the listing to out.
func run(ctx context.Context, args *arguments, out io.Writer) error {
	usage, err := agentmetrics.Start()
	if err != nil {
		return err
	}

	in, err := openInput(args.input)
	if err != nil {
		return err
	}
	defer in.Close()

	events := metrics.NewEvents()
	p := &pauth.Pipeline{Config: args.Config, Events: events}

	var res *pauth.Result
	switch in.format {
	case formatModule:
		var m *ir.Module
		if m, err = ir.LoadModule(in); err != nil {
			return err
		}
		res, err = p.Run(ctx, m)
	case formatFunction:
		var fns []*mir.Function
		if fns, err = mir.Parse(in, nil); err != nil {
			return err
		}
		res, err = p.RunMIR(ctx, fns)
	}
	if err != nil {
		return err
	}

	if err = printListing(out, res); err != nil {
		return err
	}
	if !args.stats {
		return nil
	}
	usage.Report()
	return printStats(out, events)
}

func printListing(out io.Writer, res *pauth.Result) error {
	for _, fr := range res.Functions {
		if fr.Skipped {
			if _, err := fmt.Fprintf(out, "; %s: skipped\n\n", fr.Name); err != nil {
				return err
			}
			continue
		}
		if demangled := demangle.Filter(fr.Name); demangled != fr.Name {
			if _, err := fmt.Fprintf(out, "; %s\n", demangled); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(out, "%s\n", fr.MIR); err != nil {
			return err
		}
	}
	return nil
}

func printStats(out io.Writer, events *metrics.Events) error {
	if _, err := fmt.Fprintln(out, "; events"); err != nil {
		return err
	}
	for _, name := range events.Names() {
		if _, err := fmt.Fprintf(out, ";   %-48s %d\n", name, events.Count(name)); err != nil {
			return err
		}
	}

	summary := metrics.Snapshot()
	if _, err := fmt.Fprintln(out, "; metrics"); err != nil {
		return err
	}
	for _, id := range slices.Sorted(maps.Keys(summary)) {
		if _, err := fmt.Fprintf(out, ";   %-48s %d\n", metrics.Name(id), summary[id]); err != nil {
			return err
		}
	}
	return nil
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
