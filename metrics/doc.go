// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package metrics contains the counters of the instrumentation pipeline.

There are two kinds of counters. Fixed metrics are declared in metrics.json,
get a generated ID in ids.go and are recorded with Add or AddSlice. Events are
open ended names such as "StoreLoad.Unknown_LDPXi" that the passes emit for
every decision they take; they are counted per function by an Events value.

Both are mirrored to the global OTel meter, so an embedding program that
installs a meter provider receives them without further wiring.

# Directory Structure

	metrics
	├── agentmetrics/   // resource usage of a run
	├── genids/         // generates ids.go from metrics.json
	├── doc.go          // this file
	├── events.go       // Events
	├── metrics.go      // Add(), AddSlice() and Snapshot()
	├── metrics.json    // metric definitions
	└── types.go        // Metric, MetricID, MetricValue
*/
package metrics // import "github.com/parts-pauth/parts/metrics"
