// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentmetrics reports the resource usage of an instrumentation run.
package agentmetrics // import "github.com/parts-pauth/parts/metrics/agentmetrics"

import (
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/parts-pauth/parts/metrics"
)

// rusageTimes holdes time values of a rusage call.
type rusageTimes struct {
	// utime represents the user time in usec.
	utime unix.Timeval
	// stime represents the system time in usec.
	stime unix.Timeval
}

const (
	// rusageSelf is the indicator that we get the rusage
	// of the calling process itself.
	rusageSelf = 0
)

// timeDelta calculates the difference between two time values
// and returns the difference in milliseconds.
func timeDelta(now, prev unix.Timeval) int64 {
	secDelta := (now.Sec - prev.Sec) * 1000
	usecDelta := (now.Usec - prev.Usec) / 1000
	return secDelta + usecDelta
}

// Usage remembers the resource usage at the start of a run.
type Usage struct {
	start rusageTimes
}

// Start records the current resource usage.
func Start() (*Usage, error) {
	var rusage unix.Rusage
	if err := unix.Getrusage(rusageSelf, &rusage); err != nil {
		log.Errorf("Failed to fetch Rusage: %v", err)
		return nil, err
	}
	return &Usage{start: rusageTimes{utime: rusage.Utime, stime: rusage.Stime}}, nil
}

// Report forwards the resource usage since Start to the metrics package.
func (u *Usage) Report() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	var rusage unix.Rusage
	if err := unix.Getrusage(rusageSelf, &rusage); err != nil {
		log.Errorf("Failed to fetch Rusage: %v", err)
		return
	}

	metrics.AddSlice([]metrics.Metric{
		{
			ID:    metrics.IDProcessGoRoutines,
			Value: metrics.MetricValue(runtime.NumGoroutine()),
		},
		{
			ID:    metrics.IDProcessHeapAlloc,
			Value: metrics.MetricValue(stats.HeapAlloc),
		},
		{
			ID:    metrics.IDProcessUTime,
			Value: metrics.MetricValue(timeDelta(rusage.Utime, u.start.utime)),
		},
		{
			ID:    metrics.IDProcessSTime,
			Value: metrics.MetricValue(timeDelta(rusage.Stime, u.start.stime)),
		},
	})
}
