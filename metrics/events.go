// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "github.com/parts-pauth/parts/metrics"

import (
	"context"
	"maps"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Events counts named diagnostic events, such as "StoreLoad.Inferred", per
// function. The names are open ended, so unlike the fixed metric IDs they are
// reported through a single OTel counter with the name as attribute.
//
// Events is safe for concurrent use.
type Events struct {
	mu      sync.Mutex
	total   map[string]int64
	perFunc map[string]map[string]int64
	counter metric.Int64Counter
}

// NewEvents returns an empty event table.
func NewEvents() *Events {
	e := &Events{
		total:   make(map[string]int64),
		perFunc: make(map[string]map[string]int64),
	}
	counter, err := meter.Int64Counter("parts.events",
		metric.WithDescription("Number of times each instrumentation decision was taken"),
		metric.WithUnit("{event}"))
	if err != nil {
		log.Errorf("Creating Int64Counter: %v", err)
	} else {
		e.counter = counter
	}
	return e
}

// Inc counts one occurrence of event in function fn.
func (e *Events) Inc(event, fn string) {
	e.Add(event, fn, 1)
}

// Add counts n occurrences of event in function fn. A nil Events discards
// everything, so passes can run without diagnostics.
func (e *Events) Add(event, fn string, n int64) {
	if e == nil || n == 0 {
		return
	}
	log.Debugf("%s: %s", fn, event)

	e.mu.Lock()
	e.total[event] += n
	byFn, ok := e.perFunc[fn]
	if !ok {
		byFn = make(map[string]int64)
		e.perFunc[fn] = byFn
	}
	byFn[event] += n
	e.mu.Unlock()

	if e.counter != nil {
		e.counter.Add(context.Background(), n,
			metric.WithAttributes(attribute.String("event", event)))
	}
}

// Count returns how often event occurred in total.
func (e *Events) Count(event string) int64 {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total[event]
}

// CountIn returns how often event occurred in function fn.
func (e *Events) CountIn(event, fn string) int64 {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.perFunc[fn][event]
}

// Snapshot returns a copy of the total counts.
func (e *Events) Snapshot() map[string]int64 {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.total)
}

// Names returns the sorted names of all events seen.
func (e *Events) Names() []string {
	return slices.Sorted(maps.Keys(e.Snapshot()))
}
