// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reset()
	t.Cleanup(reset)

	AddSlice([]Metric{
		{IDFunctionsProcessed, 2},
		{IDInferenceFailure, 0},
		{IDProcessGoRoutines, 12},
	})
	Add(IDFunctionsProcessed, 3)
	Add(IDProcessGoRoutines, 5)
	Add(IDMax, 1)
	Add(IDInvalid, 1)

	assert.Equal(t, Summary{
		IDFunctionsProcessed: 5,
		IDProcessGoRoutines:  5,
	}, Snapshot())
}

func TestGetDefinitions(t *testing.T) {
	defs, err := GetDefinitions()
	require.NoError(t, err)
	require.Len(t, defs, IDMax)
	for i, md := range defs {
		assert.Equal(t, MetricID(i), md.ID)
	}
	assert.Equal(t, "parts.inference.success", Name(IDInferenceSuccess))
	assert.Empty(t, Name(IDMax))
}

func TestEvents(t *testing.T) {
	e := NewEvents()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Inc("StoreLoad.Inferred", "f")
			e.Inc("StoreLoad.Inferred", "g")
		}()
	}
	wg.Wait()
	e.Add("StoreLoad.Unknown_LDPXi", "f", 2)
	e.Add("Never", "f", 0)

	assert.Equal(t, int64(16), e.Count("StoreLoad.Inferred"))
	assert.Equal(t, int64(8), e.CountIn("StoreLoad.Inferred", "g"))
	assert.Equal(t, int64(2), e.CountIn("StoreLoad.Unknown_LDPXi", "f"))
	assert.Equal(t, []string{"StoreLoad.Inferred", "StoreLoad.Unknown_LDPXi"}, e.Names())
}

func TestNilEvents(t *testing.T) {
	var e *Events
	e.Inc("x", "f")
	assert.Zero(t, e.Count("x"))
	assert.Nil(t, e.Snapshot())
}
