// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "github.com/parts-pauth/parts/metrics"

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/parts-pauth/parts/vc"
)

var (
	//go:embed metrics.json
	metricsJSON []byte

	// Used in fallback checks, e.g. to avoid adding "counters" with 0 values
	metricTypes map[MetricID]MetricType

	// values holds the running total of counters and the last value of gauges
	values [IDMax]atomic.Int64

	// OTel metric instrumentation
	meter = otel.Meter("github.com/parts-pauth/parts",
		metric.WithInstrumentationVersion(vc.Version()))
	counters = map[MetricID]metric.Int64Counter{}
	gauges   = map[MetricID]metric.Int64Gauge{}
)

func init() {
	defs, err := GetDefinitions()
	if err != nil {
		panic(err)
	}
	metricTypes = make(map[MetricID]MetricType, len(defs))
	for _, md := range defs {
		if md.Obsolete || md.ID == IDInvalid {
			continue
		}
		metricTypes[md.ID] = md.Type
		switch typ := md.Type; typ {
		case MetricTypeCounter:
			counter, err := meter.Int64Counter(md.Name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Counter: %v", err)
				continue
			}
			counters[md.ID] = counter
		case MetricTypeGauge:
			gauge, err := meter.Int64Gauge(md.Name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Gauge: %v", err)
				continue
			}
			gauges[md.ID] = gauge
		default:
			panic(fmt.Sprintf("Unknown metric type: %v", typ))
		}
	}
}

// AddSlice takes a slice of metrics and records them. Counters are summed up,
// gauges keep the last value. Every value is also forwarded to the OTel meter.
func AddSlice(newMetrics []Metric) {
	ctx := context.Background()
	for _, m := range newMetrics {
		if m.ID <= IDInvalid || m.ID >= IDMax {
			log.Errorf("Metric value %d out of range [%d,%d]- needs investigation",
				m.ID, IDInvalid+1, IDMax-1)
			continue
		}

		typ, ok := metricTypes[m.ID]
		if !ok {
			log.Warnf("Invalid metric id %d, skipping", m.ID)
			continue
		}

		switch typ {
		case MetricTypeCounter:
			if m.Value == 0 {
				continue
			}
			values[m.ID].Add(int64(m.Value))
			if counter, ok := counters[m.ID]; ok {
				counter.Add(ctx, int64(m.Value))
			}
		case MetricTypeGauge:
			values[m.ID].Store(int64(m.Value))
			if gauge, ok := gauges[m.ID]; ok {
				gauge.Record(ctx, int64(m.Value))
			}
		}
	}
}

// Add takes a single metric (id and value).
func Add(id MetricID, value MetricValue) {
	AddSlice([]Metric{{id, value}})
}

// Snapshot returns the non-zero values recorded so far.
func Snapshot() Summary {
	s := make(Summary)
	for id := MetricID(IDInvalid + 1); id < IDMax; id++ {
		if v := values[id].Load(); v != 0 {
			s[id] = MetricValue(v)
		}
	}
	return s
}

// reset clears all recorded values. It exists for tests.
func reset() {
	for i := range values {
		values[i].Store(0)
	}
}

// GetDefinitions returns the metric definitions from the embedded metrics.json file.
func GetDefinitions() ([]MetricDefinition, error) {
	var defs []MetricDefinition

	dec := json.NewDecoder(bytes.NewReader(metricsJSON))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&defs); err != nil {
		return nil, fmt.Errorf("extracting definitions from metrics.json: %v", err)
	}
	return defs, nil
}

// Name returns the OTel name of id, or an empty string for unknown IDs.
func Name(id MetricID) string {
	defs, _ := GetDefinitions()
	for _, md := range defs {
		if md.ID == id {
			return md.Name
		}
	}
	return ""
}
