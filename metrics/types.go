// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "github.com/parts-pauth/parts/metrics"

// Create ids.go from metrics.json
//go:generate go run genids/main.go metrics.json ids.go

// MetricID is the type for metric IDs.
type MetricID uint16

// MetricValue is the type for metric values.
type MetricValue int64

// Metric is the type for a metric id/value pair.
type Metric struct {
	ID    MetricID
	Value MetricValue
}

// MetricType distinguishes monotonic counters from gauges.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// MetricDefinition describes a metric in metrics.json.
type MetricDefinition struct {
	Description string     `json:"description"`
	Type        MetricType `json:"type"`
	Name        string     `json:"name"`
	FieldName   string     `json:"field"`
	ID          MetricID   `json:"id"`
	Unit        string     `json:"unit"`
	Obsolete    bool       `json:"obsolete"`
}

// Summary helps summarizing metrics of the same ID from different sources before
// processing it further.
type Summary map[MetricID]MetricValue
