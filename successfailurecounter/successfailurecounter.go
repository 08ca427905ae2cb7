// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

// successfailurecounter provides a wrapper to record the outcome of an
// operation in exactly one of two metrics.
//
// A SuccessFailureCounter is **not** thread safe. It is meant to live on the
// stack of the single goroutine performing the operation.
package successfailurecounter // import "github.com/parts-pauth/parts/successfailurecounter"

import (
	log "github.com/sirupsen/logrus"

	"github.com/parts-pauth/parts/metrics"
)

// SuccessFailureCounter implements a wrapper to increment success or failure counters exactly once.
type SuccessFailureCounter struct {
	success, fail metrics.MetricID
	sealed        bool
}

// New returns a SuccessFailureCounter that can be incremented exactly once.
func New(success, fail metrics.MetricID) SuccessFailureCounter {
	return SuccessFailureCounter{success: success, fail: fail}
}

// ReportSuccess increments the success counter or logs an error otherwise.
func (sfc *SuccessFailureCounter) ReportSuccess() {
	if sfc.sealed {
		log.Errorf("Attempted to report success/failure status more than once.")
		return
	}
	metrics.Add(sfc.success, 1)
	sfc.sealed = true
}

// ReportFailure increments the failure counter or logs an error otherwise.
func (sfc *SuccessFailureCounter) ReportFailure() {
	if sfc.sealed {
		log.Errorf("Attempted to report failure/success status more than once.")
		return
	}
	metrics.Add(sfc.fail, 1)
	sfc.sealed = true
}

// Report increments the success counter when ok is set and the failure
// counter otherwise.
func (sfc *SuccessFailureCounter) Report(ok bool) {
	if ok {
		sfc.ReportSuccess()
	} else {
		sfc.ReportFailure()
	}
}

// DefaultToSuccess increments the success counter if no counter was updated before.
func (sfc *SuccessFailureCounter) DefaultToSuccess() {
	if !sfc.sealed {
		metrics.Add(sfc.success, 1)
		sfc.sealed = true
	}
}

// DefaultToFailure increments the failure counter if no counter was updated before.
func (sfc *SuccessFailureCounter) DefaultToFailure() {
	if !sfc.sealed {
		metrics.Add(sfc.fail, 1)
		sfc.sealed = true
	}
}
