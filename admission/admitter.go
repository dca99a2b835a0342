/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"fmt"
	"time"
)

// Admitter answers "is one more call allowed right now?".
// Implementations must be safe for concurrent use. A positive answer is counted as an admission.
type Admitter interface {
	Admit() bool
}

// AdmitterFunc is an adapter to allow the use of ordinary functions as Admitter.
type AdmitterFunc func() bool

// Admit implements Admitter.
func (f AdmitterFunc) Admit() bool {
	return f()
}

// Rate describes the maximum number of admissions per period.
type Rate struct {
	Count    int
	Duration time.Duration
}

// Algorithm is a name of the admission algorithm.
type Algorithm string

// Admission algorithms.
const (
	AlgorithmSlidingLog    Algorithm = "sliding_log"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmLeakyBucket   Algorithm = "leaky_bucket"
	AlgorithmTokenBucket   Algorithm = "token_bucket"
)

// Algorithms lists all supported admission algorithms.
var Algorithms = []Algorithm{
	AlgorithmSlidingLog, AlgorithmSlidingWindow, AlgorithmLeakyBucket, AlgorithmTokenBucket,
}

// NewAdmitter creates an Admitter implementing the given algorithm.
// Empty algorithm means AlgorithmSlidingLog. Burst matters only for the bucket algorithms,
// zero burst means that the whole rate count may be admitted at once.
func NewAdmitter(alg Algorithm, rate Rate, burst int) (Admitter, error) {
	if rate.Count < 0 {
		return nil, fmt.Errorf("max admissions in period should not be negative, got %d", rate.Count)
	}
	if rate.Duration < 0 {
		return nil, fmt.Errorf("period should not be negative, got %s", rate.Duration)
	}
	if burst < 0 {
		return nil, fmt.Errorf("burst should not be negative, got %d", burst)
	}
	if rate.Count == 0 {
		return AdmitterFunc(func() bool { return false }), nil
	}

	switch alg {
	case "", AlgorithmSlidingLog:
		return NewSlidingLog(rate.Count, rate.Duration)
	case AlgorithmSlidingWindow:
		return NewSlidingWindow(rate)
	case AlgorithmLeakyBucket:
		return NewLeakyBucket(rate, burst)
	case AlgorithmTokenBucket:
		return NewTokenBucket(rate, burst)
	}
	return nil, fmt.Errorf("unknown admission algorithm %q", alg)
}
