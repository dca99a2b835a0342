/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStopTimeoutExceeded is returned by Stop when the graceful stop timeout is exceeded.
var ErrStopTimeoutExceeded = errors.New("unit stop timeout exceeded")

// Closer is something that runs on its own goroutines once constructed and is released by Close,
// e.g. throttle.Dispatcher or throttle.Gated.
type Closer interface {
	Close(ctx context.Context) error
}

// CloserUnitOpts contains optional parameters for constructing CloserUnit.
type CloserUnitOpts struct {
	MetricsRegisterer   MetricsRegisterer
	GracefulStopTimeout time.Duration
}

// CloserUnit presents Closer as Unit. Start does nothing, Stop calls Close.
type CloserUnit struct {
	closer              Closer
	metricsRegisterer   MetricsRegisterer
	gracefulStopTimeout time.Duration
}

// NewCloserUnit creates a new CloserUnit.
func NewCloserUnit(closer Closer) *CloserUnit {
	return NewCloserUnitWithOpts(closer, CloserUnitOpts{})
}

// NewCloserUnitWithOpts creates a new CloserUnit with the provided options.
func NewCloserUnitWithOpts(closer Closer, opts CloserUnitOpts) *CloserUnit {
	return &CloserUnit{closer: closer, metricsRegisterer: opts.MetricsRegisterer, gracefulStopTimeout: opts.GracefulStopTimeout}
}

// Start implements Unit. The closer is already running.
func (u *CloserUnit) Start(chan<- error) {}

// Stop closes the underlying Closer.
// Graceful stop waits for its goroutines (bounded by the graceful stop timeout if it's set),
// otherwise Close is called with an already canceled context and Stop returns at once.
func (u *CloserUnit) Stop(gracefully bool) error {
	ctx := context.Background()
	var cancel context.CancelFunc
	switch {
	case !gracefully:
		ctx, cancel = context.WithCancel(ctx)
		cancel()
	case u.gracefulStopTimeout > 0:
		ctx, cancel = context.WithTimeout(ctx, u.gracefulStopTimeout)
		defer cancel()
	}

	err := u.closer.Close(ctx)
	if err == nil || !gracefully {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrStopTimeoutExceeded
	}
	return fmt.Errorf("close: %w", err)
}

// MustRegisterMetrics implements MetricsRegisterer.
func (u *CloserUnit) MustRegisterMetrics() {
	if u.metricsRegisterer != nil {
		u.metricsRegisterer.MustRegisterMetrics()
	}
}

// UnregisterMetrics implements MetricsRegisterer.
func (u *CloserUnit) UnregisterMetrics() {
	if u.metricsRegisterer != nil {
		u.metricsRegisterer.UnregisterMetrics()
	}
}
