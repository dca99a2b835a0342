/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package gate provides Gate, a fixed-delay throttle: once throttled, it stays closed for the configured delay.
// Waiters get an explicit signal (a channel) when the gate opens again.
package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-throttlekit/log"
)

// Opts represents options for the Gate.
type Opts struct {
	Logger log.FieldLogger
}

// Gate is closed for a fixed delay after each Throttle call and open otherwise.
// A new Gate is open.
type Gate struct {
	delay  time.Duration
	logger log.FieldLogger

	mu     sync.Mutex
	open   bool
	ready  chan struct{} // closed while the gate is open
	timer  *time.Timer
	gen    uint64
	closed bool
}

// New creates a new open Gate.
func New(delay time.Duration) (*Gate, error) {
	return NewWithOpts(delay, Opts{})
}

// NewWithOpts creates a new open Gate with the provided options.
func NewWithOpts(delay time.Duration, opts Opts) (*Gate, error) {
	if delay < 0 {
		return nil, fmt.Errorf("delay should not be negative, got %s", delay)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	ready := make(chan struct{})
	close(ready)
	return &Gate{delay: delay, logger: opts.Logger, open: true, ready: ready}, nil
}

// Delay returns how long the gate stays closed after Throttle.
func (g *Gate) Delay() time.Duration {
	return g.delay
}

// Throttle closes the gate for the configured delay.
// Calling it while the gate is already closed restarts the delay.
// After Close it does nothing.
func (g *Gate) Throttle() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || g.delay == 0 {
		return
	}
	if g.open {
		g.open = false
		g.ready = make(chan struct{})
	}
	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	gen := g.gen
	g.timer = time.AfterFunc(g.delay, func() { g.reopen(gen) })
}

func (g *Gate) reopen(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.open || gen != g.gen {
		return
	}
	g.open = true
	g.timer = nil
	close(g.ready)
}

// ShouldProceed reports whether the gate is open.
func (g *Gate) ShouldProceed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Ready returns a channel that is closed when the gate is open.
// The channel belongs to the current throttling cycle: call Ready again after the next Throttle.
func (g *Gate) Ready() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Close releases the timer. The gate is left open for good, so nobody waits on Ready forever.
// Close may be called many times.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if !g.open {
		g.open = true
		close(g.ready)
		g.logger.Debug("gate is closed while throttling, releasing waiters")
	}
}
