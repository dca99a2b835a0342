/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/acronis/go-throttlekit/gate"
	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/ringqueue"
)

// GatedOpts represents options for Gated.
type GatedOpts[T any] struct {
	Logger           log.FieldLogger
	ErrorHandler     func(err *DownstreamError[T])
	ErrorsBufferSize int
	EvictionHandler  func(item T)
	MetricsCollector MetricsCollector
}

// Gated delivers at most one item per delay to the downstream.
// An item passes at once if the gate is open and nothing is queued; then the gate closes for the delay.
// Items arriving while the gate is closed are queued (the oldest ones are evicted on overflow)
// and delivered one by one, each time the gate reopens.
//
// As with Dispatcher, the downstream is called under the internal lock
// and must not call Accept or Close.
type Gated[T any] struct {
	gate            *gate.Gate
	logger          log.FieldLogger
	delivery        *delivery[T]
	metrics         MetricsCollector
	evictionHandler func(item T)
	backlogCap      int

	mu     sync.Mutex
	queue  *ringqueue.Queue[T]
	closed bool

	queued    chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewGated creates a new Gated.
func NewGated[T any](delay time.Duration, backlog int, downstream Downstream[T]) (*Gated[T], error) {
	return NewGatedWithOpts[T](delay, backlog, downstream, GatedOpts[T]{})
}

// NewGatedWithOpts creates a new Gated with the provided options.
// Zero backlog means that items arriving while the gate is closed are dropped.
func NewGatedWithOpts[T any](
	delay time.Duration, backlog int, downstream Downstream[T], opts GatedOpts[T],
) (*Gated[T], error) {
	if backlog < 0 {
		return nil, invalidConfigError("backlog should not be negative, got %d", backlog)
	}
	if downstream == nil {
		return nil, invalidConfigError("downstream should not be nil")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetricsCollector
	}

	gt, err := gate.NewWithOpts(delay, gate.Opts{Logger: opts.Logger})
	if err != nil {
		return nil, invalidConfigError("%v", err)
	}

	g := &Gated[T]{
		gate:            gt,
		logger:          opts.Logger,
		delivery:        newDelivery[T](downstream, opts.Logger, opts.MetricsCollector, opts.ErrorsBufferSize, opts.ErrorHandler),
		metrics:         opts.MetricsCollector,
		evictionHandler: opts.EvictionHandler,
		backlogCap:      backlog,
		queued:          make(chan struct{}, 1),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	if g.queue, err = ringqueue.NewWithOpts[T](backlog, ringqueue.Opts[T]{EvictionHandler: g.onEvict}); err != nil {
		gt.Close()
		return nil, invalidConfigError("%v", err)
	}
	go g.run()
	return g, nil
}

// Accept delivers the item at once if the gate is open and nothing is queued, otherwise queues it.
func (g *Gated[T]) Accept(item T) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.delivery.counters.accepted.Inc()

	if g.closed {
		g.drop("gated dispatcher is closed, item is dropped")
		return
	}
	if g.gate.ShouldProceed() && g.queue.IsEmpty() {
		g.gate.Throttle()
		g.delivery.deliver(item, false)
		return
	}
	if g.backlogCap == 0 {
		g.drop("gate is closed and backlog is disabled, item is dropped")
		return
	}
	g.queue.Offer(item)
	g.delivery.counters.buffered.Inc()
	g.metrics.IncItems(ItemOutcomeBuffered)
	select {
	case g.queued <- struct{}{}:
	default:
	}
}

func (g *Gated[T]) run() {
	defer close(g.done)

	for {
		select {
		case <-g.stop:
			return
		case <-g.gate.Ready():
		}

		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			return
		}
		if !g.gate.ShouldProceed() {
			// Accept has closed the gate again, wait for the next cycle.
			g.mu.Unlock()
			continue
		}
		if item, ok := g.queue.Poll(); ok {
			g.gate.Throttle()
			g.delivery.deliver(item, true)
			g.mu.Unlock()
			continue
		}
		g.mu.Unlock()

		select {
		case <-g.stop:
			return
		case <-g.queued:
		}
	}
}

func (g *Gated[T]) onEvict(item T) {
	g.delivery.counters.evicted.Inc()
	g.metrics.IncItems(ItemOutcomeEvicted)
	g.logger.Debug("gated backlog is full, the oldest queued item is evicted", log.Int("backlog_cap", g.backlogCap))
	if g.evictionHandler != nil {
		g.evictionHandler(item)
	}
}

func (g *Gated[T]) drop(msg string) {
	g.delivery.counters.dropped.Inc()
	g.metrics.IncItems(ItemOutcomeDropped)
	g.logger.Debug(msg)
}

// Errors returns a channel with failures of the downstream. It's closed by Close.
func (g *Gated[T]) Errors() <-chan *DownstreamError[T] {
	return g.delivery.errors
}

// Stats returns a snapshot of the counters.
func (g *Gated[T]) Stats() Stats {
	return g.delivery.counters.snapshot(g.queue.Len())
}

// Close stops delivering queued items and waits until the internal goroutine exits or ctx is done.
// Queued items are abandoned (counted as dropped). Close may be called many times.
func (g *Gated[T]) Close(ctx context.Context) error {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		g.closed = true
		abandoned := g.queue.Clear()
		close(g.delivery.errors)
		g.mu.Unlock()

		if abandoned > 0 {
			g.delivery.counters.dropped.Add(int64(abandoned))
			g.logger.Warn("gated dispatcher is closed, queued items are abandoned", log.Int("abandoned", abandoned))
		}
		close(g.stop)
		g.gate.Close()
	})

	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
