/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"runtime"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-throttlekit/log"
)

// Downstream is a consumer of dispatched items.
// A returned error (as well as a panic) is reported but never affects other items.
type Downstream[T any] func(item T) error

// DefaultErrorsBufferSize is the default capacity of the channel returned by Errors().
const DefaultErrorsBufferSize = 64

// Stats is a snapshot of counters.
type Stats struct {
	Accepted              int64
	Dispatched            int64
	DispatchedFromBacklog int64
	Buffered              int64
	Evicted               int64
	Dropped               int64
	Failed                int64
	ErrorsDiscarded       int64
	BacklogLen            int
}

type counters struct {
	accepted              atomic.Int64
	dispatched            atomic.Int64
	dispatchedFromBacklog atomic.Int64
	buffered              atomic.Int64
	evicted               atomic.Int64
	dropped               atomic.Int64
	failed                atomic.Int64
	errorsDiscarded       atomic.Int64
}

func (c *counters) snapshot(backlogLen int) Stats {
	return Stats{
		Accepted:              c.accepted.Load(),
		Dispatched:            c.dispatched.Load(),
		DispatchedFromBacklog: c.dispatchedFromBacklog.Load(),
		Buffered:              c.buffered.Load(),
		Evicted:               c.evicted.Load(),
		Dropped:               c.dropped.Load(),
		Failed:                c.failed.Load(),
		ErrorsDiscarded:       c.errorsDiscarded.Load(),
		BacklogLen:            backlogLen,
	}
}

// delivery invokes the downstream and takes care of its failures.
type delivery[T any] struct {
	downstream   Downstream[T]
	logger       log.FieldLogger
	metrics      MetricsCollector
	counters     *counters
	errors       chan *DownstreamError[T]
	errorHandler func(err *DownstreamError[T])
}

func newDelivery[T any](
	downstream Downstream[T], logger log.FieldLogger, metrics MetricsCollector, errorsBufferSize int,
	errorHandler func(err *DownstreamError[T]),
) *delivery[T] {
	if errorsBufferSize <= 0 {
		errorsBufferSize = DefaultErrorsBufferSize
	}
	return &delivery[T]{
		downstream:   downstream,
		logger:       logger,
		metrics:      metrics,
		counters:     &counters{},
		errors:       make(chan *DownstreamError[T], errorsBufferSize),
		errorHandler: errorHandler,
	}
}

// deliver passes the item to the downstream. It returns false if the downstream failed.
func (d *delivery[T]) deliver(item T, fromBacklog bool) bool {
	d.counters.dispatched.Inc()
	if fromBacklog {
		d.counters.dispatchedFromBacklog.Inc()
		d.metrics.IncItems(ItemOutcomeDispatchedFromBacklog)
	} else {
		d.metrics.IncItems(ItemOutcomeDispatched)
	}

	startTime := time.Now()
	err := d.call(item)
	d.metrics.ObserveDownstreamDuration(time.Since(startTime))
	if err == nil {
		return true
	}

	d.counters.failed.Inc()
	d.metrics.IncItems(ItemOutcomeFailed)
	fields := []log.Field{log.Error(err), log.Bool("from_backlog", fromBacklog)}
	if panicErr, ok := err.(*PanicError); ok {
		fields = append(fields, log.Bytes("stack", panicErr.Stack))
	}
	d.logger.Error("downstream failed to process item", fields...)

	downstreamErr := &DownstreamError[T]{Item: item, Err: err, FromBacklog: fromBacklog}
	select {
	case d.errors <- downstreamErr:
	default:
		d.counters.errorsDiscarded.Inc()
		d.logger.Warn("errors channel is full, downstream error is discarded")
	}
	if d.errorHandler != nil {
		d.errorHandler(downstreamErr)
	}
	return false
}

func (d *delivery[T]) call(item T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			err = &PanicError{Value: p, Stack: stack}
		}
	}()
	return d.downstream(item)
}
