/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/xid"

	"github.com/acronis/go-throttlekit/admission"
	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/retry"
	"github.com/acronis/go-throttlekit/ringqueue"
	"github.com/acronis/go-throttlekit/scheduler"
)

const minRetryDelay = time.Millisecond

// Opts represents options for the Dispatcher.
type Opts[T any] struct {
	Logger log.FieldLogger

	// Admitter replaces the default exact sliding log admission (maxInPeriod per period).
	Admitter admission.Admitter

	// RetryPolicy defines delays between retries of the backlog head.
	// By default, the constant policy with the period as interval is used.
	// The policy restarts from its initial state when the backlog drains or when it gives up.
	RetryPolicy retry.Policy

	// ErrorHandler is called for every failed downstream call.
	// It's called under the dispatcher lock and must not call Accept or Close.
	ErrorHandler func(err *DownstreamError[T])

	// ErrorsBufferSize is the capacity of the channel returned by Errors().
	// DefaultErrorsBufferSize is used if it's not positive.
	ErrorsBufferSize int

	// EvictionHandler is called with every buffered item that was evicted because the backlog was full.
	// It's called under the dispatcher lock and must not call Accept or Close.
	EvictionHandler func(item T)

	MetricsCollector        MetricsCollector
	BacklogMetricsCollector ringqueue.MetricsCollector
}

// Dispatcher delivers items to the downstream with at most maxInPeriod admissions per rolling period.
// Not admitted items are kept in a bounded backlog and delivered later in the order of arrival.
//
// The downstream is called synchronously, under the dispatcher lock, either from Accept
// or from the dispatcher's own retry goroutine. Calling Accept or Close from the downstream leads to a deadlock.
type Dispatcher[T any] struct {
	id              xid.ID
	logger          log.FieldLogger
	admitter        admission.Admitter
	period          time.Duration
	backlogCap      int
	retryPolicy     retry.Policy
	delivery        *delivery[T]
	metrics         MetricsCollector
	evictionHandler func(item T)
	scheduler       *scheduler.Scheduler

	mu            sync.Mutex
	backlog       *ringqueue.Queue[T]
	backOff       backoff.BackOff
	backpressured bool
	closed        bool
}

// New creates a new Dispatcher.
func New[T any](maxInPeriod int, period time.Duration, backlog int, downstream Downstream[T]) (*Dispatcher[T], error) {
	return NewWithOpts[T](maxInPeriod, period, backlog, downstream, Opts[T]{})
}

// NewWithOpts creates a new Dispatcher with the provided options.
// Zero backlog means that not admitted items are dropped.
// Zero period means that the default sliding log admits everything (as long as maxInPeriod is positive).
func NewWithOpts[T any](
	maxInPeriod int, period time.Duration, backlog int, downstream Downstream[T], opts Opts[T],
) (*Dispatcher[T], error) {
	if err := validateParams(maxInPeriod, period, backlog); err != nil {
		return nil, err
	}
	if downstream == nil {
		return nil, invalidConfigError("downstream should not be nil")
	}

	if opts.Admitter == nil {
		sl, err := admission.NewSlidingLog(maxInPeriod, period)
		if err != nil {
			return nil, invalidConfigError("%v", err)
		}
		opts.Admitter = sl
	}
	if opts.RetryPolicy == nil {
		opts.RetryPolicy = retry.NewConstantBackoffPolicy(period, 0)
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetricsCollector
	}

	id := xid.New()
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	logger = logger.With(log.String("dispatcher_id", id.String()))

	d := &Dispatcher[T]{
		id:              id,
		logger:          logger,
		admitter:        opts.Admitter,
		period:          period,
		backlogCap:      backlog,
		retryPolicy:     opts.RetryPolicy,
		metrics:         opts.MetricsCollector,
		evictionHandler: opts.EvictionHandler,
		scheduler:       scheduler.NewWithOpts(scheduler.Opts{Logger: logger}),
	}
	d.delivery = newDelivery[T](downstream, logger, opts.MetricsCollector, opts.ErrorsBufferSize, opts.ErrorHandler)

	var err error
	d.backlog, err = ringqueue.NewWithOpts[T](backlog, ringqueue.Opts[T]{
		MetricsCollector: opts.BacklogMetricsCollector,
		EvictionHandler:  d.onEvict,
	})
	if err != nil {
		d.scheduler.Shutdown()
		return nil, invalidConfigError("%v", err)
	}
	return d, nil
}

func validateParams(maxInPeriod int, period time.Duration, backlog int) error {
	if maxInPeriod < 0 {
		return invalidConfigError("max admissions in period should not be negative, got %d", maxInPeriod)
	}
	if period < 0 {
		return invalidConfigError("period should not be negative, got %s", period)
	}
	if backlog < 0 {
		return invalidConfigError("backlog should not be negative, got %d", backlog)
	}
	if maxInPeriod == 0 && backlog > 0 {
		return invalidConfigError("backlog requires positive max admissions in period, buffered items would never be delivered")
	}
	return nil
}

// ID returns the unique identifier of the dispatcher. It's also added to every log entry as "dispatcher_id".
func (d *Dispatcher[T]) ID() string {
	return d.id.String()
}

// Accept passes the item to the downstream if it's admitted, otherwise buffers it for a later delivery.
//
// If the item is admitted while the backlog is not empty, the backlog head is delivered instead
// and the item is appended to the backlog, so the order of arrival is kept.
// If the item is not admitted and the backlog is disabled (zero capacity), the item is dropped.
// After Close every item is dropped.
func (d *Dispatcher[T]) Accept(item T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.delivery.counters.accepted.Inc()

	if d.closed {
		d.drop(item, "dispatcher is closed, item is dropped")
		return
	}

	if d.admitter.Admit() {
		if d.backlog.IsEmpty() {
			d.setBackpressured(false)
			d.delivery.deliver(item, false)
			return
		}
		head := d.backlog.PollOffer(item)
		d.delivery.counters.buffered.Inc()
		d.metrics.IncItems(ItemOutcomeBuffered)
		d.delivery.deliver(head, true)
		return
	}

	d.setBackpressured(true)
	if d.backlogCap == 0 {
		d.drop(item, "item is not admitted and backlog is disabled, item is dropped")
		return
	}
	d.backlog.Offer(item)
	d.delivery.counters.buffered.Inc()
	d.metrics.IncItems(ItemOutcomeBuffered)
	d.scheduleRetry()
}

// retry runs on the scheduler goroutine and delivers the backlog head if it's admitted.
// Otherwise the head stays in place and one more retry is scheduled.
func (d *Dispatcher[T]) retry() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.backlog.IsEmpty() {
		return
	}
	if !d.admitter.Admit() {
		d.scheduleRetry()
		return
	}
	head, _ := d.backlog.Poll()
	d.delivery.deliver(head, true)
	if d.backlog.IsEmpty() {
		if d.backOff != nil {
			d.backOff.Reset()
		}
		d.setBackpressured(false)
	}
}

func (d *Dispatcher[T]) scheduleRetry() {
	delay := d.nextRetryDelay()
	if err := d.scheduler.ScheduleOnce(delay, d.retry); err != nil {
		d.logger.Warn("failed to schedule retry", log.Error(err))
	}
}

func (d *Dispatcher[T]) nextRetryDelay() time.Duration {
	if d.backOff == nil {
		d.backOff = d.retryPolicy.NewBackOff()
	}
	delay := d.backOff.NextBackOff()
	if delay == backoff.Stop {
		d.backOff.Reset()
		if delay = d.backOff.NextBackOff(); delay == backoff.Stop {
			delay = d.period
		}
	}
	if delay < minRetryDelay {
		delay = minRetryDelay
	}
	return delay
}

func (d *Dispatcher[T]) onEvict(item T) {
	d.delivery.counters.evicted.Inc()
	d.metrics.IncItems(ItemOutcomeEvicted)
	d.logger.Debug("backlog is full, the oldest buffered item is evicted", log.Int("backlog_cap", d.backlogCap))
	if d.evictionHandler != nil {
		d.evictionHandler(item)
	}
}

func (d *Dispatcher[T]) drop(_ T, msg string) {
	d.delivery.counters.dropped.Inc()
	d.metrics.IncItems(ItemOutcomeDropped)
	d.logger.Debug(msg)
}

func (d *Dispatcher[T]) setBackpressured(backpressured bool) {
	if d.backpressured == backpressured {
		return
	}
	d.backpressured = backpressured
	if backpressured {
		d.logger.Info("dispatcher is backpressured, admission is denied", log.Int("backlog_len", d.backlog.Len()))
		return
	}
	d.logger.Info("dispatcher is admitting again")
}

// Errors returns a channel with failures of the downstream.
// Sending to it never blocks: when the channel is full, the failure is only logged and counted
// (see Stats.ErrorsDiscarded). The channel is closed by Close.
func (d *Dispatcher[T]) Errors() <-chan *DownstreamError[T] {
	return d.delivery.errors
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher[T]) Stats() Stats {
	return d.delivery.counters.snapshot(d.backlog.Len())
}

// Close stops the retry scheduler and waits until its goroutine exits or ctx is done.
// Buffered items are abandoned (counted as dropped). Close may be called many times.
func (d *Dispatcher[T]) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		abandoned := d.backlog.Clear()
		close(d.delivery.errors)
		if abandoned > 0 {
			d.delivery.counters.dropped.Add(int64(abandoned))
			d.logger.Warn("dispatcher is closed, buffered items are abandoned", log.Int("abandoned", abandoned))
		}
	}
	d.mu.Unlock()

	d.scheduler.Shutdown()
	select {
	case <-d.scheduler.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
