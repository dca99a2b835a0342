/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"time"

	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/service"
)

// StatsProvider is implemented by Dispatcher and Gated.
type StatsProvider interface {
	Stats() Stats
}

// StatsReporter is a service.Worker that logs the counters accumulated since its previous run.
// Nothing is logged if nothing has happened.
type StatsReporter struct {
	provider StatsProvider
	logger   log.FieldLogger
	prev     Stats
}

// NewStatsReporter creates a new StatsReporter.
func NewStatsReporter(provider StatsProvider, logger log.FieldLogger) *StatsReporter {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &StatsReporter{provider: provider, logger: logger}
}

// Run implements service.Worker.
func (r *StatsReporter) Run(_ context.Context) error {
	cur := r.provider.Stats()
	prev := r.prev
	r.prev = cur
	if cur.Accepted == prev.Accepted && cur.Dispatched == prev.Dispatched && cur.BacklogLen == prev.BacklogLen {
		return nil
	}
	r.logger.Info("dispatching stats",
		log.Int64("accepted", cur.Accepted-prev.Accepted),
		log.Int64("dispatched", cur.Dispatched-prev.Dispatched),
		log.Int64("dispatched_from_backlog", cur.DispatchedFromBacklog-prev.DispatchedFromBacklog),
		log.Int64("buffered", cur.Buffered-prev.Buffered),
		log.Int64("evicted", cur.Evicted-prev.Evicted),
		log.Int64("dropped", cur.Dropped-prev.Dropped),
		log.Int64("failed", cur.Failed-prev.Failed),
		log.Int("backlog_len", cur.BacklogLen),
	)
	return nil
}

// UnitOpts represents options for NewUnit.
type UnitOpts struct {
	Logger log.FieldLogger

	// StatsInterval enables periodic stats logging (see StatsReporter) if it's positive.
	StatsInterval time.Duration

	// Metrics, if set, are registered when the unit's metrics are registered.
	// They should be the same metrics that are passed to the dispatcher as MetricsCollector.
	Metrics *PrometheusMetrics

	GracefulStopTimeout time.Duration
}

// Dispatching is implemented by Dispatcher and Gated.
type Dispatching interface {
	StatsProvider
	service.Closer
}

// NewUnit presents a dispatcher as service.Unit, so it can be run along with other application units.
// Stopping the unit closes the dispatcher.
func NewUnit(d Dispatching, opts UnitOpts) *service.CompositeUnit {
	var metricsRegisterer service.MetricsRegisterer
	if opts.Metrics != nil {
		metricsRegisterer = prometheusMetricsRegisterer{opts.Metrics}
	}
	units := []service.Unit{service.NewCloserUnitWithOpts(d, service.CloserUnitOpts{
		MetricsRegisterer:   metricsRegisterer,
		GracefulStopTimeout: opts.GracefulStopTimeout,
	})}
	if opts.StatsInterval > 0 {
		reporter := service.NewPeriodicWorkerWithOpts("throttle-stats-reporter", NewStatsReporter(d, opts.Logger),
			opts.StatsInterval, opts.Logger, service.PeriodicWorkerOpts{InitialDelay: opts.StatsInterval})
		units = append(units, service.NewWorkerUnitWithOpts(reporter, service.WorkerUnitOpts{
			GracefulStopTimeout: opts.GracefulStopTimeout,
		}))
	}
	return service.NewCompositeUnit(units...)
}

type prometheusMetricsRegisterer struct {
	metrics *PrometheusMetrics
}

func (r prometheusMetricsRegisterer) MustRegisterMetrics() {
	r.metrics.MustRegister()
}

func (r prometheusMetricsRegisterer) UnregisterMetrics() {
	r.metrics.Unregister()
}
