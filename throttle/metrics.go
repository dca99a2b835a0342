/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ItemOutcome describes what happened to an accepted item.
type ItemOutcome string

// Item outcomes.
const (
	ItemOutcomeDispatched            ItemOutcome = "dispatched"
	ItemOutcomeDispatchedFromBacklog ItemOutcome = "dispatched_from_backlog"
	ItemOutcomeBuffered              ItemOutcome = "buffered"
	ItemOutcomeEvicted               ItemOutcome = "evicted"
	ItemOutcomeDropped               ItemOutcome = "dropped"
	ItemOutcomeFailed                ItemOutcome = "failed"
)

const metricsLabelOutcome = "outcome"

// MetricsCollector represents a collector of metrics for Dispatcher and Gated.
type MetricsCollector interface {
	// IncItems increments the number of items with the given outcome.
	IncItems(outcome ItemOutcome)

	// ObserveDownstreamDuration observes how long a single downstream call took.
	ObserveDownstreamDuration(d time.Duration)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// DurationBuckets is a list of buckets for the downstream call duration histogram.
	// By default, prometheus.DefBuckets is used.
	DurationBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// See PrometheusMetrics.MustCurryWith method for more details.
	CurriedLabelNames []string
}

// PrometheusMetrics represents Prometheus metrics for the throttled dispatching.
type PrometheusMetrics struct {
	ItemsTotal         *prometheus.CounterVec
	DownstreamDuration *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}

	itemsLabelNames := make([]string, 0, len(opts.CurriedLabelNames)+1)
	itemsLabelNames = append(itemsLabelNames, opts.CurriedLabelNames...)
	itemsLabelNames = append(itemsLabelNames, metricsLabelOutcome)

	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_items_total",
			Help:        "Number of accepted items by outcome.",
			ConstLabels: opts.ConstLabels,
		},
		itemsLabelNames,
	)

	downstreamDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_downstream_duration_seconds",
			Help:        "Duration of downstream calls.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	return &PrometheusMetrics{
		ItemsTotal:         itemsTotal,
		DownstreamDuration: downstreamDuration,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		ItemsTotal:         pm.ItemsTotal.MustCurryWith(labels),
		DownstreamDuration: pm.DownstreamDuration.MustCurryWith(labels).(*prometheus.HistogramVec),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.ItemsTotal, pm.DownstreamDuration)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.ItemsTotal)
	prometheus.Unregister(pm.DownstreamDuration)
}

// IncItems increments the number of items with the given outcome.
func (pm *PrometheusMetrics) IncItems(outcome ItemOutcome) {
	pm.ItemsTotal.With(prometheus.Labels{metricsLabelOutcome: string(outcome)}).Inc()
}

// ObserveDownstreamDuration observes how long a single downstream call took.
func (pm *PrometheusMetrics) ObserveDownstreamDuration(d time.Duration) {
	pm.DownstreamDuration.With(nil).Observe(d.Seconds())
}

type disabledMetrics struct{}

func (disabledMetrics) IncItems(ItemOutcome)                    {}
func (disabledMetrics) ObserveDownstreamDuration(time.Duration) {}

var disabledMetricsCollector = disabledMetrics{}
