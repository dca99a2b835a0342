/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ringqueue

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector represents a collector of metrics to analyze how the queue is used.
type MetricsCollector interface {
	// SetSize sets the current number of items in the queue.
	SetSize(int)

	// IncEvictions increments the total number of items overwritten because the queue was full.
	IncEvictions()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// See PrometheusMetrics.MustCurryWith method for more details.
	CurriedLabelNames []string
}

// PrometheusMetrics represents Prometheus metrics for the queue.
type PrometheusMetrics struct {
	ItemsAmount    *prometheus.GaugeVec
	EvictionsTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	itemsAmount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "ringqueue_items_amount",
			Help:        "Current number of items in the ring queue.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	evictionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "ringqueue_evictions_total",
			Help:        "Number of items overwritten because the ring queue was full.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	return &PrometheusMetrics{
		ItemsAmount:    itemsAmount,
		EvictionsTotal: evictionsTotal,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		ItemsAmount:    pm.ItemsAmount.MustCurryWith(labels),
		EvictionsTotal: pm.EvictionsTotal.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.ItemsAmount, pm.EvictionsTotal)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.ItemsAmount)
	prometheus.Unregister(pm.EvictionsTotal)
}

// SetSize sets the current number of items in the queue.
func (pm *PrometheusMetrics) SetSize(n int) {
	pm.ItemsAmount.With(nil).Set(float64(n))
}

// IncEvictions increments the total number of evicted items.
func (pm *PrometheusMetrics) IncEvictions() {
	pm.EvictionsTotal.With(nil).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) SetSize(int)   {}
func (disabledMetrics) IncEvictions() {}

var disabledMetricsCollector = disabledMetrics{}
