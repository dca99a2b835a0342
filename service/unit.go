/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs dispatchers and their helper workers as units with a common lifecycle:
// start them together, register their metrics, and stop them gracefully (with a timeout) or at once.
package service

// Unit is a component with its own lifecycle.
type Unit interface {
	// Start may return right after initialization or block for the unit's lifetime.
	// It writes to fatalErr only on failure and never uses the channel after returning.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
