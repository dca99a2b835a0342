/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry provides backoff policies that define how long to wait before the next attempt.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy defines backoff strategy.
// Every call of NewBackOff must return a fresh BackOff in its initial state.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// The PolicyFunc type is an adapter to allow the use of ordinary functions as retry.Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements retry.Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ExponentialBackoffPolicy means repeat up to max times with exponentially growing delays (1.5 multiplier).
type ExponentialBackoffPolicy struct {
	initialInterval     time.Duration
	maxInterval         time.Duration
	maxAttempts         int
	randomizationFactor float64
}

// NewExponentialBackoffPolicy returns an exponential backoff policy with given initial interval and max retry attempt count.
// Zero maxRetryAttempts means that the attempts are unlimited.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetryAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{
		initialInterval:     initialInterval,
		maxInterval:         backoff.DefaultMaxInterval,
		maxAttempts:         maxRetryAttempts,
		randomizationFactor: backoff.DefaultRandomizationFactor,
	}
}

// WithMaxInterval returns a copy of the policy in which delays never grow beyond maxInterval.
func (p ExponentialBackoffPolicy) WithMaxInterval(maxInterval time.Duration) ExponentialBackoffPolicy {
	p.maxInterval = maxInterval
	return p
}

// WithoutJitter returns a copy of the policy that produces exact (non-randomized) delays.
func (p ExponentialBackoffPolicy) WithoutJitter() ExponentialBackoffPolicy {
	p.randomizationFactor = 0
	return p
}

// NewBackOff implements retry.Policy.
// The returned BackOff never gives up because of the elapsed time, only max attempts may stop it.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	eb.RandomizationFactor = p.randomizationFactor
	eb.MaxElapsedTime = 0
	if p.maxInterval > 0 {
		eb.MaxInterval = p.maxInterval
	}
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	var bf backoff.BackOff = eb
	if p.maxAttempts > 0 {
		bf = backoff.WithMaxRetries(eb, uint64(p.maxAttempts))
	}
	bf.Reset()
	return bf
}

// ConstantBackoffPolicy means repeat up to max times with constant interval delays.
type ConstantBackoffPolicy struct {
	interval    time.Duration
	maxAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy with given interval and max retry attempt count.
// Zero maxRetryAttempts means that the attempts are unlimited.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval, maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	var bf backoff.BackOff = backoff.NewConstantBackOff(p.interval)
	if p.maxAttempts > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(p.maxAttempts))
	}
	bf.Reset()
	return bf
}
