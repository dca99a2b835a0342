/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket implements the token bucket algorithm: tokens are refilled evenly
// (one per rate.Duration/rate.Count) and every admission takes one.
type TokenBucket struct {
	limiter *rate.Limiter
}

var _ Admitter = (*TokenBucket)(nil)

// NewTokenBucket creates a new token bucket admitter.
// Zero burst means that the bucket size equals rate.Count.
func NewTokenBucket(r Rate, burst int) (*TokenBucket, error) {
	if r.Count <= 0 || r.Duration <= 0 {
		return nil, fmt.Errorf("rate should be positive for token bucket, got %d per %s", r.Count, r.Duration)
	}
	if burst == 0 {
		burst = r.Count
	}
	return &TokenBucket{rate.NewLimiter(rate.Every(r.Duration/time.Duration(r.Count)), burst)}, nil
}

// Admit reports whether one more call is allowed right now.
func (tb *TokenBucket) Admit() bool {
	return tb.limiter.Allow()
}
