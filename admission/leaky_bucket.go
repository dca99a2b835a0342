/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

const leakyBucketKey = "admission"

// LeakyBucket implements GCRA (Generic Cell Rate Algorithm). It's a leaky bucket variant algorithm.
// More details and good explanation of this alg is provided here: https://brandur.org/rate-limiting#gcra.
type LeakyBucket struct {
	limiter *throttled.GCRARateLimiterCtx
}

var _ Admitter = (*LeakyBucket)(nil)

// NewLeakyBucket creates a new leaky bucket admitter.
// Zero burst means that rate.Count admissions may happen at once.
func NewLeakyBucket(rate Rate, burst int) (*LeakyBucket, error) {
	if rate.Count <= 0 || rate.Duration <= 0 {
		return nil, fmt.Errorf("rate should be positive for leaky bucket, got %d per %s", rate.Count, rate.Duration)
	}
	if burst == 0 {
		burst = rate.Count - 1 // GCRA's burst is a number of cells on top of the first one.
	}
	gcraStore, err := memstore.NewCtx(1)
	if err != nil {
		return nil, fmt.Errorf("new in-memory store: %w", err)
	}
	quota := throttled.RateQuota{
		MaxRate:  throttled.PerDuration(rate.Count, rate.Duration),
		MaxBurst: burst,
	}
	gcraLimiter, err := throttled.NewGCRARateLimiterCtx(gcraStore, quota)
	if err != nil {
		return nil, fmt.Errorf("new GCRA rate limiter: %w", err)
	}
	return &LeakyBucket{gcraLimiter}, nil
}

// Admit reports whether one more call is allowed right now.
// The in-memory store never fails, but if it did, the call is not admitted.
func (lb *LeakyBucket) Admit() bool {
	allow, _, err := lb.Allow(context.Background())
	return err == nil && allow
}

// Allow checks if the call should be allowed and estimates when to retry if it's not.
func (lb *LeakyBucket) Allow(ctx context.Context) (allow bool, retryAfter time.Duration, err error) {
	limited, res, err := lb.limiter.RateLimitCtx(ctx, leakyBucketKey, 1)
	if err != nil {
		return false, 0, err
	}
	return !limited, res.RetryAfter, nil
}
