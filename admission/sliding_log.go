/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-throttlekit/ringqueue"
)

// SlidingLogOpts represents options for SlidingLog.
type SlidingLogOpts struct {
	// Clock returns the current time. time.Now is used if it's nil.
	Clock func() time.Time
}

// SlidingLog is an exact sliding window admission controller.
// It stores timestamps of recent admissions and admits a call only if fewer than
// maxInPeriod of them are newer than now-period. Rejected calls are not recorded.
type SlidingLog struct {
	maxInPeriod int
	period      time.Duration
	clock       func() time.Time

	mu  sync.Mutex
	log *ringqueue.Queue[time.Time]
}

var _ Admitter = (*SlidingLog)(nil)

// NewSlidingLog creates a new SlidingLog.
func NewSlidingLog(maxInPeriod int, period time.Duration) (*SlidingLog, error) {
	return NewSlidingLogWithOpts(maxInPeriod, period, SlidingLogOpts{})
}

// NewSlidingLogWithOpts creates a new SlidingLog with the provided options.
func NewSlidingLogWithOpts(maxInPeriod int, period time.Duration, opts SlidingLogOpts) (*SlidingLog, error) {
	if maxInPeriod < 0 {
		return nil, fmt.Errorf("max admissions in period should not be negative, got %d", maxInPeriod)
	}
	if period < 0 {
		return nil, fmt.Errorf("period should not be negative, got %s", period)
	}
	log, err := ringqueue.New[time.Time](maxInPeriod)
	if err != nil {
		return nil, fmt.Errorf("new admission log: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &SlidingLog{maxInPeriod: maxInPeriod, period: period, clock: opts.Clock, log: log}, nil
}

// MaxInPeriod returns the maximum number of admissions within the period.
func (sl *SlidingLog) MaxInPeriod() int {
	return sl.maxInPeriod
}

// Period returns the window duration.
func (sl *SlidingLog) Period() time.Duration {
	return sl.period
}

// Admit checks if one more call is allowed right now and, if so, records it.
// An admission at exactly now-period is already outside of the window.
func (sl *SlidingLog) Admit() bool {
	if sl.maxInPeriod == 0 {
		return false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := sl.clock()
	sl.prune(now.Add(-sl.period))
	if sl.log.Len() >= sl.maxInPeriod {
		return false
	}
	sl.log.Offer(now)
	return true
}

// RetryAfter returns how long a caller should wait until the next admission may succeed.
// Zero means that Admit would succeed right now.
func (sl *SlidingLog) RetryAfter() time.Duration {
	if sl.maxInPeriod == 0 {
		return sl.period
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := sl.clock()
	sl.prune(now.Add(-sl.period))
	if sl.log.Len() < sl.maxInPeriod {
		return 0
	}
	oldest, _ := sl.log.Peek()
	if d := oldest.Add(sl.period).Sub(now); d > 0 {
		return d
	}
	return 0
}

// InWindow returns the number of admissions that are still inside the window.
func (sl *SlidingLog) InWindow() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.prune(sl.clock().Add(-sl.period))
	return sl.log.Len()
}

// prune removes all admissions that are not strictly after cutoff.
// Admissions are recorded in non-decreasing time order, so the oldest one is always at the head.
func (sl *SlidingLog) prune(cutoff time.Time) {
	for {
		oldest, ok := sl.log.Peek()
		if !ok || oldest.After(cutoff) {
			return
		}
		sl.log.Poll()
	}
}
