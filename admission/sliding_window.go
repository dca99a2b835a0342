/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"fmt"

	"github.com/RussellLuo/slidingwindow"
)

// SlidingWindow implements the approximated sliding window algorithm.
// It keeps counters for the current and the previous fixed windows and weights the previous one
// by the part of it that still overlaps the sliding window, so memory usage doesn't depend on the rate.
type SlidingWindow struct {
	limiter *slidingwindow.Limiter
}

var _ Admitter = (*SlidingWindow)(nil)

// NewSlidingWindow creates a new SlidingWindow admitter.
func NewSlidingWindow(rate Rate) (*SlidingWindow, error) {
	if rate.Duration <= 0 {
		return nil, fmt.Errorf("period should be positive for sliding window, got %s", rate.Duration)
	}
	lim, _ := slidingwindow.NewLimiter(
		rate.Duration, int64(rate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
	return &SlidingWindow{lim}, nil
}

// Admit reports whether one more call is allowed right now.
func (sw *SlidingWindow) Admit() bool {
	return sw.limiter.Allow()
}
