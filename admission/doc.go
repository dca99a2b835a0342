/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package admission decides whether one more operation may proceed within a rate window.
//
// SlidingLog is the exact algorithm: it keeps the timestamps of recent admissions and
// admits a call only if fewer than N of them are newer than now-P. The package also
// provides Admitter implementations backed by approximate algorithms
// (sliding window counters, GCRA leaky bucket and token bucket) for callers that
// prefer O(1) memory over exactness.
package admission
