/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package scheduler provides a single-worker facility for running actions once after a delay.
//
// All actions run sequentially on one dedicated goroutine owned by the Scheduler.
// Actions with earlier deadlines never fire later than actions with later ones,
// and actions with equal deadlines fire in the order they were scheduled.
// Shutdown abandons everything that has not fired yet.
package scheduler
