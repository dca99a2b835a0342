/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ringqueue provides a fixed-capacity, thread-safe FIFO queue that overwrites
// the oldest unread item when a new one is offered into a full queue.
//
// No operation ever blocks waiting for space or data: Offer always succeeds and Poll
// reports emptiness instead of waiting. Deciding what to do under backpressure is left to the caller.
package ringqueue
