/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package throttle provides Dispatcher, an admission-controlled and order-preserving front for a downstream consumer.
//
// Dispatcher delivers at most N items per rolling window of length P to the downstream.
// Items that are not admitted wait in a bounded backlog (the oldest ones are evicted on overflow)
// and are delivered later by the dispatcher's own retry scheduler.
// Items reach the downstream in the order in which they were accepted (minus evicted ones).
//
// Gated is a simpler companion: it lets one item through and then keeps a gate closed for a fixed delay,
// delivering one queued item each time the gate reopens.
package throttle
