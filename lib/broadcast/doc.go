// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package broadcast provides Broadcaster, a typed in-process fan-out
// with a bounded history.
//
// Publish delivers synchronously to every current subscriber in
// subscription order. Deliveries from concurrent publishers are
// serialized, so each subscriber observes one total order that matches
// the order of events in History. A subscriber that panics is logged
// and skipped; the remaining subscribers still receive the event.
//
// The history is a ring of the most recent events (DefaultBacklog
// unless configured). Late joiners that want context call
// SubscribeWithHistory, which returns the retained events and registers
// the callback in one step so nothing is missed or seen twice.
//
// Subscriber callbacks must not Publish to the broadcaster that is
// calling them.
package broadcast
