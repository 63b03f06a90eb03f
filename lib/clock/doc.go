// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of calling
// time.Now, time.After, or time.Sleep directly. In production, Real()
// provides the standard library behavior. In tests, Fake() provides a
// deterministic clock that advances only when Advance is called.
//
// The health supervisor's poll loop is the only place in realityctl
// that waits on the clock; the interface is deliberately limited to
// what that loop needs (Now, After, Sleep).
//
// # FakeClock Synchronization
//
// When a goroutine calls Sleep or After on a FakeClock, it registers a
// pending waiter. Use WaitForWaiters to block until a specific number
// of waiters are registered before calling Advance. This eliminates
// the race between waiter registration and time advancement that
// plagues tests using time.Sleep for synchronization.
package clock
