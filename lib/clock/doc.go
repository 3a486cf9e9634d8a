// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Droidvet's retry, pool-cooldown, and provisioning-poll code all wait
// on timers. In production those waits are real; in tests they must be
// deterministic, or every retry test costs seconds of wall time and
// still races. Components therefore hold a clock.Clock field wired to
// Real() in production and Fake() in tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	gateway := provider.NewGateway(cfg, provider.WithClock(c))
//	// ... start the call under test in a goroutine ...
//	c.WaitForWaiters(1)        // backoff timer registered
//	c.Advance(time.Second)     // fire it
package clock
