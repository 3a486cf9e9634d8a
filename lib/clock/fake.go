// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called; every After, Sleep, and ticker
// deadline registers a pending waiter that fires when the clock moves
// past it.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.waitersChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. Use WaitForWaiters to
// block until goroutines under test have registered their timers, then
// Advance to fire them. This removes the race between timer
// registration and time advancement that plagues sleep-based tests.
type FakeClock struct {
	mu             sync.Mutex
	current        time.Time
	waiters        []*fakeWaiter
	waitersChanged *sync.Cond
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
	period   time.Duration // 0 for one-shot waiters
	stopped  bool
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that fires when the clock advances past the
// deadline. A non-positive duration fires immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.waiters = append(c.waiters, &fakeWaiter{
		deadline: c.current.Add(d),
		ch:       ch,
	})
	c.waitersChanged.Broadcast()
	return ch
}

// Sleep blocks until the clock advances past the deadline.
func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// NewTicker returns a Ticker that fires every time the clock advances
// past the next multiple of d.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		ch:       ch,
		period:   d,
	}
	c.waiters = append(c.waiters, waiter)
	c.waitersChanged.Broadcast()

	return &Ticker{
		C: ch,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			waiter.stopped = true
		},
	}
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline has passed, in deadline order. Periodic waiters are
// rescheduled; fired one-shot waiters are removed.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)

	for {
		fired := false
		remaining := c.waiters[:0]
		for _, waiter := range c.waiters {
			if waiter.stopped {
				continue
			}
			if !waiter.deadline.After(c.current) {
				// Non-blocking send: ticker consumers that fall
				// behind drop ticks, matching time.Ticker.
				select {
				case waiter.ch <- c.current:
				default:
				}
				fired = true
				if waiter.period > 0 {
					waiter.deadline = waiter.deadline.Add(waiter.period)
					remaining = append(remaining, waiter)
				}
				continue
			}
			remaining = append(remaining, waiter)
		}
		c.waiters = remaining
		if !fired {
			return
		}
	}
}

// WaitForWaiters blocks until at least n waiters (pending timers,
// sleeps, or tickers) are registered. Call this before Advance so the
// goroutine under test has reached its blocking point.
func (c *FakeClock) WaitForWaiters(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.waitersChanged.Wait()
	}
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, waiter := range c.waiters {
		if !waiter.stopped {
			count++
		}
	}
	return count
}
