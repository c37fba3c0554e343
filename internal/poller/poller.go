// Package poller runs a function on a fixed interval for a bounded time.
// It backs the refreshers that keep ERLC notices up to date.
package poller

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultInterval    = 15 * time.Second
	DefaultMaxDuration = 10 * time.Minute
)

// Clock is the time source. Real code uses System; tests use a FakeClock.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// System is the wall clock.
var System Clock = systemClock{}

type Options struct {
	Interval    time.Duration
	MaxDuration time.Duration
	Clock       Clock
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = DefaultMaxDuration
	}
	if o.Clock == nil {
		o.Clock = System
	}
	return o
}

// Run calls tick every Interval until MaxDuration has elapsed, tick returns
// an error, or ctx is done. Expiry returns nil; the other two return the
// error that stopped it.
func Run(ctx context.Context, opts Options, tick func(ctx context.Context) error) error {
	opts = opts.withDefaults()
	deadline := opts.Clock.Now().Add(opts.MaxDuration)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-opts.Clock.After(opts.Interval):
		}
		if opts.Clock.Now().After(deadline) {
			return nil
		}
		if err := tick(ctx); err != nil {
			return err
		}
	}
}

// FakeClock only moves when Advance is called.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	at time.Time
	ch chan time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, fakeWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward and fires every waiter that is due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
			continue
		}
		pending = append(pending, w)
	}
	c.waiters = pending
}

// Waiters is the number of pending After calls.
func (c *FakeClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
