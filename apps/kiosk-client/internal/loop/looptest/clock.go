// Package looptest provides a manually advanced clock for loop-driven tests.
package looptest

import (
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/loop"
)

// Clock is a fake loop.Clock. Callbacks fire synchronously inside Advance.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*timer
}

type timer struct {
	clock *Clock
	at    time.Time
	seq   int
	f     func()
	dead  bool
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.dead
	t.dead = true
	return was
}

// NewClock returns a clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

var _ loop.Clock = (*Clock)(nil)

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, f func()) loop.Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d, firing due callbacks in deadline order.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDue(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.dead = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

// Pending returns the delays, relative to now, of callbacks not yet fired.
func (c *Clock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.live() {
		out = append(out, t.at.Sub(c.now))
	}
	return out
}

func (c *Clock) nextDue(target time.Time) *timer {
	live := c.live()
	c.timers = live
	if len(live) == 0 || live[0].at.After(target) {
		return nil
	}
	return live[0]
}

func (c *Clock) live() []*timer {
	var live []*timer
	for _, t := range c.timers {
		if !t.dead {
			live = append(live, t)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].seq < live[j].seq
		}
		return live[i].at.Before(live[j].at)
	})
	return live
}
