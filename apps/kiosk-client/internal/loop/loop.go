// Package loop runs the kiosk session's tasks one at a time on a single
// goroutine. All session state is owned by that goroutine; everything else
// (socket readers, device callbacks, timers) hands work over with Post.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Clock is the time source used for timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

// Stopper cancels a pending clock callback.
type Stopper interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Loop is a serial task executor.
type Loop struct {
	clock Clock

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped atomic.Bool
}

// New creates a loop. A nil clock means the wall clock.
func New(clock Clock) *Loop {
	if clock == nil {
		clock = realClock{}
	}
	return &Loop{
		clock: clock,
		wake:  make(chan struct{}, 1),
	}
}

// Clock returns the loop's time source.
func (l *Loop) Clock() Clock { return l.clock }

// Now is shorthand for l.Clock().Now().
func (l *Loop) Now() time.Time { return l.clock.Now() }

// Post queues f to run on the loop goroutine. It is safe to call from any
// goroutine. Tasks posted after the loop stopped are dropped and Post
// reports false.
func (l *Loop) Post(f func()) bool {
	if l.stopped.Load() {
		return false
	}
	l.mu.Lock()
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes queued tasks until ctx is done. After Run returns no further
// task is executed.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopped.Store(true)
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunPending runs every queued task, including tasks queued by those tasks,
// on the calling goroutine and returns how many ran. Tests use it to step
// the loop deterministically; it must not race with Run.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, task := range batch {
			if l.stopped.Load() {
				return n
			}
			task()
			n++
		}
	}
}

// Stopped reports whether the loop has shut down.
func (l *Loop) Stopped() bool { return l.stopped.Load() }

// Stop marks the loop as stopped without waiting for Run to return.
// Queued tasks are discarded.
func (l *Loop) Stop() {
	l.stopped.Store(true)
	l.mu.Lock()
	l.queue = nil
	l.mu.Unlock()
}

// Timer is a cancellation token for a scheduled task. Once Stop has been
// called on the loop goroutine the task never runs again, even if the clock
// already fired and the task is sitting in the queue.
type Timer struct {
	loop    *Loop
	stopped atomic.Bool

	mu      sync.Mutex
	pending Stopper
}

// AfterFunc runs f on the loop once, after d.
func (l *Loop) AfterFunc(d time.Duration, f func()) *Timer {
	t := &Timer{loop: l}
	t.schedule(d, func() {
		t.stopped.Store(true)
		f()
	})
	return t
}

// Every runs f on the loop every d until the timer is stopped. The next
// tick is scheduled after f returns.
func (l *Loop) Every(d time.Duration, f func()) *Timer {
	t := &Timer{loop: l}
	var tick func()
	tick = func() {
		f()
		if !t.stopped.Load() {
			t.schedule(d, tick)
		}
	}
	t.schedule(d, tick)
	return t
}

func (t *Timer) schedule(d time.Duration, f func()) {
	s := t.loop.clock.AfterFunc(d, func() {
		t.loop.Post(func() {
			if t.stopped.Load() {
				return
			}
			f()
		})
	})
	t.mu.Lock()
	t.pending = s
	t.mu.Unlock()
}

// Stop cancels the timer. It is safe to call more than once and on a nil
// timer.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	t.stopped.Store(true)
	t.mu.Lock()
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.mu.Unlock()
}

// Active reports whether the timer can still fire.
func (t *Timer) Active() bool {
	return t != nil && !t.stopped.Load()
}
