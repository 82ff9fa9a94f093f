package loop_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/loop"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/loop/looptest"
)

func TestPostRunsInOrder(t *testing.T) {
	l := loop.New(nil)
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	assert.Equal(t, 5, l.RunPending())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestNestedPostRunsInSameDrain(t *testing.T) {
	l := loop.New(nil)
	var got []string
	l.Post(func() {
		got = append(got, "outer")
		l.Post(func() { got = append(got, "inner") })
	})
	l.RunPending()
	assert.Equal(t, []string{"outer", "inner"}, got)
}

func TestRunStopsOnCancel(t *testing.T) {
	l := loop.New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	l.Post(func() { wg.Done() })
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	wg.Wait()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.True(t, l.Stopped())
	assert.False(t, l.Post(func() { t.Error("task ran after stop") }))
}

func TestAfterFuncFiresOnce(t *testing.T) {
	clock := looptest.NewClock(time.Unix(0, 0))
	l := loop.New(clock)

	calls := 0
	tm := l.AfterFunc(time.Second, func() { calls++ })
	assert.True(t, tm.Active())

	clock.Advance(999 * time.Millisecond)
	l.RunPending()
	assert.Equal(t, 0, calls)

	clock.Advance(time.Millisecond)
	l.RunPending()
	assert.Equal(t, 1, calls)
	assert.False(t, tm.Active())

	clock.Advance(10 * time.Second)
	l.RunPending()
	assert.Equal(t, 1, calls)
}

func TestStopAfterFireBeforeRun(t *testing.T) {
	clock := looptest.NewClock(time.Unix(0, 0))
	l := loop.New(clock)

	called := false
	tm := l.AfterFunc(time.Second, func() { called = true })
	clock.Advance(time.Second) // task is queued but not yet run
	tm.Stop()
	l.RunPending()
	assert.False(t, called)
}

func TestEvery(t *testing.T) {
	clock := looptest.NewClock(time.Unix(0, 0))
	l := loop.New(clock)

	ticks := 0
	tm := l.Every(time.Second, func() { ticks++ })
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		l.RunPending()
	}
	require.Equal(t, 3, ticks)

	tm.Stop()
	tm.Stop()
	clock.Advance(5 * time.Second)
	l.RunPending()
	assert.Equal(t, 3, ticks)
	assert.Empty(t, clock.Pending())
}

func TestNilTimerStop(t *testing.T) {
	var tm *loop.Timer
	assert.NotPanics(t, tm.Stop)
	assert.False(t, tm.Active())
}
