package carrier

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts deferred scheduling so simulated call progression can be
// driven by a test clock instead of wall time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled task.
type Timer interface {
	Stop() bool
}

// RealClock schedules on wall time.
type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct {
	t *time.Timer
}

func (t realTimer) Stop() bool {
	return t.t.Stop()
}

// ManualClock only moves when Advance is called. Timers fire synchronously
// inside Advance, in schedule order, which keeps tests deterministic.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{fireAt: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and fires every due, unstopped timer. Callbacks
// run without the clock lock held so they may schedule follow-up timers.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.popDue()
		if t == nil {
			return
		}
		t.fn()
	}
}

// popDue removes and returns the earliest due timer. Stopped timers are
// pruned during the scan so they do not accumulate over the clock's lifetime.
func (c *ManualClock) popDue() *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.SliceStable(c.timers, func(i, j int) bool {
		return c.timers[i].fireAt.Before(c.timers[j].fireAt)
	})

	kept := c.timers[:0]
	var due *manualTimer
	for _, t := range c.timers {
		switch {
		case t.stopped():
			// dropped
		case due == nil && !t.fireAt.After(c.now):
			due = t
		default:
			kept = append(kept, t)
		}
	}
	c.timers = kept
	return due
}

type manualTimer struct {
	fireAt time.Time
	fn     func()
	mu     sync.Mutex
	done   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *manualTimer) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
