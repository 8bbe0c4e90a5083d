// Package sched provides cancellable one-shot timers. Components never call
// time.AfterFunc directly: they receive a Scheduler so that the coordinator
// can serialize timer callbacks onto its event loop and tests can drive time
// by hand.
package sched

import (
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It returns false if the callback already
	// ran or the timer was already stopped.
	Stop() bool
}

// Scheduler creates timers and reports the current time.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Now() time.Time
}

// Real is a Scheduler backed by the runtime timers. Callbacks run on their
// own goroutine.
type Real struct{}

func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

func (Real) Now() time.Time {
	return time.Now()
}

// Serialized wraps base so that every callback is handed to post instead of
// running on the timer goroutine. post is expected to enqueue the closure on
// a single event loop. A timer stopped from that loop never runs its callback,
// even when the underlying timer already fired and the closure is queued.
func Serialized(base Scheduler, post func(func())) Scheduler {
	return &serialized{base: base, post: post}
}

type serialized struct {
	base Scheduler
	post func(func())
}

type serializedTimer struct {
	mu      sync.Mutex
	stopped bool
	fired   bool
	inner   Timer
}

func (s *serialized) AfterFunc(d time.Duration, fn func()) Timer {
	t := &serializedTimer{}
	t.inner = s.base.AfterFunc(d, func() {
		s.post(func() {
			t.mu.Lock()
			if t.stopped || t.fired {
				t.mu.Unlock()
				return
			}
			t.fired = true
			t.mu.Unlock()
			fn()
		})
	})
	return t
}

func (s *serialized) Now() time.Time {
	return s.base.Now()
}

func (t *serializedTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	if t.inner != nil {
		t.inner.Stop()
	}
	return true
}
