// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// RealScheduler is the production Scheduler: idle tasks run on a
// freshly spawned goroutine after yielding once (approximating "after
// the current dispatch cycle drains"), and timed tasks ride
// time.AfterFunc. Completion is always delivered back into the
// engine's own handler methods, never by the scheduler mutating engine
// state directly — the engine guards its bookkeeping with its own
// mutex so the single-threaded cooperative contract of §5 holds even
// though Go, unlike a glib main loop, really does run these callbacks
// on separate goroutines.
type RealScheduler struct{}

// NewRealScheduler returns the production Scheduler.
func NewRealScheduler() *RealScheduler { return &RealScheduler{} }

func (RealScheduler) ScheduleIdle(fn func()) CancelFunc {
	var cancelled int32
	go func() {
		runtime.Gosched()
		if atomic.LoadInt32(&cancelled) == 0 {
			fn()
		}
	}()
	return func() { atomic.StoreInt32(&cancelled, 1) }
}

func (RealScheduler) ScheduleAfter(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// fakeTask is one entry queued on a FakeScheduler.
type fakeTask struct {
	fn        func()
	cancelled bool
	delay     time.Duration
}

// FakeScheduler is a deterministic, manually-driven Scheduler for
// tests: nothing runs until the test calls RunIdle or FireAfter.
type FakeScheduler struct {
	mu    sync.Mutex
	idle  []*fakeTask
	after []*fakeTask
}

// NewFakeScheduler returns an empty FakeScheduler.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{}
}

func (s *FakeScheduler) ScheduleIdle(fn func()) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTask{fn: fn}
	s.idle = append(s.idle, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.cancelled = true
	}
}

func (s *FakeScheduler) ScheduleAfter(d time.Duration, fn func()) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTask{fn: fn, delay: d}
	s.after = append(s.after, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.cancelled = true
	}
}

// RunIdle drains every pending, non-cancelled idle task in FIFO
// order, including ones scheduled by a task it is currently running —
// matching a real event loop that runs its idle queue to quiescence.
func (s *FakeScheduler) RunIdle() {
	for {
		s.mu.Lock()
		if len(s.idle) == 0 {
			s.mu.Unlock()
			return
		}
		t := s.idle[0]
		s.idle = s.idle[1:]
		s.mu.Unlock()
		if !t.cancelled {
			t.fn()
		}
	}
}

// PendingAfter returns the count of still-pending, non-cancelled timed
// tasks — used to assert "at most one shared retry timer" style
// invariants.
func (s *FakeScheduler) PendingAfter() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.after {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// FireAfter runs the i-th still-pending timed task immediately, as if
// its timer had elapsed.
func (s *FakeScheduler) FireAfter(i int) {
	s.mu.Lock()
	pending := make([]*fakeTask, 0, len(s.after))
	for _, t := range s.after {
		if !t.cancelled {
			pending = append(pending, t)
		}
	}
	if i < 0 || i >= len(pending) {
		s.mu.Unlock()
		return
	}
	t := pending[i]
	t.cancelled = true // a fired timer is no longer pending
	s.mu.Unlock()
	t.fn()
}
