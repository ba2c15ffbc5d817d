// Package scheduler implements the cooperative, single-worker task system of
// spec.md §4.3: single-shot, delayed, and periodic tasks with an optional
// name, a handle exposing IsShutdown/SetPeriod, and a scheduler-wide
// shutdown that cancels everything and drains. It is grounded on
// optionx_cpp's utils::TaskManager (examples/task_manager_example.cpp):
// add_delayed_task/add_periodic_task/add_periodic_on_date_task, a process()
// loop driven either by a caller or by an internal worker goroutine, and a
// has_active_tasks()-style drain before shutdown.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

type entry struct {
	handle   *Handle
	callback Callback
}

// Clock abstracts wall-clock time so tests can drive the scheduler
// deterministically without real sleeps.
type Clock func() int64

func systemClock() int64 { return time.Now().UnixMilli() }

// Scheduler is the cooperative task system. The zero value is not usable;
// use New.
type Scheduler struct {
	mu       sync.Mutex
	byName   map[string]*entry
	unnamed  []*entry
	shutdown bool
	clock    Clock

	workerStop chan struct{}
	workerDone chan struct{}
}

// New creates an empty Scheduler using the real wall clock.
func New() *Scheduler {
	return &Scheduler{
		byName: make(map[string]*entry),
		clock:  systemClock,
	}
}

// NewWithClock creates a Scheduler using a caller-supplied clock, for
// deterministic tests.
func NewWithClock(clock Clock) *Scheduler {
	s := New()
	s.clock = clock
	return s
}

// AddSingleShot runs callback once, as soon as Process observes it.
func (s *Scheduler) AddSingleShot(name string, callback Callback) *Handle {
	return s.add(name, KindSingleShot, 0, 0, callback)
}

// AddDelayed runs callback once, after delayMS has elapsed.
func (s *Scheduler) AddDelayed(name string, delayMS int64, callback Callback) *Handle {
	return s.add(name, KindDelayed, delayMS, 0, callback)
}

// AddPeriodic runs callback repeatedly every periodMS, starting after the
// first period elapses.
func (s *Scheduler) AddPeriodic(name string, periodMS int64, callback Callback) *Handle {
	return s.add(name, KindPeriodic, periodMS, periodMS, callback)
}

func (s *Scheduler) add(name string, kind Kind, delayMS, periodMS int64, callback Callback) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := &Handle{name: name, kind: kind, periodMS: periodMS, nextRunMS: s.clock() + delayMS}
	e := &entry{handle: h, callback: callback}

	if s.shutdown {
		h.Shutdown()
		return h
	}

	if name != "" {
		if prior, ok := s.byName[name]; ok {
			// Reference behavior is "replace" (spec.md §4.3).
			prior.handle.Shutdown()
		}
		s.byName[name] = e
		return h
	}

	s.unnamed = append(s.unnamed, e)
	return h
}

// HasActiveTasks reports whether any task is still eligible to run.
func (s *Scheduler) HasActiveTasks() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.byName {
		if !e.handle.IsShutdown() {
			return true
		}
	}
	for _, e := range s.unnamed {
		if !e.handle.IsShutdown() {
			return true
		}
	}
	return false
}

// Process runs every due, non-cancelled task exactly once. Single-shot and
// delayed tasks are removed after running; periodic tasks are rescheduled
// using their (possibly just-adjusted) period. Cancelled tasks are pruned.
// Process is safe to call from a scheduler-owned worker goroutine (the
// default) or directly from the caller's thread (spec.md §4.3, "Operating
// modes"); the core is agnostic to which.
func (s *Scheduler) Process() {
	now := s.clock()

	s.mu.Lock()
	due := make([]*entry, 0)

	runAndCollect := func(entries []*entry) []*entry {
		kept := entries[:0]
		for _, e := range entries {
			if e.handle.IsShutdown() {
				continue
			}
			if now >= e.handle.nextRunMS {
				due = append(due, e)
				if e.handle.kind == KindPeriodic {
					e.handle.nextRunMS = now + atomic.LoadInt64(&e.handle.periodMS)
					kept = append(kept, e)
				}
				// single-shot/delayed: dropped, not kept
				continue
			}
			kept = append(kept, e)
		}
		return kept
	}

	s.unnamed = runAndCollect(s.unnamed)
	for name, e := range s.byName {
		if e.handle.IsShutdown() {
			delete(s.byName, name)
			continue
		}
		if now >= e.handle.nextRunMS {
			due = append(due, e)
			if e.handle.kind == KindPeriodic {
				e.handle.nextRunMS = now + atomic.LoadInt64(&e.handle.periodMS)
			} else {
				delete(s.byName, name)
			}
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		e.callback(e.handle)
		if e.handle.kind == KindPeriodic {
			// Reschedule with the period as it stands after the callback, so a
			// SetPeriod made inside the callback applies to the very next run.
			s.mu.Lock()
			e.handle.nextRunMS = now + atomic.LoadInt64(&e.handle.periodMS)
			s.mu.Unlock()
		}
	}
}

// Run starts a scheduler-owned worker goroutine that calls Process every
// tickMS until Shutdown is called. This is operating mode (a) of spec.md
// §4.3; mode (b) is simply calling Process directly and never calling Run.
func (s *Scheduler) Run(tickMS int64) {
	s.mu.Lock()
	if s.workerStop != nil {
		s.mu.Unlock()
		return
	}
	s.workerStop = make(chan struct{})
	s.workerDone = make(chan struct{})
	stop := s.workerStop
	done := s.workerDone
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Duration(tickMS) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Process()
			}
		}
	}()
}

// Shutdown marks every task cancelled and stops the worker goroutine, if
// running. Subsequent Process calls are no-ops. A task whose callback is
// executing when Shutdown is called observes IsShutdown() == true and must
// return promptly (spec.md §4.3).
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	for _, e := range s.byName {
		e.handle.Shutdown()
	}
	for _, e := range s.unnamed {
		e.handle.Shutdown()
	}
	s.byName = make(map[string]*entry)
	s.unnamed = nil
	stop := s.workerStop
	done := s.workerDone
	s.workerStop = nil
	s.workerDone = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}
