package scheduler

import "sync/atomic"

// Kind distinguishes the three task shapes spec.md §4.3 describes.
type Kind int

const (
	KindSingleShot Kind = iota
	KindDelayed
	KindPeriodic
)

// Callback receives a handle back to its own task, so it can check
// IsShutdown or adjust its own period without capturing the scheduler.
type Callback func(handle *Handle)

// Handle is what a running task's callback is given. It is also what the
// Scheduler's AddSingleShot/AddDelayed/AddPeriodic methods return, so callers
// can shut a task down or re-pace it from the outside.
type Handle struct {
	name      string
	kind      Kind
	periodMS  int64 // atomic
	shutdown  int32 // atomic bool
	nextRunMS int64
}

// IsShutdown reports whether the task has been cancelled. A callback
// currently executing must observe this promptly and return without
// scheduling further work (spec.md §4.3, "Shutdown").
func (h *Handle) IsShutdown() bool {
	return atomic.LoadInt32(&h.shutdown) != 0
}

// SetPeriod adjusts a periodic task's period at runtime. It has no effect on
// single-shot or delayed tasks.
func (h *Handle) SetPeriod(periodMS int64) {
	atomic.StoreInt64(&h.periodMS, periodMS)
}

// Shutdown cancels the task: it will not run again, and its observable delay
// becomes 0 (spec.md §4.3).
func (h *Handle) Shutdown() {
	atomic.StoreInt32(&h.shutdown, 1)
}

// Name returns the task's name, or "" if it was submitted unnamed.
func (h *Handle) Name() string { return h.name }
