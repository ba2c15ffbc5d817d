package scheduler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionx/optionx/internal/scheduler"
)

type fakeClock struct{ nowMS int64 }

func (c *fakeClock) now() int64   { return c.nowMS }
func (c *fakeClock) advance(d int64) { c.nowMS += d }

func TestDelayedTaskRunsOnceAfterDelay(t *testing.T) {
	clock := &fakeClock{}
	s := scheduler.NewWithClock(clock.now)
	calls := 0
	s.AddDelayed("", 100, func(*scheduler.Handle) { calls++ })

	s.Process()
	assert.Equal(t, 0, calls, "must not run before its delay elapses")

	clock.advance(100)
	s.Process()
	assert.Equal(t, 1, calls)

	s.Process()
	assert.Equal(t, 1, calls, "delayed tasks run exactly once")
}

func TestPeriodicTaskRepeatsAndCanBeShutdownFromInside(t *testing.T) {
	clock := &fakeClock{}
	s := scheduler.NewWithClock(clock.now)
	runs := 0
	s.AddPeriodic("", 50, func(h *scheduler.Handle) {
		runs++
		if runs == 3 {
			h.Shutdown()
		}
	})

	for i := 0; i < 5; i++ {
		clock.advance(50)
		s.Process()
	}

	assert.Equal(t, 3, runs, "task must stop re-running once shut down")
}

func TestSetPeriodChangesFutureCadence(t *testing.T) {
	clock := &fakeClock{}
	s := scheduler.NewWithClock(clock.now)
	runs := 0
	s.AddPeriodic("tick", 100, func(h *scheduler.Handle) {
		runs++
		if runs == 1 {
			h.SetPeriod(10)
		}
	})

	clock.advance(100)
	s.Process()
	require.Equal(t, 1, runs)

	clock.advance(10)
	s.Process()
	assert.Equal(t, 2, runs, "the shortened period must take effect for the next run")
}

func TestNamedTaskReplacesPrior(t *testing.T) {
	clock := &fakeClock{}
	s := scheduler.NewWithClock(clock.now)
	firstRan := false
	secondRan := false

	s.AddDelayed("refresh", 10, func(*scheduler.Handle) { firstRan = true })
	s.AddDelayed("refresh", 10, func(*scheduler.Handle) { secondRan = true })

	clock.advance(10)
	s.Process()

	assert.False(t, firstRan, "replaced task must not run")
	assert.True(t, secondRan)
}

func TestShutdownCancelsAllTasksAndFutureProcessIsNoop(t *testing.T) {
	clock := &fakeClock{}
	s := scheduler.NewWithClock(clock.now)
	calls := 0
	s.AddDelayed("", 0, func(*scheduler.Handle) { calls++ })

	s.Shutdown()
	s.Process()

	assert.Equal(t, 0, calls)
	assert.False(t, s.HasActiveTasks())
}

func TestHasActiveTasksReflectsCancellation(t *testing.T) {
	clock := &fakeClock{}
	s := scheduler.NewWithClock(clock.now)
	h := s.AddDelayed("", 1000, func(*scheduler.Handle) {})

	assert.True(t, s.HasActiveTasks())
	h.Shutdown()
	assert.False(t, s.HasActiveTasks())
}
