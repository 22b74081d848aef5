package gravity

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newCounting(t *testing.T, interval time.Duration) (*Scheduler, *atomic.Int64) {
	t.Helper()
	var n atomic.Int64
	s := New(interval, func() { n.Add(1) }, zaptest.NewLogger(t))
	t.Cleanup(s.Stop)
	return s, &n
}

func TestScheduler_PausedUntilStarted(t *testing.T) {
	s, n := newCounting(t, 5*time.Millisecond)

	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, n.Load())
	assert.False(t, s.Stats().Running)
}

func TestScheduler_TicksWhileRunning(t *testing.T) {
	s, n := newCounting(t, 5*time.Millisecond)

	s.Start()
	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)

	st := s.Stats()
	assert.True(t, st.Running)
	assert.GreaterOrEqual(t, st.Ticks, int64(3))
	assert.Equal(t, 5*time.Millisecond, st.Interval)
}

func TestScheduler_PauseStopsTicks(t *testing.T) {
	s, n := newCounting(t, 5*time.Millisecond)

	s.Start()
	require.Eventually(t, func() bool { return n.Load() >= 1 }, time.Second, time.Millisecond)
	s.Pause()

	// A tick already claimed before Pause may still finish.
	time.Sleep(10 * time.Millisecond)
	settled := n.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, settled, n.Load())

	s.Start()
	assert.Eventually(t, func() bool { return n.Load() > settled }, time.Second, time.Millisecond)
}

func TestScheduler_StartDiscardsElapsedTime(t *testing.T) {
	s, n := newCounting(t, 60*time.Millisecond)

	s.Start()
	time.Sleep(40 * time.Millisecond)
	s.Pause()
	s.Start()

	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, n.Load())
	assert.Eventually(t, func() bool { return n.Load() >= 1 }, time.Second, time.Millisecond)
}

func TestScheduler_ResetPostponesTick(t *testing.T) {
	s, n := newCounting(t, 60*time.Millisecond)

	s.Start()
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		s.Reset()
	}
	assert.Zero(t, n.Load())
	assert.Eventually(t, func() bool { return n.Load() >= 1 }, time.Second, time.Millisecond)
}

func TestScheduler_SetIntervalAppliesToNextPeriod(t *testing.T) {
	s, n := newCounting(t, 80*time.Millisecond)

	s.Start()
	s.SetInterval(5 * time.Millisecond)

	// The pending tick keeps its original deadline.
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, n.Load())
	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, s.Stats().Interval)
}

func TestScheduler_StopJoinsAndIsIdempotent(t *testing.T) {
	var n atomic.Int64
	s := New(time.Millisecond, func() {
		n.Add(1)
		time.Sleep(5 * time.Millisecond)
	}, zaptest.NewLogger(t))

	s.Start()
	require.Eventually(t, func() bool { return n.Load() >= 1 }, time.Second, time.Millisecond)

	s.Stop()
	after := n.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, n.Load())

	s.Stop()
	s.Start()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, n.Load())
	assert.False(t, s.Stats().Running)
}

func TestScheduler_MethodsCallableFromTick(t *testing.T) {
	var s *Scheduler
	var n atomic.Int64
	s = New(2*time.Millisecond, func() {
		if n.Add(1) == 3 {
			s.Pause()
		}
		s.Reset()
		s.SetInterval(2 * time.Millisecond)
	}, zaptest.NewLogger(t))
	t.Cleanup(s.Stop)

	s.Start()
	require.Eventually(t, func() bool { return n.Load() == 3 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(3), n.Load())
	assert.False(t, s.Stats().Running)
}
