// Package gravity provides the pausable periodic executor that pulls the
// active piece down.
package gravity

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stats describes how a scheduler has been ticking.
type Stats struct {
	Ticks        int64
	Interval     time.Duration
	Running      bool
	LastTick     time.Time
	LastDuration time.Duration
	MaxDuration  time.Duration
}

// Scheduler calls fn once per interval while running. fn runs on the
// scheduler's own goroutine and is never called concurrently with itself.
// Every method may be called from inside fn.
type Scheduler struct {
	fn     func()
	logger *zap.Logger

	mu       sync.Mutex
	interval time.Duration
	running  bool
	deadline time.Time
	stopped  bool
	stats    Stats

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New starts the scheduler goroutine in the paused state.
func New(interval time.Duration, fn func(), logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		fn:       fn,
		logger:   logger,
		interval: interval,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start resumes ticking. Time elapsed before a pause is discarded, so the
// next tick comes a full interval from now.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.running {
		return
	}
	s.running = true
	s.deadline = time.Now().Add(s.interval)
	s.notify()
}

func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.notify()
}

// Reset pushes the next tick a full interval into the future.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = time.Now().Add(s.interval)
	s.notify()
}

// SetInterval changes the period. The tick already scheduled keeps its
// deadline; the new interval applies from the one after.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
}

// Stop ends the scheduler and waits until its goroutine has exited, so no
// tick fires once Stop returns. Calling Stop from inside fn would deadlock.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		s.running = false
		close(s.quit)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Interval = s.interval
	st.Running = s.running
	return st
}

func (s *Scheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		s.mu.Lock()
		running, deadline := s.running, s.deadline
		s.mu.Unlock()

		var fire <-chan time.Time
		if running {
			timer.Reset(time.Until(deadline))
			fire = timer.C
		}

		select {
		case <-s.quit:
			return
		case <-s.wake:
			timer.Stop()
		case now := <-fire:
			if s.due(now) {
				s.tick(now)
			}
		}
	}
}

// due claims the tick if the scheduler is still running and the deadline
// has not moved since the timer was armed.
func (s *Scheduler) due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || now.Before(s.deadline) {
		return false
	}
	s.deadline = now.Add(s.interval)
	return true
}

func (s *Scheduler) tick(now time.Time) {
	start := time.Now()
	s.fn()
	elapsed := time.Since(start)

	s.mu.Lock()
	s.stats.Ticks++
	s.stats.LastTick = now
	s.stats.LastDuration = elapsed
	if elapsed > s.stats.MaxDuration {
		s.stats.MaxDuration = elapsed
	}
	interval := s.interval
	s.mu.Unlock()

	if elapsed > interval {
		s.logger.Warn("gravity tick overran interval",
			zap.Duration("elapsed", elapsed),
			zap.Duration("interval", interval),
		)
	}
}
