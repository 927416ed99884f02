package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tesso57/feedwatch/internal/logger"
)

// SchedulerState is Idle between ticks and Polling during one.
type SchedulerState int32

const (
	// StateIdle waits for the next tick.
	StateIdle SchedulerState = iota
	// StatePolling is running a tick.
	StatePolling
)

func (s SchedulerState) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "idle"
}

// Poller runs one tick.
type Poller interface {
	PollAll(ctx context.Context) PollReport
}

// Scheduler fires Poller ticks on a fixed interval. Ticks run on a single
// goroutine, so a tick never starts while the previous one is running;
// firings missed during a long tick are dropped.
type Scheduler struct {
	poller Poller

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	reset    chan time.Duration
	done     chan struct{}
	started  bool

	state atomic.Int32
}

// NewScheduler constructs a Scheduler.
func NewScheduler(poller Poller, interval time.Duration) *Scheduler {
	return &Scheduler{poller: poller, interval: interval}
}

// Start begins ticking until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	if s.interval <= 0 {
		return errors.New("poll interval must be > 0")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.reset = make(chan time.Duration, 1)
	s.done = make(chan struct{})
	s.started = true

	logger.Infof("[scheduler] started, polling every %s", s.interval)
	go s.loop(ctx, s.interval, s.reset, s.done)
	return nil
}

// Stop cancels the loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()

	cancel()
	<-done
	logger.Infof("[scheduler] stopped")
}

// SetInterval changes the tick interval; a running loop restarts its timer.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return errors.New("poll interval must be > 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	if s.started {
		select {
		case <-s.reset:
		default:
		}
		s.reset <- d
	}
	return nil
}

// Interval returns the configured tick interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// State reports whether a tick is running.
func (s *Scheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, reset <-chan time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-reset:
			ticker.Reset(d)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.state.Store(int32(StatePolling))
	defer s.state.Store(int32(StateIdle))

	report := s.poller.PollAll(ctx)
	logger.Infof("[scheduler] tick %s: %d checked, %d delivered, %d failed",
		report.TickID, report.Checked, report.Delivered, report.Failed)
}
