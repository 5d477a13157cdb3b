package scheduler

import (
	"context"
	"sync"
	"time"

	"riq-studio-api/core/logger"
)

// SyncRunner is the slice of the availability service the scheduler drives.
type SyncRunner interface {
	RunCalendarSync(ctx context.Context) (int, error)
	PruneOldFacts(ctx context.Context) (int64, error)
}

// Scheduler runs calendar syncs on a fixed cadence. Lifecycle is
// Stopped -> Running -> Stopped: Start while running is a no-op, Stop is
// cooperative (observed during the sleep, never interrupting an in-flight
// run) and a failed cycle sleeps the short cooldown instead of killing the
// loop.
type Scheduler struct {
	runner   SyncRunner
	interval time.Duration
	cooldown time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(runner SyncRunner, interval, cooldown time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		cooldown: cooldown,
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Info("SyncScheduler:Start:AlreadyRunning")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	logger.Info("SyncScheduler:Start", "interval", s.interval, "cooldown", s.cooldown)
	go s.loop(stopCh, doneCh)
}

// Stop signals the loop and waits for it to exit. An in-flight sync
// finishes; no further cycles start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
	logger.Info("SyncScheduler:Stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		delay := s.interval

		updated, err := s.runner.RunCalendarSync(context.Background())
		if err != nil {
			logger.Error("SyncScheduler:CycleFailed", "error", err)
			delay = s.cooldown
		} else {
			logger.Info("SyncScheduler:CycleComplete", "records_updated", updated)
			if _, pruneErr := s.runner.PruneOldFacts(context.Background()); pruneErr != nil {
				logger.Warn("SyncScheduler:PruneFailed", "error", pruneErr)
			}
		}

		select {
		case <-stopCh:
			return
		case <-time.After(delay):
		}
	}
}
