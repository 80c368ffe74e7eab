package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler refreshes health rollups on a fixed interval and caches the last
// snapshot for cheap reads. It is owned by process lifecycle: started at
// init, stopped at shutdown.
//
// Thread Safety: all public methods are safe for concurrent use.
type Scheduler struct {
	// interval is the time between rollup refreshes.
	interval time.Duration

	// aggregator computes the rollups.
	aggregator *Aggregator

	// mu protects running and stopCh.
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	// snapMu protects the cached snapshot.
	snapMu sync.RWMutex
	last   *Snapshot

	logger *zap.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the refresh interval. Defaults to 5 minutes.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.interval = interval
	}
}

// NewScheduler creates a scheduler. It does not start automatically; call
// Start to begin refreshes.
func NewScheduler(aggregator *Aggregator, logger *zap.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if aggregator == nil {
		return nil, fmt.Errorf("aggregator cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		interval:   5 * time.Minute,
		aggregator: aggregator,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = 5 * time.Minute
	}
	return s, nil
}

// Start begins the background refresh loop. Calling Start on a running
// scheduler returns an error without starting a second goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	// Fresh stop channel for this run.
	s.stopCh = make(chan struct{})
	s.running = true

	s.logger.Info("health scheduler started", zap.Duration("interval", s.interval))

	go s.run()
	return nil
}

// Stop signals the refresh loop to exit. Stopping a stopped scheduler is a
// no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)

	s.logger.Info("health scheduler stopped")
	return nil
}

// Last returns the most recent cached snapshot, or nil before the first
// refresh completes.
func (s *Scheduler) Last() *Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.last
}

func (s *Scheduler) run() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("health scheduler goroutine panicked, recovering",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	// Immediate refresh so reads have a snapshot before the first tick.
	s.safeRefresh()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRefresh()
		case <-s.stopCh:
			return
		}
	}
}

// safeRefresh wraps refresh with panic recovery so one bad run does not
// crash the scheduler.
func (s *Scheduler) safeRefresh() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("health refresh panicked, continuing scheduler",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	s.refresh()
}

// refresh recomputes the rollups. Errors are logged but do not stop the
// scheduler; the previous snapshot stays cached.
func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := s.aggregator.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("health refresh failed", zap.Error(err))
		return
	}

	s.snapMu.Lock()
	prev := s.last
	s.last = snap
	s.snapMu.Unlock()

	if prev != nil && prev.Tier != snap.Tier {
		s.logger.Warn("health tier changed",
			zap.String("from", string(prev.Tier)),
			zap.String("to", string(snap.Tier)),
		)
	}
	s.logger.Debug("health snapshot refreshed", zap.String("tier", string(snap.Tier)))
}
