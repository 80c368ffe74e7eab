package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HealthChecker reports reachability of a backing store. The interface exists
// for dependency injection and testability.
type HealthChecker interface {
	// IsHealthy returns true if the store is reachable.
	IsHealthy(ctx context.Context) bool
}

// PingChecker implements HealthChecker by pinging a Store.
type PingChecker struct {
	store   Store
	timeout time.Duration
}

// NewPingChecker creates a checker that pings the given store with a
// per-check timeout.
func NewPingChecker(store Store, timeout time.Duration) *PingChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PingChecker{store: store, timeout: timeout}
}

// IsHealthy pings the store within the configured timeout.
func (p *PingChecker) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.store.Ping(ctx) == nil
}

// MockHealthChecker for testing.
type MockHealthChecker struct {
	healthy atomic.Bool
}

// NewMockHealthChecker creates a mock checker that starts unhealthy.
func NewMockHealthChecker() *MockHealthChecker {
	return &MockHealthChecker{}
}

// IsHealthy returns the mock health status.
func (m *MockHealthChecker) IsHealthy(ctx context.Context) bool {
	return m.healthy.Load()
}

// SetHealthy sets the mock health status.
func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.healthy.Store(healthy)
}

// HealthMonitor periodically checks store connectivity and notifies
// registered callbacks when the status flips.
type HealthMonitor struct {
	checker       HealthChecker
	healthy       atomic.Bool
	lastCheck     atomic.Value // time.Time
	checkInterval time.Duration
	mu            sync.RWMutex
	callbacks     []func(bool)
	ctx           context.Context
	cancel        context.CancelFunc
	logger        *zap.Logger
}

// NewHealthMonitor creates a health monitor. The initial status comes from an
// immediate check.
func NewHealthMonitor(ctx context.Context, checker HealthChecker, checkInterval time.Duration, logger *zap.Logger) *HealthMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	hm := &HealthMonitor{
		checker:       checker,
		checkInterval: checkInterval,
		callbacks:     make([]func(bool), 0),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger,
	}

	hm.healthy.Store(checker.IsHealthy(ctx))
	hm.lastCheck.Store(time.Now())

	return hm
}

// Start begins periodic health checks.
func (hm *HealthMonitor) Start() {
	go hm.runPeriodicCheck()
}

func (hm *HealthMonitor) runPeriodicCheck() {
	ticker := time.NewTicker(hm.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hm.ctx.Done():
			return
		case <-ticker.C:
			hm.updateHealth(hm.checker.IsHealthy(hm.ctx))
		}
	}
}

// updateHealth records the status and notifies callbacks on change.
func (hm *HealthMonitor) updateHealth(healthy bool) {
	oldHealth := hm.healthy.Load()
	hm.healthy.Store(healthy)
	hm.lastCheck.Store(time.Now())

	if oldHealth != healthy {
		hm.logger.Info("store health changed",
			zap.Bool("healthy", healthy),
			zap.Bool("previous", oldHealth))
		hm.notifyCallbacks(healthy)
	}
}

// IsHealthy returns the current health status.
func (hm *HealthMonitor) IsHealthy() bool {
	return hm.healthy.Load()
}

// LastCheck returns the time of the last health check.
func (hm *HealthMonitor) LastCheck() time.Time {
	v := hm.lastCheck.Load()
	if v == nil {
		return time.Time{}
	}
	return v.(time.Time)
}

// RegisterCallback adds a callback fired on health transitions.
func (hm *HealthMonitor) RegisterCallback(cb func(bool)) error {
	if cb == nil {
		return fmt.Errorf("health callback cannot be nil")
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.callbacks = append(hm.callbacks, cb)
	return nil
}

// notifyCallbacks fires callbacks on copies taken under the read lock, each
// in its own goroutine with a timeout so a stuck callback cannot stall the
// monitor.
func (hm *HealthMonitor) notifyCallbacks(healthy bool) {
	hm.mu.RLock()
	callbacks := make([]func(bool), len(hm.callbacks))
	copy(callbacks, hm.callbacks)
	hm.mu.RUnlock()

	for _, cb := range callbacks {
		go func(callback func(bool)) {
			defer func() {
				if r := recover(); r != nil {
					hm.logger.Error("health callback panic", zap.Any("panic", r))
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			done := make(chan struct{})
			go func() {
				callback(healthy)
				close(done)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				hm.logger.Warn("health callback timeout",
					zap.Duration("timeout", 5*time.Second))
			}
		}(cb)
	}
}

// Stop shuts the monitor down.
func (hm *HealthMonitor) Stop() {
	hm.cancel()
}
