// Package scheduler provides background sync scheduling: periodic passes
// while online and a queue watcher that pulls a pass forward when offline
// writes accumulate.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/fintrack-app/fintrack/backend/internal/errors"
	"github.com/fintrack-app/fintrack/backend/internal/logging"
	syncpkg "github.com/fintrack-app/fintrack/backend/internal/sync"
)

// Config holds scheduler configuration.
type Config struct {
	SyncInterval  time.Duration // how often to sync when online
	QueueInterval time.Duration // how often to check for accumulated operations
	PassTimeout   time.Duration // deadline for a triggered pass
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:  15 * time.Minute,
		QueueInterval: 1 * time.Minute,
		PassTimeout:   5 * time.Minute,
	}
}

// Scheduler manages background sync passes over an orchestrator.
type Scheduler struct {
	engine        syncpkg.Orchestrator
	syncInterval  time.Duration
	queueInterval time.Duration
	passTimeout   time.Duration
	stopCh        chan struct{}
	kickCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.RWMutex
	isRunning     bool
	lastSyncTime  time.Time
	passInFlight  bool
}

// NewScheduler creates a scheduler over the given orchestrator.
func NewScheduler(engine syncpkg.Orchestrator, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		engine:        engine,
		syncInterval:  config.SyncInterval,
		queueInterval: config.QueueInterval,
		passTimeout:   config.PassTimeout,
		stopCh:        make(chan struct{}),
		kickCh:        make(chan struct{}, 1),
	}
}

// Start starts the background loops.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.periodicSyncLoop(ctx)
	go s.queueWatchLoop(ctx)

	logging.Info("background sync scheduler started", nil)
}

// Stop stops the scheduler gracefully, waiting for loops to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("background sync scheduler stopped", nil)
}

// SetOnlineStatus forwards the connectivity signal to the engine. A
// transition from offline to online kicks an immediate pass so queued
// writes drain without waiting for the next tick.
func (s *Scheduler) SetOnlineStatus(isOnline bool) {
	wasOnline := s.engine.IsOnline()
	s.engine.SetOnline(isOnline)

	if wasOnline == isOnline {
		return
	}
	logging.Info("online status changed", map[string]interface{}{
		"was_online": wasOnline,
		"is_online":  isOnline,
	})
	if isOnline {
		s.kick()
	}
}

// kick requests an immediate pass without blocking.
func (s *Scheduler) kick() {
	select {
	case s.kickCh <- struct{}{}:
	default:
	}
}

// periodicSyncLoop runs passes on the sync interval and on kicks.
func (s *Scheduler) periodicSyncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.maybeRun(ctx)
		case <-s.kickCh:
			s.maybeRun(ctx)
		}
	}
}

// queueWatchLoop kicks a pass forward when pending operations accumulate
// between ticks of the main interval.
func (s *Scheduler) queueWatchLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.queueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.engine.IsOnline() {
				continue
			}
			pending, err := s.engine.PendingOps(ctx)
			if err != nil {
				logging.Error("check pending operations", err, nil)
				continue
			}
			if pending > 0 {
				s.kick()
			}
		}
	}
}

// maybeRun starts a pass unless one is already in flight.
func (s *Scheduler) maybeRun(ctx context.Context) {
	if !s.engine.IsOnline() {
		logging.Debug("skipping sync, offline", nil)
		return
	}

	s.mu.Lock()
	if s.passInFlight {
		s.mu.Unlock()
		logging.Debug("sync already in progress, skipping", nil)
		return
	}
	s.passInFlight = true
	s.mu.Unlock()

	go s.runSync(ctx)
}

// runSync executes one pass.
func (s *Scheduler) runSync(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.passInFlight = false
		s.mu.Unlock()
	}()

	syncCtx, cancel := context.WithTimeout(ctx, s.passTimeout)
	defer cancel()

	result, err := s.engine.SyncAll(syncCtx)
	if err != nil {
		logging.ErrorWithCode("periodic sync failed", string(errors.CodeOf(err)), err, nil)
		return
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.mu.Unlock()

	logging.Info("periodic sync completed", map[string]interface{}{
		"drained":   result.Drained,
		"failed":    result.Failed,
		"conflicts": result.Conflicts,
		"pulled":    result.Pulled,
	})
}

// TriggerSync requests an immediate pass. Returns false when a pass is
// already in flight.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	s.mu.RLock()
	inFlight := s.passInFlight
	s.mu.RUnlock()
	if inFlight {
		return false
	}
	s.maybeRun(ctx)
	return true
}

// SyncNow runs a pass synchronously and returns its error.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncpkg.Result, error) {
	s.mu.Lock()
	s.passInFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.passInFlight = false
		s.mu.Unlock()
	}()

	syncCtx, cancel := context.WithTimeout(ctx, s.passTimeout)
	defer cancel()

	result, err := s.engine.SyncAll(syncCtx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.mu.Unlock()

	return result, nil
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	IsRunning      bool       `json:"is_running"`
	IsOnline       bool       `json:"is_online"`
	EngineState    string     `json:"engine_state"`
	LastSyncTime   *time.Time `json:"last_sync_time,omitempty"`
	SyncInProgress bool       `json:"sync_in_progress"`
	PendingOps     int        `json:"pending_ops"`
}

// GetStatus returns the current status of the scheduler and its engine.
func (s *Scheduler) GetStatus(ctx context.Context) Status {
	s.mu.RLock()
	status := Status{
		IsRunning:      s.isRunning,
		SyncInProgress: s.passInFlight,
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	s.mu.RUnlock()

	status.IsOnline = s.engine.IsOnline()
	status.EngineState = string(s.engine.State())
	if pending, err := s.engine.PendingOps(ctx); err == nil {
		status.PendingOps = pending
	}
	return status
}

// IsRunning reports whether the background loops are active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
