// Package scheduler runs the processing pipeline on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sentrix-systems/sentrix/common/logging"
	"github.com/sentrix-systems/sentrix/internal/models"
)

// CycleRunner is the unit of scheduled work.
type CycleRunner interface {
	RunCycle(ctx context.Context) (models.CycleStats, error)
}

// Scheduler triggers pipeline cycles periodically.
type Scheduler struct {
	mu       sync.Mutex
	runner   CycleRunner
	logger   *logging.Logger
	interval time.Duration
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Config configures the scheduler.
type Config struct {
	Interval time.Duration
}

// New creates a Scheduler.
func New(runner CycleRunner, logger *logging.Logger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Scheduler{
		runner:   runner,
		logger:   logger,
		interval: cfg.Interval,
	}
}

// Start begins the scheduling loop. The first cycle runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "pipeline scheduler starting", "interval", s.interval.String())

	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler, waiting for an in-flight cycle.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("pipeline scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.cycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	if _, err := s.runner.RunCycle(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduled cycle failed", logging.Error(err))
	}
}
