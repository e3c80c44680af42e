// Package maintenance periodically brings storage usage back under the
// warning threshold by evicting old auto-saves across all documents.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/report-vault/internal/versions"
)

// DefaultSchedule runs maintenance every five minutes
const DefaultSchedule = "@every 5m"

// Store is the part of the version store maintenance needs
type Store interface {
	StorageUsage(ctx context.Context) (versions.StorageUsage, error)
	WarnPercent() float64
	EvictAll(ctx context.Context) (int, error)
}

// Report describes one maintenance run
type Report struct {
	Before  versions.StorageUsage `json:"before"`
	After   versions.StorageUsage `json:"after"`
	Evicted int                   `json:"evicted"`
	Skipped bool                  `json:"skipped"`
}

// Scheduler runs maintenance on a cron schedule
type Scheduler struct {
	store    Store
	schedule string
	cron     *cron.Cron
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler. An empty schedule means DefaultSchedule.
func NewScheduler(store Store, schedule string, log zerolog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
		log:      log,
	}
}

// Start schedules maintenance and returns. It stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error().Err(err).Msg("scheduled maintenance failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.log.Info().Str("schedule", s.schedule).Msg("maintenance scheduler started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce evicts auto-saves if usage is at or above the warning threshold
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	before, err := s.store.StorageUsage(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read storage usage: %w", err)
	}
	report.Before = before
	report.After = before

	if before.Percentage < s.store.WarnPercent() {
		report.Skipped = true
		s.log.Debug().Float64("percentage", before.Percentage).Msg("storage below warning threshold")
		return report, nil
	}

	evicted, err := s.store.EvictAll(ctx)
	report.Evicted = evicted
	if err != nil {
		return report, fmt.Errorf("eviction failed after %d versions: %w", evicted, err)
	}

	after, err := s.store.StorageUsage(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read storage usage: %w", err)
	}
	report.After = after

	s.log.Info().
		Int("evicted", evicted).
		Float64("before_percent", before.Percentage).
		Float64("after_percent", after.Percentage).
		Msg("maintenance completed")

	if after.Percentage >= s.store.WarnPercent() {
		s.log.Warn().
			Float64("percentage", after.Percentage).
			Msg("storage still above warning threshold, export or delete manual saves")
	}
	return report, nil
}

// Stop stops the scheduler and waits for a running job
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.log.Info().Msg("maintenance scheduler stopped")
}

// IsRunning reports whether the scheduler has been started
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled run, or nil when not started
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
