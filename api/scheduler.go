/*
scheduler.go - Yearly allocation rollover scheduler

PURPOSE:
  Seeds leave allocations for the current year so balances exist before
  the first request of January. Seeding is idempotent: employees that
  already have an allocation are skipped, so the job can run as often as
  the schedule says.

DESIGN:
  - robfig/cron drives the schedule (standard five-field spec)
  - Runs once on Start so a fresh deployment is seeded immediately
  - Every run is logged with the number of allocations created

CONFIGURATION:
  - Schedule: cron spec (default: 05:00 on the first of every month)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewRolloverScheduler(handler.Leave, logger)
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: EnsureAllocations endpoint (manual run)
  - leave/coordinator.go: EnsureAllocations
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultRolloverSchedule runs at 05:00 on the first day of every month.
const DefaultRolloverSchedule = "0 5 1 * *"

// AllocationSeeder is the part of the leave coordinator the scheduler uses.
type AllocationSeeder interface {
	EnsureAllocations(ctx context.Context, year int) (int, error)
}

// RolloverScheduler seeds yearly allocations on a cron schedule.
type RolloverScheduler struct {
	Seeder   AllocationSeeder
	Logger   *zap.Logger
	Schedule string
	Enabled  bool
	Now      func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.Mutex
}

// NewRolloverScheduler creates a scheduler with the default schedule.
func NewRolloverScheduler(seeder AllocationSeeder, logger *zap.Logger) *RolloverScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RolloverScheduler{
		Seeder:   seeder,
		Logger:   logger.Named("scheduler"),
		Schedule: DefaultRolloverSchedule,
		Enabled:  true,
		Now:      time.Now,
	}
}

// Start registers the job and runs it once.
func (rs *RolloverScheduler) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("scheduler disabled, not starting")
		return nil
	}
	if rs.cron != nil {
		return nil
	}

	c := cron.New()
	id, err := c.AddFunc(rs.Schedule, rs.RunNow)
	if err != nil {
		return fmt.Errorf("invalid rollover schedule %q: %w", rs.Schedule, err)
	}
	rs.cron, rs.entryID = c, id
	c.Start()

	rs.Logger.Info("scheduler started", zap.String("schedule", rs.Schedule), zap.Time("next_run", rs.nextRun()))
	go rs.RunNow()
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	c := rs.cron
	rs.cron = nil
	rs.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	rs.Logger.Info("scheduler stopped")
}

// RunNow seeds the current year's allocations immediately.
func (rs *RolloverScheduler) RunNow() {
	year := rs.Now().Year()
	start := time.Now()

	created, err := rs.Seeder.EnsureAllocations(context.Background(), year)
	if err != nil {
		rs.Logger.Error("allocation rollover failed", zap.Int("year", year), zap.Int("created", created), zap.Error(err))
		return
	}
	rs.Logger.Info("allocation rollover completed",
		zap.Int("year", year),
		zap.Int("created", created),
		zap.Duration("took", time.Since(start)))
}

// NextRunTime returns when the next scheduled run will occur. It is zero
// while the scheduler is stopped.
func (rs *RolloverScheduler) NextRunTime() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.nextRun()
}

func (rs *RolloverScheduler) nextRun() time.Time {
	if rs.cron == nil {
		return time.Time{}
	}
	return rs.cron.Entry(rs.entryID).Next
}
