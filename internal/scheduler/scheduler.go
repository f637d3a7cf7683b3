package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs named periodic jobs on a cron clock.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]cron.EntryID
	logger *slog.Logger
}

// New creates a scheduler. Jobs never overlap themselves: a tick that fires
// while the previous run is still going is skipped.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DiscardLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		jobs:   make(map[string]cron.EntryID),
		logger: logger,
	}
}

// Start runs the scheduler until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.JobCount())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// Every registers fn to run once per interval. Sub-second intervals are
// rounded up because cron's clock has one-second resolution.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	if interval < time.Second {
		interval = time.Second
	}
	return s.AddJob(name, "@every "+interval.Round(time.Second).String(), fn)
}

// AddJob registers fn under name with a cron spec (5 fields or a descriptor
// like @every 10s). Re-adding a name replaces the previous job.
func (s *Scheduler) AddJob(name, schedule string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(schedule, func() {
		s.logger.Debug("job fired", "job", name)
		fn()
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	if prev, ok := s.jobs[name]; ok {
		s.cron.Remove(prev)
	}
	s.jobs[name] = id
	s.logger.Info("job registered", "job", name, "schedule", schedule)
	return nil
}

// RemoveJob unregisters a job by name.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
