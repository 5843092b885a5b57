// Package scheduler drives automatic ticker-based cycles and a bounded
// pool of manually triggered ones, both backed by the same core.JobStore
// and cycle.Driver (spec §4.13).
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/kestrelsupply/replenisher-agent/pkg/cycle"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Config holds the scheduler's own tunables (spec §6).
type Config struct {
	CycleInterval      time.Duration
	MaxConcurrentJobs  int64
}

// DefaultConfig matches the recommended defaults.
func DefaultConfig() Config {
	return Config{CycleInterval: 1 * time.Hour, MaxConcurrentJobs: 4}
}

// Scheduler owns the ticker loop and the manual-trigger worker pool.
type Scheduler struct {
	driver *cycle.Driver
	jobs   core.JobStore
	cfg    Config
	sem    *semaphore.Weighted
	log    *zap.SugaredLogger

	cycleCounter int
}

// New constructs a Scheduler. Call Resume once at startup before Start.
// A nil logger falls back to zap's no-op logger.
func New(driver *cycle.Driver, jobs core.JobStore, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{driver: driver, jobs: jobs, cfg: cfg, sem: semaphore.NewWeighted(cfg.MaxConcurrentJobs), log: logger}
}

// Resume marks any job left JobRunning from a prior process as failed
// (spec §4.13: a job running when the process died did not survive).
func (s *Scheduler) Resume(ctx context.Context) error {
	return s.jobs.MarkOrphansFailed(ctx)
}

// Start runs the ticker loop until ctx is cancelled, firing one automatic
// cycle every CycleInterval via Trigger.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Trigger(ctx); err != nil {
				s.log.Warnw("automatic cycle trigger failed", "error", err)
			}
		}
	}
}

// Trigger enqueues a new job and, once a worker slot is free, runs the
// cycle in the background. It returns immediately with the created job.
func (s *Scheduler) Trigger(ctx context.Context) (core.Job, error) {
	job := core.Job{ID: uuid.New(), Status: core.JobQueued, CreatedAt: time.Now()}
	if err := s.jobs.Create(ctx, job); err != nil {
		return core.Job{}, fmt.Errorf("scheduler: create job: %w", err)
	}

	go s.run(job.ID)
	return job, nil
}

func (s *Scheduler) run(jobID uuid.UUID) {
	ctx := context.Background()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	start := time.Now()
	job, ok, err := s.jobs.Get(ctx, jobID)
	if err != nil || !ok {
		s.log.Warnw("job vanished before running", "job_id", jobID, "error", err)
		return
	}
	job.Status = core.JobRunning
	job.StartedAt = &start
	if err := s.jobs.Update(ctx, job); err != nil {
		s.log.Warnw("mark job running failed", "job_id", jobID, "error", err)
	}

	s.cycleCounter++
	s.driver.Config.CycleNumber = s.cycleCounter
	result, err := s.driver.RunCycle(ctx, jobID.String())

	completed := time.Now()
	job.CompletedAt = &completed
	if err != nil {
		job.Status = core.JobFailed
		job.Error = err.Error()
	} else {
		job.Status = core.JobCompleted
		job.Result = &result
		job.Summary = fmt.Sprintf("%s: %d decisions, %d actions", result.Status, len(result.Decisions), len(result.Actions))
		if result.Status == "failed" {
			job.Status = core.JobFailed
		}
	}
	if uErr := s.jobs.Update(ctx, job); uErr != nil {
		s.log.Warnw("finalize job failed", "job_id", jobID, "error", uErr)
	}
}

// RunManualBatch runs n cycles concurrently (bounded by MaxConcurrentJobs)
// and waits for all of them, used by the seed/demo harness.
func (s *Scheduler) RunManualBatch(ctx context.Context, n int) ([]core.Job, error) {
	jobIDs := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		job, err := s.Trigger(ctx)
		if err != nil {
			return nil, err
		}
		jobIDs[i] = job.ID
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range jobIDs {
		id := id
		g.Go(func() error { return s.awaitTerminal(gctx, id) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]core.Job, 0, n)
	for _, id := range jobIDs {
		job, ok, err := s.jobs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, job)
		}
	}
	return out, nil
}

func (s *Scheduler) awaitTerminal(ctx context.Context, id uuid.UUID) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			job, ok, err := s.jobs.Get(ctx, id)
			if err != nil {
				return err
			}
			if ok && (job.Status == core.JobCompleted || job.Status == core.JobFailed) {
				return nil
			}
		}
	}
}
