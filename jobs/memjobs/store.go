// Package memjobs is the in-memory core.JobStore, the default for a
// single-process deployment and for tests.
package memjobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kestrelsupply/replenisher-agent/core"
)

// Store guards a map of jobs with a mutex; every operation is O(1) except
// List, which copies the full set, and MarkOrphansFailed, which scans it.
type Store struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]core.Job
}

// New constructs an empty Store.
func New() *Store {
	return &Store{jobs: make(map[uuid.UUID]core.Job)}
}

func (s *Store) Create(_ context.Context, job core.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("memjobs: job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (core.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *Store) Update(_ context.Context, job core.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		return fmt.Errorf("memjobs: job %s not found", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) List(_ context.Context) ([]core.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (s *Store) MarkOrphansFailed(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		if j.Status == core.JobRunning {
			j.Status = core.JobFailed
			j.Error = "interrupted by restart"
			s.jobs[id] = j
		}
	}
	return nil
}
